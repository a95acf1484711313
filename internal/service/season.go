package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/spotbot/internal/domain"
)

// DateLayout is how season ids and calendar days are rendered.
const DateLayout = "2006-01-02"

// SeasonClock derives scoring windows from a fixed anchor and length, and
// holds the per-scope manual reset floors.
type SeasonClock struct {
	anchor time.Time
	days   int
	now    func() time.Time

	mu     sync.RWMutex
	resets map[string]time.Time
}

// NewSeasonClock creates a clock whose first season starts at anchor.
// The anchor's location decides calendar boundaries.
func NewSeasonClock(anchor time.Time, lengthDays int, now func() time.Time) *SeasonClock {
	if lengthDays <= 0 {
		lengthDays = 14
	}
	if now == nil {
		now = time.Now
	}
	return &SeasonClock{
		anchor: anchor,
		days:   lengthDays,
		now:    now,
		resets: make(map[string]time.Time),
	}
}

// Now returns the current instant in the season timezone.
func (c *SeasonClock) Now() time.Time {
	return c.now().In(c.anchor.Location())
}

// Length returns the season length in days.
func (c *SeasonClock) Length() int {
	return c.days
}

// SeasonStart returns the first instant of the season containing t.
func (c *SeasonClock) SeasonStart(t time.Time) time.Time {
	t = t.In(c.anchor.Location())
	k := floorDiv(civilDays(c.anchor, t), c.days)
	start := c.anchor.AddDate(0, 0, k*c.days)
	if t.Before(start) {
		start = start.AddDate(0, 0, -c.days)
	}
	return start
}

// SeasonID returns the id of the season containing t.
func (c *SeasonClock) SeasonID(t time.Time) string {
	return c.SeasonStart(t).Format(DateLayout)
}

// CurrentSeasonID returns the id of the season containing now.
func (c *SeasonClock) CurrentSeasonID() string {
	return c.SeasonID(c.Now())
}

// PreviousSeasonID returns the id of the season before current.
func (c *SeasonClock) PreviousSeasonID(current string) (string, error) {
	start, err := time.ParseInLocation(DateLayout, current, c.anchor.Location())
	if err != nil {
		return "", fmt.Errorf("parsing season id %q: %w", current, domain.ErrInvalidRequest)
	}
	return start.AddDate(0, 0, -c.days).Format(DateLayout), nil
}

// Day returns the calendar day of t in the season timezone.
func (c *SeasonClock) Day(t time.Time) string {
	return t.In(c.anchor.Location()).Format(DateLayout)
}

// Info describes the season containing now for a scope.
func (c *SeasonClock) Info(scopeID string) domain.SeasonInfo {
	start := c.SeasonStart(c.Now())
	info := domain.SeasonInfo{
		SeasonID: start.Format(DateLayout),
		StartsAt: start,
		EndsAt:   start.AddDate(0, 0, c.days),
	}
	if at, ok := c.ManualReset(scopeID); ok {
		info.ManualReset = &at
	}
	return info
}

// ApplyManualReset floors the scope's current-season aggregation at now and
// returns that instant.
func (c *SeasonClock) ApplyManualReset(scopeID string) time.Time {
	at := c.Now()
	c.mu.Lock()
	c.resets[scopeID] = at
	c.mu.Unlock()
	return at
}

// ManualReset returns the scope's reset floor if one is set.
func (c *SeasonClock) ManualReset(scopeID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	at, ok := c.resets[scopeID]
	return at, ok
}

// ClearAllManualResets drops every scope's floor.
func (c *SeasonClock) ClearAllManualResets() {
	c.mu.Lock()
	c.resets = make(map[string]time.Time)
	c.mu.Unlock()
}

// RestoreManualResets loads floors saved before a restart. Floors older than
// the current season are ignored since a rollover would have cleared them.
func (c *SeasonClock) RestoreManualResets(resets map[string]time.Time) int {
	start := c.SeasonStart(c.Now())
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for scopeID, at := range resets {
		if at.Before(start) {
			continue
		}
		c.resets[scopeID] = at.In(c.anchor.Location())
		n++
	}
	return n
}

// civilDays counts calendar days from a to b in a's location.
func civilDays(a, b time.Time) int {
	b = b.In(a.Location())
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
