// Package notify delivers engine announcements to chat surfaces.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Notifier delivers an announcement to a scope.
type Notifier interface {
	Announce(ctx context.Context, scopeID, text string) error
}

// LogNotifier writes announcements to the log. It is the fallback when no
// chat transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Announce implements Notifier
func (n *LogNotifier) Announce(_ context.Context, scopeID, text string) error {
	n.logger.Info("announcement", "scope_id", scopeID, "text", text)
	return nil
}

// Fanout sends each announcement to every wrapped notifier. Every target
// is attempted; the joined error reports which ones failed.
type Fanout struct {
	targets []Notifier
}

// NewFanout combines notifiers, skipping nil entries
func NewFanout(targets ...Notifier) *Fanout {
	f := &Fanout{}
	for _, t := range targets {
		if t != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

// Announce implements Notifier
func (f *Fanout) Announce(ctx context.Context, scopeID, text string) error {
	var errs []error
	for i, t := range f.targets {
		if err := t.Announce(ctx, scopeID, text); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns how many notifiers are wrapped
func (f *Fanout) Len() int {
	return len(f.targets)
}
