package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spotbot/internal/domain"
	"github.com/spotbot/internal/metrics"
)

// Inbound event types
const (
	EventSpot       = "spot"
	EventRetract    = "retract"
	EventInvalidate = "invalidate"
	EventEliminate  = "eliminate"
)

// InboundEvent is a chat event relayed by the gateway. For eliminations
// the actor is the killer and the first target is the victim.
type InboundEvent struct {
	Type        string   `json:"type"`
	ScopeID     string   `json:"scope_id"`
	ActorID     string   `json:"actor_id"`
	Targets     []string `json:"targets,omitempty"`
	EventKey    string   `json:"event_key"`
	ImageRef    string   `json:"image_ref,omitempty"`
	EvidenceRef string   `json:"evidence_ref,omitempty"`
}

// DecodeEvent parses and validates a message value
func DecodeEvent(data []byte) (InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decoding event: %w", err)
	}
	switch ev.Type {
	case EventSpot, EventEliminate:
		if ev.ScopeID == "" || ev.ActorID == "" || len(ev.Targets) == 0 {
			return ev, fmt.Errorf("%s event needs scope, actor and targets: %w", ev.Type, domain.ErrInvalidRequest)
		}
	case EventRetract, EventInvalidate:
		if ev.EventKey == "" {
			return ev, fmt.Errorf("%s event needs an event key: %w", ev.Type, domain.ErrInvalidRequest)
		}
	default:
		return ev, fmt.Errorf("unknown event type %q: %w", ev.Type, domain.ErrInvalidRequest)
	}
	return ev, nil
}

// Engine is the part of the game engine fed by the bus
type Engine interface {
	Spot(ctx context.Context, ev domain.SpotEvent) (domain.SpotResult, error)
	Retract(ctx context.Context, eventKey string) (int64, error)
	Invalidate(ctx context.Context, eventKey string) (int64, error)
	Eliminate(ctx context.Context, claim domain.EliminationClaim) (domain.Outcome, error)
}

// Dispatcher routes decoded events to the engine
type Dispatcher struct {
	engine  Engine
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(engine Engine, rec *metrics.Recorder, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{engine: engine, metrics: rec, logger: logger}
}

// Handle applies one event. Rejections and state conflicts are final
// outcomes and return nil; only errors worth a retry are returned.
func (d *Dispatcher) Handle(ctx context.Context, ev InboundEvent) error {
	err := d.apply(ctx, ev)
	switch {
	case err == nil:
		d.metrics.RecordInbound(ev.Type, metrics.ResultOK)
		return nil
	case domain.IsInputRejection(err) || domain.IsStateConflict(err) || domain.IsNotFoundError(err):
		d.metrics.RecordInbound(ev.Type, metrics.ResultRejected)
		d.logger.Info("inbound event rejected",
			"type", ev.Type,
			"scope_id", ev.ScopeID,
			"event_key", ev.EventKey,
			"reason", err,
		)
		return nil
	default:
		d.metrics.RecordInbound(ev.Type, metrics.ResultError)
		return err
	}
}

func (d *Dispatcher) apply(ctx context.Context, ev InboundEvent) error {
	switch ev.Type {
	case EventSpot:
		_, err := d.engine.Spot(ctx, domain.SpotEvent{
			ScopeID:  ev.ScopeID,
			ScorerID: ev.ActorID,
			Targets:  ev.Targets,
			EventKey: ev.EventKey,
			ImageRef: ev.ImageRef,
		})
		return err

	case EventRetract:
		n, err := d.engine.Retract(ctx, ev.EventKey)
		if err == nil {
			d.logger.Debug("event retracted", "event_key", ev.EventKey, "records", n)
		}
		return err

	case EventInvalidate:
		n, err := d.engine.Invalidate(ctx, ev.EventKey)
		if err == nil {
			d.logger.Debug("event invalidated", "event_key", ev.EventKey, "records", n)
		}
		return err

	case EventEliminate:
		_, err := d.engine.Eliminate(ctx, domain.EliminationClaim{
			ScopeID:     ev.ScopeID,
			KillerID:    ev.ActorID,
			VictimID:    ev.Targets[0],
			EvidenceRef: ev.EvidenceRef,
		})
		return err

	default:
		return fmt.Errorf("unknown event type %q: %w", ev.Type, domain.ErrInvalidRequest)
	}
}
