package engine

import (
	"context"

	"go.uber.org/zap"
)

// ProcessEvent is a committed workflow step handed to a ProcessNotifier.
type ProcessEvent struct {
	Type      string         `json:"type"`
	ProjectID int64          `json:"project_id"`
	EntityID  int64          `json:"entity_id"`
	ActorID   string         `json:"actor_id"`
	TS        string         `json:"ts"`
	Payload   map[string]any `json:"payload"`
}

// ProcessNotifier mirrors workflow steps into an external process engine.
// It runs after commit; a failure is logged and the change stands.
type ProcessNotifier interface {
	Notify(ctx context.Context, ev ProcessEvent) error
}

func (e Engine) notify(ctx context.Context, ev ProcessEvent) {
	if e.Process == nil {
		return
	}
	ev.TS = e.stamp()
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	if err := e.Process.Notify(ctx, ev); err != nil {
		e.log().Warn("process notification failed",
			zap.String("type", ev.Type), zap.Int64("entity_id", ev.EntityID), zap.Error(err))
	}
}
