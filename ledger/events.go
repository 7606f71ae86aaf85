/*
events.go - Post-commit events and the propagation hook

PURPOSE:
  A backdated write leaves the ledger's downstream view stale, but the
  write itself has already committed. Rather than burying a best-effort
  recomputation inside each operation, the engine publishes an explicit
  MovementCommitted event after every successful commit and lets hooks
  react to it. "Did the sale succeed" and "did the ledger fully resettle"
  are decoupled.

CONTRACT:
  Hooks must never fail the triggering write. The propagation hook logs
  and swallows every error; a missed propagation is repaired by the next
  run over the same dates (propagation is idempotent).
*/
package ledger

import (
	"context"

	"github.com/sirupsen/logrus"
)

// MovementCommitted is published after a movement write has committed.
// Transfers publish one event per affected branch scope.
type MovementCommitted struct {
	Scope  Scope
	ItemID ItemID
	Date   Date
	Kind   MovementKind
}

// CommitHook consumes post-commit events. Implementations must swallow
// their own failures.
type CommitHook interface {
	MovementCommitted(ctx context.Context, ev MovementCommitted)
}

// PropagationHook triggers a forward cascade for events dated in the past.
// Same-day events need no cascade: closing stock for today is computed on
// demand or by the end-of-day auto-save.
type PropagationHook struct {
	Propagator *Propagator
	Log        *logrus.Logger
	Clock      Clock
}

func NewPropagationHook(p *Propagator, log *logrus.Logger) *PropagationHook {
	return &PropagationHook{Propagator: p, Log: log}
}

func (h *PropagationHook) MovementCommitted(ctx context.Context, ev MovementCommitted) {
	if !ev.Date.Before(h.Clock.today()) {
		return
	}
	if err := h.Propagator.Propagate(ctx, ev.Scope, ev.Date); err != nil {
		// Non-fatal by contract: the movement is committed, the ledger is
		// transiently inconsistent until the next propagation run.
		if h.Log != nil {
			h.Log.WithFields(logrus.Fields{
				"scope": ev.Scope.String(),
				"item":  string(ev.ItemID),
				"date":  ev.Date.String(),
				"kind":  string(ev.Kind),
			}).WithError(err).Error("cascade propagation failed after commit")
		}
	}
}
