/*
cascade.go - Forward propagation of stock corrections

PURPOSE:
  When a past day's movements change (backdated sale, deleted sale,
  late restock), that day's closing stock is stale, and so is every
  subsequent day's opening. The propagator recomputes the edited day and
  walks forward to today, carrying each day's closing into the next day's
  opening.

SENTINELS:
  A manually entered closing stock is a hard boundary for its own day: the
  walk never overwrites it. It is NOT a boundary for the next day, whose
  opening is still derived from the manual value. Manual opening records
  are likewise never overwritten.

STATE MACHINE (per date in the walk):
  Pending -> Recomputed -> Propagated
  Recomputed: the date's closing is up to date (recomputed or manual).
  Propagated: the next day's opening has been carried forward.
  Terminal: reached today, or hit the defensive iteration cap.

FAILURE SEMANTICS:
  Propagation runs after the triggering write has committed and must never
  fail it. Call sites route through the commit hook in events.go, which
  logs and swallows errors. Rerunning propagation is idempotent: it reads
  current data and converges to the same fixed point.
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DefaultMaxCascadeDays bounds the forward walk. A correction older than
// this propagates in chunks across successive runs; the cap exists to stop
// unbounded loops from clock skew, not to limit legitimate history.
const DefaultMaxCascadeDays = 400

// dateState tracks the walk's progress for one date.
type dateState int

const (
	statePending dateState = iota
	stateRecomputed
	statePropagated
)

// Propagator recomputes closing stock from a start date forward to today.
type Propagator struct {
	Store   Store
	Calc    *Calculator
	Log     *logrus.Logger
	Clock   Clock
	MaxDays int
}

func NewPropagator(store Store, log *logrus.Logger) *Propagator {
	return &Propagator{
		Store: store,
		Calc:  NewCalculator(store),
		Log:   log,
	}
}

func (p *Propagator) maxDays() int {
	if p.MaxDays > 0 {
		return p.MaxDays
	}
	return DefaultMaxCascadeDays
}

// Propagate recomputes (scope, from) and every subsequent date up to today
// for all of the organization's items. It is safe to rerun: a second pass
// over unchanged data is a no-op.
func (p *Propagator) Propagate(ctx context.Context, scope Scope, from Date) error {
	today := p.Clock.today()
	if from.After(today) {
		return fmt.Errorf("cannot propagate from %s: %w", from, ErrFutureDate)
	}

	items, err := p.Store.ListItems(ctx, scope.Org)
	if err != nil {
		return fmt.Errorf("propagate %s from %s: list items: %w", scope, from, err)
	}

	date := from
	for steps := 0; steps < p.maxDays() && date.BeforeOrEqual(today); steps++ {
		for _, item := range items {
			if err := p.propagateItemDay(ctx, scope, item.ID, date, today); err != nil {
				return fmt.Errorf("propagate %s %s on %s: %w", scope, item.ID, date, err)
			}
		}
		date = date.Next()
	}
	return nil
}

// propagateItemDay runs one item through the per-date state machine:
// Pending until the date's closing is settled, Recomputed once it is,
// Propagated once the next day's opening carries it forward.
func (p *Propagator) propagateItemDay(ctx context.Context, scope Scope, itemID ItemID, date, today Date) (err error) {
	state := statePending
	defer func() {
		if err != nil && p.Log != nil {
			p.Log.WithFields(logrus.Fields{
				"scope": scope.String(),
				"item":  string(itemID),
				"date":  date.String(),
				"state": state,
			}).Debug("cascade step stopped")
		}
	}()

	existing, err := p.Store.GetClosingStock(ctx, scope, itemID, date)
	if err != nil {
		return err
	}

	var carry ClosingStock
	if existing != nil && existing.IsManual() {
		// Sentinel: keep the manual value, it still seeds the next day.
		carry = *existing
		state = stateRecomputed
	} else {
		d, err := p.Calc.Closing(ctx, scope, itemID, date)
		if err != nil {
			return err
		}
		computed := ClosingStock{
			ItemID:   itemID,
			Org:      scope.Org,
			Branch:   scope.Branch,
			Date:     date,
			Quantity: d.Closing,
			Source:   StockComputed,
			Notes:    d.Trace(),
		}
		if existing != nil {
			computed.ID = existing.ID
		}
		if err := p.Store.UpsertClosingStock(ctx, computed); err != nil {
			return err
		}
		carry = computed
		state = stateRecomputed
	}

	next := date.Next()
	if next.After(today) {
		return nil
	}

	nextOpening, err := p.Store.GetOpeningStock(ctx, scope, itemID, next)
	if err != nil {
		return err
	}
	if nextOpening != nil && nextOpening.IsManual() {
		// Manual opening wins over the derived carry-forward.
		return nil
	}

	derived := OpeningStock{
		ItemID:   itemID,
		Org:      scope.Org,
		Branch:   scope.Branch,
		Date:     next,
		Quantity: carry.Quantity,
		Source:   StockDerived,
	}
	if nextOpening != nil {
		derived.ID = nextOpening.ID
	}
	if err := p.Store.UpsertOpeningStock(ctx, derived); err != nil {
		return err
	}
	state = statePropagated
	return nil
}
