/*
calculator.go - Closing stock derivation

PURPOSE:
  Turns one day's movement events for one item/scope into a closing-stock
  quantity plus a human-readable trace of how it was derived.

ALGORITHM:
  1. Opening: explicit opening record for the date, else the previous
     day's closing record, else zero. There is deliberately NO fallback to
     an item-level quantity field; that field is retired in favor of the
     ledger.
  2. closing = max(0, opening + restocking + incoming transfers
                      - sales - waste - outgoing transfers)

  Transfers only appear in branch scopes. For a no-branch (organization
  wide) scope a transfer would be both outgoing and incoming, so it nets
  to zero and is skipped.

  The calculator is read-only. Whether a result may be written (manual
  sentinel checks) and the upsert itself belong to the cascade and the
  engine operations.

SEE ALSO:
  - cascade.go: walks the calculator forward through dates
  - availability.go: the same sums, restricted to "can this write commit"
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// OpeningSource says where the opening quantity in a derivation came from.
type OpeningSource string

const (
	OpeningFromRecord      OpeningSource = "opening_record"
	OpeningFromPrevClosing OpeningSource = "previous_closing"
	OpeningFromNothing     OpeningSource = "none"
)

// Derivation is the full breakdown behind one closing-stock figure.
type Derivation struct {
	ItemID        ItemID
	Scope         Scope
	Date          Date
	Opening       decimal.Decimal
	OpeningSource OpeningSource
	Restocking    decimal.Decimal
	Incoming      decimal.Decimal
	Sales         decimal.Decimal
	Waste         decimal.Decimal
	Outgoing      decimal.Decimal
	Closing       decimal.Decimal
}

// Trace renders the derivation the way it is stored in closing-stock notes.
func (d Derivation) Trace() string {
	return fmt.Sprintf(
		"Auto-calculated: Opening (%s) + Restocking (%s) + IncomingTransfers (%s) - Sales (%s) - Waste/Spoilage (%s) - OutgoingTransfers (%s)",
		d.Opening, d.Restocking, d.Incoming, d.Sales, d.Waste, d.Outgoing)
}

// Calculator derives closing stock and availability from the movement store.
type Calculator struct {
	Store Store
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{Store: store}
}

// Closing computes the closing-stock derivation for (scope, item, date).
func (c *Calculator) Closing(ctx context.Context, scope Scope, itemID ItemID, date Date) (Derivation, error) {
	d := Derivation{ItemID: itemID, Scope: scope, Date: date}

	opening, source, err := c.opening(ctx, scope, itemID, date)
	if err != nil {
		return d, err
	}
	d.Opening = opening
	d.OpeningSource = source

	if d.Restocking, err = c.sumKind(ctx, scope, itemID, date, KindRestock); err != nil {
		return d, err
	}
	if d.Sales, err = c.sumKind(ctx, scope, itemID, date, KindSale); err != nil {
		return d, err
	}
	if d.Waste, err = c.sumKind(ctx, scope, itemID, date, KindWaste); err != nil {
		return d, err
	}
	if scope.HasBranch() {
		in, err := c.Store.IncomingTransfers(ctx, scope.Org, *scope.Branch, itemID, date)
		if err != nil {
			return d, err
		}
		d.Incoming = sumQuantities(in)

		out, err := c.Store.OutgoingTransfers(ctx, scope.Org, *scope.Branch, itemID, date)
		if err != nil {
			return d, err
		}
		d.Outgoing = sumQuantities(out)
	}

	closing := d.Opening.
		Add(d.Restocking).
		Add(d.Incoming).
		Sub(d.Sales).
		Sub(d.Waste).
		Sub(d.Outgoing)
	if closing.IsNegative() {
		closing = decimal.Zero
	}
	d.Closing = closing
	return d, nil
}

// opening resolves the day's starting quantity: explicit opening record,
// else the previous day's closing record, else zero.
func (c *Calculator) opening(ctx context.Context, scope Scope, itemID ItemID, date Date) (decimal.Decimal, OpeningSource, error) {
	if rec, err := c.Store.GetOpeningStock(ctx, scope, itemID, date); err != nil {
		return decimal.Zero, OpeningFromNothing, err
	} else if rec != nil {
		return rec.Quantity, OpeningFromRecord, nil
	}

	if prev, err := c.Store.GetClosingStock(ctx, scope, itemID, date.Prev()); err != nil {
		return decimal.Zero, OpeningFromNothing, err
	} else if prev != nil {
		return prev.Quantity, OpeningFromPrevClosing, nil
	}

	return decimal.Zero, OpeningFromNothing, nil
}

func (c *Calculator) sumKind(ctx context.Context, scope Scope, itemID ItemID, date Date, kind MovementKind) (decimal.Decimal, error) {
	ms, err := c.Store.MovementsOn(ctx, scope, itemID, date, kind)
	if err != nil {
		return decimal.Zero, err
	}
	return sumQuantities(ms), nil
}

func sumQuantities(ms []Movement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range ms {
		total = total.Add(m.Quantity)
	}
	return total
}

// =============================================================================
// AVAILABILITY - The same sums, asked a different question
// =============================================================================

// Available computes how much of an item can still be consumed on a date.
// With a batch reference the question narrows to that batch: batch quantity
// minus the sales already drawn from it. Without one it is the whole-scope
// figure: opening + restocking + incoming - sales - waste - outgoing.
// The returned string describes the computation for error messages.
func (c *Calculator) Available(ctx context.Context, scope Scope, itemID ItemID, date Date, batch BatchRef) (decimal.Decimal, string, error) {
	if !batch.IsZero() {
		return c.batchAvailable(ctx, scope, date, batch)
	}

	d, err := c.Closing(ctx, scope, itemID, date)
	if err != nil {
		return decimal.Zero, "", err
	}
	// Availability is the un-clamped margin: opening may legitimately be
	// zero with sales already recorded, and the caller needs the real gap.
	avail := d.Opening.Add(d.Restocking).Add(d.Incoming).
		Sub(d.Sales).Sub(d.Waste).Sub(d.Outgoing)
	info := fmt.Sprintf("Opening: %s, Restocked: %s, Incoming: %s, Sold: %s, Waste: %s, Outgoing: %s",
		d.Opening, d.Restocking, d.Incoming, d.Sales, d.Waste, d.Outgoing)
	return avail, info, nil
}

func (c *Calculator) batchAvailable(ctx context.Context, scope Scope, date Date, batch BatchRef) (decimal.Decimal, string, error) {
	var batchQty decimal.Decimal

	switch {
	case batch.RestockingID != nil:
		m, err := c.Store.GetMovement(ctx, *batch.RestockingID)
		if err != nil {
			return decimal.Zero, "", err
		}
		if m == nil || m.Kind != KindRestock {
			return decimal.Zero, "", ErrBatchNotFound
		}
		batchQty = m.Quantity
	case batch.OpeningStockID != nil:
		o, err := c.Store.GetOpeningStockByID(ctx, *batch.OpeningStockID)
		if err != nil {
			return decimal.Zero, "", err
		}
		if o == nil {
			return decimal.Zero, "", ErrBatchNotFound
		}
		batchQty = o.Quantity
	}

	sales, err := c.Store.SalesForBatch(ctx, scope, date, batch)
	if err != nil {
		return decimal.Zero, "", err
	}
	sold := sumQuantities(sales)

	avail := batchQty.Sub(sold)
	if batch.RestockingID != nil && avail.IsNegative() {
		avail = decimal.Zero
	}
	info := fmt.Sprintf("Batch: %s, Sold from this batch: %s", batchQty, sold)
	return avail, info, nil
}
