/*
availability.go - Compute-then-verify-then-commit for stock-consuming writes

PURPOSE:
  Guards every write that consumes stock (manual sale, batch-linked sale,
  transfer, waste, issuance) against overselling under concurrency.

PROTOCOL:
  1. Compute available from current data. If the request exceeds it, fail
     with InsufficientStockError carrying the figure. Pure client error,
     no retry.
  2. Re-compute available from fresh data immediately before the insert.
     If the margin is gone, fail with ConflictError carrying the fresh
     figure: state changed, the caller should refresh and retry.
  3. Insert. A uniqueness violation from the store means a concurrent
     writer won the race; retry the whole re-check-then-insert sequence
     with exponential backoff, up to the retry budget.
  4. Exhausting the budget yields ErrRetryExhausted, deliberately distinct
     from insufficient stock.

HONESTY NOTE:
  Without an atomic store this is a mitigation, not a guarantee: the
  window between step 2 and step 3 is narrowed, not closed, and the
  store's uniqueness constraint is the only real fence. Stores that
  implement TxStore get the stronger form - re-check and insert execute
  atomically, which does close the window.
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMaxRetries bounds the re-check-then-insert loop.
	DefaultMaxRetries = 3
	// DefaultBackoffBase is doubled on each retry.
	DefaultBackoffBase = 100 * time.Millisecond
)

// Controller wraps stock-consuming writes with the availability protocol.
type Controller struct {
	Store       Store
	Log         *logrus.Logger
	MaxRetries  int
	BackoffBase time.Duration

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(time.Duration)
}

func NewController(store Store, log *logrus.Logger) *Controller {
	return &Controller{Store: store, Log: log}
}

func (c *Controller) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

func (c *Controller) backoff(attempt int) time.Duration {
	base := c.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return base << uint(attempt)
}

func (c *Controller) doSleep(d time.Duration) {
	if c.sleep != nil {
		c.sleep(d)
		return
	}
	time.Sleep(d)
}

// ConsumeRequest describes one stock-consuming write.
type ConsumeRequest struct {
	Scope    Scope
	ItemID   ItemID
	Date     Date
	Quantity decimal.Decimal
	Batch    BatchRef

	// Insert performs the actual write against the given store view. It
	// runs inside the transaction when the store supports one.
	Insert func(ctx context.Context, s Store) error
}

// Consume runs the full protocol for one write.
func (c *Controller) Consume(ctx context.Context, req ConsumeRequest) error {
	if !req.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if req.Batch.conflicting() {
		return ErrConflictingBatchRefs
	}

	// Step 1: first check against current data. A shortage here is a
	// straight client error, not a race.
	calc := NewCalculator(c.Store)
	available, info, err := calc.Available(ctx, req.Scope, req.ItemID, req.Date, req.Batch)
	if err != nil {
		return err
	}
	if req.Quantity.GreaterThan(available) {
		return &InsufficientStockError{
			ItemID:    req.ItemID,
			Requested: req.Quantity,
			Available: available,
			Detail:    info,
		}
	}

	// Steps 2-4: re-check and insert, retrying on uniqueness conflicts.
	for attempt := 0; attempt < c.maxRetries(); attempt++ {
		err := c.checkAndInsert(ctx, req)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrUniquenessViolation) {
			if c.Log != nil {
				c.Log.WithFields(logrus.Fields{
					"scope":   req.Scope.String(),
					"item":    string(req.ItemID),
					"date":    req.Date.String(),
					"attempt": attempt + 1,
				}).Warn("uniqueness conflict on stock write, retrying")
			}
			if attempt < c.maxRetries()-1 {
				c.doSleep(c.backoff(attempt + 1))
				continue
			}
			return ErrRetryExhausted
		}
		return err
	}
	return ErrRetryExhausted
}

// checkAndInsert is one attempt: fresh availability check, then the write.
// With a TxStore both steps share a transaction.
func (c *Controller) checkAndInsert(ctx context.Context, req ConsumeRequest) error {
	attempt := func(s Store) error {
		calc := NewCalculator(s)
		fresh, _, err := calc.Available(ctx, req.Scope, req.ItemID, req.Date, req.Batch)
		if err != nil {
			return err
		}
		if req.Quantity.GreaterThan(fresh) {
			return &ConflictError{
				ItemID:    req.ItemID,
				Requested: req.Quantity,
				Available: fresh,
			}
		}
		return req.Insert(ctx, s)
	}

	if tx, ok := c.Store.(TxStore); ok {
		return tx.WithTx(ctx, attempt)
	}
	return attempt(c.Store)
}
