/*
service.go - The engine's operation surface

PURPOSE:
  Composes the calculator, availability controller, cascade propagator and
  settler into the operations the surrounding application calls:

    RecordSale / DeleteSale      manual and batch-linked sales
    CreateTransfer               two-ledger branch transfer
    RecordRestock / RecordWaste  inbound delivery, outbound loss
    CreateIssuance / RecordReturn  the staff reservation channel
    EnterClosingStock            manual sentinel entry
    AutoSaveClosingStock         bulk end-of-day computation
    SettleIssuances              issued-minus-returned reconciliation
    StockReport                  per-item day summary

  Callers arrive with an already-resolved Scope; authorization happened
  upstream. Validation runs before any store access; post-commit cascades
  go through commit hooks and never fail the triggering write.
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Engine is the inventory ledger engine.
type Engine struct {
	Store      Store
	Calc       *Calculator
	Controller *Controller
	Propagator *Propagator
	Settler    *Settler
	Log        *logrus.Logger
	Clock      Clock

	hooks []CommitHook
}

// NewEngine wires an engine over a store. The default clock is the wall
// clock; tests pin it with WithClock.
func NewEngine(store Store, log *logrus.Logger) *Engine {
	e := &Engine{
		Store:      store,
		Calc:       NewCalculator(store),
		Controller: NewController(store, log),
		Propagator: NewPropagator(store, log),
		Settler:    NewSettler(store, log),
		Log:        log,
	}
	e.hooks = []CommitHook{NewPropagationHook(e.Propagator, log)}
	return e
}

// WithClock pins "today" for the engine and everything it owns.
func (e *Engine) WithClock(c Clock) *Engine {
	e.Clock = c
	e.Propagator.Clock = c
	for _, h := range e.hooks {
		if ph, ok := h.(*PropagationHook); ok {
			ph.Clock = c
		}
	}
	return e
}

// AddHook registers an additional post-commit hook.
func (e *Engine) AddHook(h CommitHook) {
	e.hooks = append(e.hooks, h)
}

func (e *Engine) today() Date { return e.Clock.today() }

func (e *Engine) publish(ctx context.Context, ev MovementCommitted) {
	for _, h := range e.hooks {
		h.MovementCommitted(ctx, ev)
	}
}

// requireItem loads an item and checks it belongs to the scope's org.
func (e *Engine) requireItem(ctx context.Context, scope Scope, itemID ItemID) (*Item, error) {
	item, err := e.Store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.Org != scope.Org {
		return nil, ErrScopeMismatch
	}
	return item, nil
}

func (e *Engine) rejectFuture(date Date) error {
	if date.After(e.today()) {
		return ErrFutureDate
	}
	return nil
}

// =============================================================================
// SALES
// =============================================================================

// SaleInput describes a manual sale. Batch narrows the availability check
// to one restocking delivery or opening-stock record.
type SaleInput struct {
	Scope        Scope
	ItemID       ItemID
	Date         Date
	Quantity     decimal.Decimal
	PricePerUnit decimal.Decimal
	TotalPrice   decimal.Decimal
	PaymentMode  string
	Description  string
	Batch        BatchRef
	RecordedBy   string
}

// RecordSale validates, runs the availability protocol, commits the sale,
// and publishes the post-commit event (which cascades for past dates).
func (e *Engine) RecordSale(ctx context.Context, in SaleInput) (*Movement, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if err := e.rejectFuture(in.Date); err != nil {
		return nil, err
	}
	if in.Batch.conflicting() {
		return nil, ErrConflictingBatchRefs
	}
	if _, err := e.requireItem(ctx, in.Scope, in.ItemID); err != nil {
		return nil, err
	}
	if err := e.verifyBatchOwnership(ctx, in.Scope, in.Batch); err != nil {
		return nil, err
	}

	paymentMode := in.PaymentMode
	if paymentMode == "" {
		paymentMode = "cash"
	}
	sale := Movement{
		ID:             MovementID(uuid.NewString()),
		Kind:           KindSale,
		Org:            in.Scope.Org,
		Branch:         in.Scope.Branch,
		ItemID:         in.ItemID,
		Date:           in.Date,
		Quantity:       in.Quantity,
		PricePerUnit:   in.PricePerUnit,
		TotalPrice:     in.TotalPrice,
		PaymentMode:    paymentMode,
		Source:         SaleSourceManual,
		RestockingID:   in.Batch.RestockingID,
		OpeningStockID: in.Batch.OpeningStockID,
		Description:    in.Description,
		RecordedBy:     in.RecordedBy,
		CreatedAt:      time.Now().UTC(),
	}

	err := e.Controller.Consume(ctx, ConsumeRequest{
		Scope:    in.Scope,
		ItemID:   in.ItemID,
		Date:     in.Date,
		Quantity: in.Quantity,
		Batch:    in.Batch,
		Insert: func(ctx context.Context, s Store) error {
			return s.InsertMovement(ctx, sale)
		},
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, MovementCommitted{Scope: in.Scope, ItemID: in.ItemID, Date: in.Date, Kind: KindSale})
	return &sale, nil
}

// DeleteSale removes a sale and republishes its scope/date so the cascade
// can repair subsequent days.
func (e *Engine) DeleteSale(ctx context.Context, id MovementID) error {
	sale, err := e.Store.GetMovement(ctx, id)
	if err != nil {
		return err
	}
	if sale == nil || sale.Kind != KindSale {
		return ErrMovementNotFound
	}
	if err := e.Store.DeleteMovement(ctx, id); err != nil {
		return err
	}
	e.publish(ctx, MovementCommitted{Scope: sale.Scope(), ItemID: sale.ItemID, Date: sale.Date, Kind: KindSale})
	return nil
}

// verifyBatchOwnership checks that a referenced batch belongs to the
// caller's organization and, when both sides name a branch, the same one.
func (e *Engine) verifyBatchOwnership(ctx context.Context, scope Scope, batch BatchRef) error {
	switch {
	case batch.RestockingID != nil:
		m, err := e.Store.GetMovement(ctx, *batch.RestockingID)
		if err != nil {
			return err
		}
		if m == nil || m.Kind != KindRestock {
			return ErrBatchNotFound
		}
		if m.Org != scope.Org {
			return ErrScopeMismatch
		}
		if scope.HasBranch() && m.Branch != nil && *m.Branch != *scope.Branch {
			return ErrScopeMismatch
		}
	case batch.OpeningStockID != nil:
		o, err := e.Store.GetOpeningStockByID(ctx, *batch.OpeningStockID)
		if err != nil {
			return err
		}
		if o == nil {
			return ErrBatchNotFound
		}
		if o.Org != scope.Org {
			return ErrScopeMismatch
		}
		if scope.HasBranch() && o.Branch != nil && *o.Branch != *scope.Branch {
			return ErrScopeMismatch
		}
	}
	return nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

// TransferInput moves stock between two branches of one organization.
type TransferInput struct {
	Org        OrgID
	ItemID     ItemID
	FromBranch BranchID
	ToBranch   BranchID
	Date       Date
	Quantity   decimal.Decimal
	Notes      string
	RecordedBy string
}

// CreateTransfer availability-checks the source branch, commits the
// transfer, and publishes events for both ledgers it touches.
func (e *Engine) CreateTransfer(ctx context.Context, in TransferInput) (*Movement, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if in.FromBranch == in.ToBranch {
		return nil, ErrSameBranch
	}
	if err := e.rejectFuture(in.Date); err != nil {
		return nil, err
	}
	source := NewBranchScope(in.Org, in.FromBranch)
	dest := NewBranchScope(in.Org, in.ToBranch)
	if _, err := e.requireItem(ctx, source, in.ItemID); err != nil {
		return nil, err
	}

	from, to := in.FromBranch, in.ToBranch
	transfer := Movement{
		ID:          MovementID(uuid.NewString()),
		Kind:        KindTransfer,
		Org:         in.Org,
		ItemID:      in.ItemID,
		Date:        in.Date,
		Quantity:    in.Quantity,
		FromBranch:  &from,
		ToBranch:    &to,
		Description: in.Notes,
		RecordedBy:  in.RecordedBy,
		CreatedAt:   time.Now().UTC(),
	}

	err := e.Controller.Consume(ctx, ConsumeRequest{
		Scope:    source,
		ItemID:   in.ItemID,
		Date:     in.Date,
		Quantity: in.Quantity,
		Insert: func(ctx context.Context, s Store) error {
			return s.InsertMovement(ctx, transfer)
		},
	})
	if err != nil {
		return nil, err
	}

	// A transfer mutates two independent ledgers; both must resettle.
	e.publish(ctx, MovementCommitted{Scope: source, ItemID: in.ItemID, Date: in.Date, Kind: KindTransfer})
	e.publish(ctx, MovementCommitted{Scope: dest, ItemID: in.ItemID, Date: in.Date, Kind: KindTransfer})
	return &transfer, nil
}

// =============================================================================
// RESTOCK / WASTE
// =============================================================================

// RestockInput is an inbound delivery.
type RestockInput struct {
	Scope      Scope
	ItemID     ItemID
	Date       Date
	Quantity   decimal.Decimal
	Notes      string
	RecordedBy string
}

// RecordRestock appends an inbound delivery. Inbound movements need no
// availability check.
func (e *Engine) RecordRestock(ctx context.Context, in RestockInput) (*Movement, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if err := e.rejectFuture(in.Date); err != nil {
		return nil, err
	}
	if _, err := e.requireItem(ctx, in.Scope, in.ItemID); err != nil {
		return nil, err
	}

	restock := Movement{
		ID:          MovementID(uuid.NewString()),
		Kind:        KindRestock,
		Org:         in.Scope.Org,
		Branch:      in.Scope.Branch,
		ItemID:      in.ItemID,
		Date:        in.Date,
		Quantity:    in.Quantity,
		Description: in.Notes,
		RecordedBy:  in.RecordedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.Store.InsertMovement(ctx, restock); err != nil {
		return nil, err
	}
	e.publish(ctx, MovementCommitted{Scope: in.Scope, ItemID: in.ItemID, Date: in.Date, Kind: KindRestock})
	return &restock, nil
}

// WasteInput is an outbound loss.
type WasteInput struct {
	Scope      Scope
	ItemID     ItemID
	Date       Date
	Quantity   decimal.Decimal
	Reason     string
	RecordedBy string
}

// RecordWaste appends an outbound loss. Waste is recorded as observed
// rather than availability-gated; the closing calculation clamps at zero.
func (e *Engine) RecordWaste(ctx context.Context, in WasteInput) (*Movement, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if err := e.rejectFuture(in.Date); err != nil {
		return nil, err
	}
	if _, err := e.requireItem(ctx, in.Scope, in.ItemID); err != nil {
		return nil, err
	}

	waste := Movement{
		ID:         MovementID(uuid.NewString()),
		Kind:       KindWaste,
		Org:        in.Scope.Org,
		Branch:     in.Scope.Branch,
		ItemID:     in.ItemID,
		Date:       in.Date,
		Quantity:   in.Quantity,
		Reason:     in.Reason,
		RecordedBy: in.RecordedBy,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.Store.InsertMovement(ctx, waste); err != nil {
		return nil, err
	}
	e.publish(ctx, MovementCommitted{Scope: in.Scope, ItemID: in.ItemID, Date: in.Date, Kind: KindWaste})
	return &waste, nil
}

// =============================================================================
// ISSUANCES / RETURNS
// =============================================================================

// IssuanceInput hands stock to a staff member.
type IssuanceInput struct {
	Scope      Scope
	ItemID     ItemID
	StaffID    StaffID
	Date       Date
	Quantity   decimal.Decimal
	RecordedBy string
}

// CreateIssuance records a staff reservation. It is not availability
// gated: issued stock is still on hand until settlement reconciles the
// unreturned residual into sales.
func (e *Engine) CreateIssuance(ctx context.Context, in IssuanceInput) (*Issuance, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if err := e.rejectFuture(in.Date); err != nil {
		return nil, err
	}
	if _, err := e.requireItem(ctx, in.Scope, in.ItemID); err != nil {
		return nil, err
	}

	iss := Issuance{
		ID:         IssuanceID(uuid.NewString()),
		Org:        in.Scope.Org,
		Branch:     in.Scope.Branch,
		ItemID:     in.ItemID,
		StaffID:    in.StaffID,
		Date:       in.Date,
		Quantity:   in.Quantity,
		RecordedBy: in.RecordedBy,
	}
	if err := e.Store.InsertIssuance(ctx, iss); err != nil {
		return nil, err
	}
	return &iss, nil
}

// ReturnInput hands stock back against an issuance. MoveToWaste converts
// the returned quantity straight into a waste record (damaged goods).
type ReturnInput struct {
	IssuanceID  IssuanceID
	Date        Date
	Quantity    decimal.Decimal
	Reason      string
	MoveToWaste bool
	RecordedBy  string
}

// RecordReturn validates the returns invariant and appends the return.
func (e *Engine) RecordReturn(ctx context.Context, in ReturnInput) (*Return, error) {
	if !in.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if err := e.rejectFuture(in.Date); err != nil {
		return nil, err
	}

	iss, err := e.Store.GetIssuance(ctx, in.IssuanceID)
	if err != nil {
		return nil, err
	}
	if iss == nil {
		return nil, ErrIssuanceNotFound
	}

	existing, err := e.Store.ReturnsFor(ctx, in.IssuanceID)
	if err != nil {
		return nil, err
	}
	remaining := iss.Quantity.Sub(sumReturns(existing))
	if in.Quantity.GreaterThan(remaining) {
		return nil, fmt.Errorf("%w: open balance is %s", ErrReturnExceedsIssued, remaining)
	}

	ret := Return{
		ID:         uuid.NewString(),
		IssuanceID: in.IssuanceID,
		Date:       in.Date,
		Quantity:   in.Quantity,
		Reason:     in.Reason,
		RecordedBy: in.RecordedBy,
	}
	if err := e.Store.InsertReturn(ctx, ret); err != nil {
		return nil, err
	}

	if in.MoveToWaste {
		if _, err := e.RecordWaste(ctx, WasteInput{
			Scope:      iss.Scope(),
			ItemID:     iss.ItemID,
			Date:       in.Date,
			Quantity:   in.Quantity,
			Reason:     fmt.Sprintf("Returned from issuance %s: %s", iss.ID, in.Reason),
			RecordedBy: in.RecordedBy,
		}); err != nil {
			return nil, err
		}
	}
	return &ret, nil
}

// SettleIssuances derives sales from a day's issuance residuals, then
// cascades if the day is in the past. Settlement itself never rejects for
// stock, and the cascade never fails the settlement.
func (e *Engine) SettleIssuances(ctx context.Context, scope Scope, date Date, recordedBy string) (SettlementResult, error) {
	if err := e.rejectFuture(date); err != nil {
		return SettlementResult{}, err
	}
	result, err := e.Settler.Settle(ctx, scope, date, recordedBy)
	if err != nil {
		return result, err
	}
	for _, sale := range result.Sales {
		e.publish(ctx, MovementCommitted{Scope: scope, ItemID: sale.ItemID, Date: date, Kind: KindSale})
	}
	return result, nil
}

// =============================================================================
// CLOSING STOCK
// =============================================================================

// EnterClosingStock writes a manual closing value: a sentinel that blocks
// recomputation for its day while still seeding the next day's opening.
func (e *Engine) EnterClosingStock(ctx context.Context, scope Scope, itemID ItemID, date Date, quantity decimal.Decimal, notes, recordedBy string) (*ClosingStock, error) {
	if quantity.IsNegative() {
		return nil, ErrInvalidQuantity
	}
	if err := e.rejectFuture(date); err != nil {
		return nil, err
	}
	if _, err := e.requireItem(ctx, scope, itemID); err != nil {
		return nil, err
	}

	manual := ClosingStock{
		ID:         uuid.NewString(),
		ItemID:     itemID,
		Org:        scope.Org,
		Branch:     scope.Branch,
		Date:       date,
		Quantity:   quantity,
		Source:     StockManual,
		Notes:      notes,
		RecordedBy: recordedBy,
	}
	if existing, err := e.Store.GetClosingStock(ctx, scope, itemID, date); err != nil {
		return nil, err
	} else if existing != nil {
		manual.ID = existing.ID
	}
	if err := e.Store.UpsertClosingStock(ctx, manual); err != nil {
		return nil, err
	}

	// The next day's opening derives from the manual value.
	if date.Before(e.today()) {
		if err := e.Propagator.Propagate(ctx, scope, date); err != nil && e.Log != nil {
			e.Log.WithError(err).Error("cascade after manual closing entry failed")
		}
	}
	return &manual, nil
}

// AutoSaveResult reports a bulk closing-stock pass.
type AutoSaveResult struct {
	RecordsSaved int
}

// AutoSaveClosingStock computes and saves closing stock for every item in
// the scope's organization for the given date, skipping manual sentinels,
// then forces a propagation pass so subsequent openings line up.
func (e *Engine) AutoSaveClosingStock(ctx context.Context, scope Scope, date Date, recordedBy string) (AutoSaveResult, error) {
	var result AutoSaveResult
	if err := e.rejectFuture(date); err != nil {
		return result, err
	}

	items, err := e.Store.ListItems(ctx, scope.Org)
	if err != nil {
		return result, err
	}
	for _, item := range items {
		existing, err := e.Store.GetClosingStock(ctx, scope, item.ID, date)
		if err != nil {
			return result, err
		}
		if existing != nil && existing.IsManual() {
			continue
		}
		d, err := e.Calc.Closing(ctx, scope, item.ID, date)
		if err != nil {
			return result, err
		}
		rec := ClosingStock{
			ID:         uuid.NewString(),
			ItemID:     item.ID,
			Org:        scope.Org,
			Branch:     scope.Branch,
			Date:       date,
			Quantity:   d.Closing,
			Source:     StockComputed,
			Notes:      d.Trace(),
			RecordedBy: recordedBy,
		}
		if existing != nil {
			rec.ID = existing.ID
		}
		if err := e.Store.UpsertClosingStock(ctx, rec); err != nil {
			return result, err
		}
		result.RecordsSaved++
	}

	// Best-effort forward sync; the save itself already succeeded.
	if err := e.Propagator.Propagate(ctx, scope, date); err != nil && e.Log != nil {
		e.Log.WithError(err).Error("cascade after auto-save failed")
	}
	return result, nil
}

// SaveItem creates or updates an item in the registry. Items have no
// quantity field; stock levels are always derived from the ledger.
func (e *Engine) SaveItem(ctx context.Context, item Item) (*Item, error) {
	if item.Name == "" {
		return nil, fmt.Errorf("item name is required")
	}
	if item.ID == "" {
		item.ID = ItemID(uuid.NewString())
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if err := e.Store.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Availability exposes the controller's availability figure, for display.
func (e *Engine) Availability(ctx context.Context, scope Scope, itemID ItemID, date Date, batch BatchRef) (decimal.Decimal, error) {
	if _, err := e.requireItem(ctx, scope, itemID); err != nil {
		return decimal.Zero, err
	}
	avail, _, err := e.Calc.Available(ctx, scope, itemID, date, batch)
	return avail, err
}
