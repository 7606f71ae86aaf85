/*
store.go - Persistence interface for movement records

PURPOSE:
  Defines the narrow capability set the engine needs from the movement
  store. The engine owns no storage; every operation receives a Store and
  never reads or writes outside the scope it was given.

KEY INTERFACES:
  Store:   movement/boundary/issuance/item queries and writes
  TxStore: optional atomic execution for the commit protocol

UNIQUENESS AS FENCING:
  The store's uniqueness constraints are the engine's only mutual-exclusion
  mechanism. InsertMovement and the upserts must surface duplicate-key
  failures as ErrUniquenessViolation so the availability controller can
  retry. No in-process locks are taken by the engine.

SCOPING:
  Every query takes a Scope. A nil-branch scope matches only records with
  no branch; it is never a wildcard over branches. Transfer queries are the
  one exception to single-scope reads: a transfer lives in two ledgers, so
  it is queried by direction relative to a concrete branch.

IMPLEMENTATIONS:
  - store/sqlite: production store (WAL, unique indexes)
  - ledger/store: in-memory fake for tests and development

SEE ALSO:
  - availability.go: how TxStore narrows the check-then-write window
*/
package ledger

import "context"

// Store is the movement store capability set. All reads are scoped; all
// writes stay inside the given record's scope.
type Store interface {
	// --- Movements ---

	// InsertMovement appends a movement. Duplicate keys (by ID or by any
	// store-level uniqueness constraint) surface as ErrUniquenessViolation.
	InsertMovement(ctx context.Context, m Movement) error

	// UpsertDerivedSale writes an issuance-derived sale keyed on
	// (item, date, org, branch, issuance). Re-running settlement for the
	// same day replaces rather than duplicates.
	UpsertDerivedSale(ctx context.Context, m Movement) error

	// GetMovement returns a movement by ID, or ErrMovementNotFound.
	GetMovement(ctx context.Context, id MovementID) (*Movement, error)

	// DeleteMovement removes a movement. Sales are the only deletable kind;
	// deletion triggers a cascade at the call site, not here.
	DeleteMovement(ctx context.Context, id MovementID) error

	// MovementsOn returns all movements of one kind for an item on a date
	// within a scope. Not valid for transfers; use the directional queries.
	MovementsOn(ctx context.Context, scope Scope, itemID ItemID, date Date, kind MovementKind) ([]Movement, error)

	// SalesForBatch returns the sales on a date drawing from one specific
	// batch (restocking delivery or opening-stock record).
	SalesForBatch(ctx context.Context, scope Scope, date Date, batch BatchRef) ([]Movement, error)

	// IncomingTransfers returns transfers arriving at branch for an item on
	// a date. OutgoingTransfers mirrors it for departures.
	IncomingTransfers(ctx context.Context, org OrgID, branch BranchID, itemID ItemID, date Date) ([]Movement, error)
	OutgoingTransfers(ctx context.Context, org OrgID, branch BranchID, itemID ItemID, date Date) ([]Movement, error)

	// --- Day boundaries ---

	// GetOpeningStock returns the opening record for (item, date, scope),
	// or nil if none exists.
	GetOpeningStock(ctx context.Context, scope Scope, itemID ItemID, date Date) (*OpeningStock, error)

	// GetOpeningStockByID resolves an opening-stock batch reference.
	GetOpeningStockByID(ctx context.Context, id string) (*OpeningStock, error)

	// UpsertOpeningStock writes an opening record keyed on
	// (item, date, org, branch).
	UpsertOpeningStock(ctx context.Context, o OpeningStock) error

	// GetClosingStock returns the closing record for (item, date, scope),
	// or nil if none exists.
	GetClosingStock(ctx context.Context, scope Scope, itemID ItemID, date Date) (*ClosingStock, error)

	// UpsertClosingStock writes a closing record keyed on
	// (item, date, org, branch). Sentinel checks happen in the engine, not
	// here: the store writes whatever it is handed.
	UpsertClosingStock(ctx context.Context, c ClosingStock) error

	// --- Issuances ---

	InsertIssuance(ctx context.Context, i Issuance) error
	GetIssuance(ctx context.Context, id IssuanceID) (*Issuance, error)
	IssuancesOn(ctx context.Context, scope Scope, date Date) ([]Issuance, error)
	InsertReturn(ctx context.Context, r Return) error
	ReturnsFor(ctx context.Context, issuanceID IssuanceID) ([]Return, error)

	// --- Items ---

	SaveItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, id ItemID) (*Item, error)
	ListItems(ctx context.Context, org OrgID) ([]Item, error)
}

// TxStore is an optional capability: stores that can execute a function
// atomically implement it, and the availability controller uses it to close
// the window between the final availability re-check and the insert. Stores
// without it fall back to the plain check-then-write sequence, which
// narrows but does not eliminate the race (the uniqueness constraint
// remains the backstop).
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view of the store. If fn
	// returns an error the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
