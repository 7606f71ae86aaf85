/*
Package ledger implements the inventory ledger engine: closing-stock
calculation, forward cascade of corrections, availability-guarded writes,
and issuance settlement.

PURPOSE:
  Every quantity a location holds is derived from an append-mostly set of
  movement events (opening stock, restocking, sales, waste, transfers,
  issuances, returns), each scoped to (organization, branch?, item, date).
  There is no item-level "current quantity" field; the ledger is the only
  source of truth.

KEY CONCEPTS IN THIS FILE (types.go):
  - Scope: the (organization, branch?) pair all computations are keyed by.
    A nil branch is a distinct scope, never a wildcard.
  - Movement: a single dated stock event (restock, sale, waste, transfer).
  - OpeningStock / ClosingStock: per-day boundary records. ClosingStock is
    a tagged value: Manual entries are sentinels that block recomputation,
    Computed entries carry their derivation trace.
  - Issuance / Return: the staff reservation channel that settlement later
    reconciles into sales.

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all quantities and prices, never float.
  2. Explicit scoping: every query carries a Scope; the engine never reads
     or writes outside the scope it was given.
  3. Storage-agnostic: the engine talks to a narrow Store interface and is
     exercised against an in-memory fake in tests.

SEE ALSO:
  - calculator.go: closing-stock derivation
  - cascade.go:    forward propagation of corrections
  - availability.go: compute-verify-commit for stock-consuming writes
  - settlement.go: issued-minus-returned reconciliation
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OrgID string
type BranchID string
type ItemID string
type StaffID string
type MovementID string
type IssuanceID string

// =============================================================================
// SCOPE - (organization, branch?) pair with defined equality
// =============================================================================

// Scope identifies whose ledger a computation runs against. Branch is nil
// for organizations with no branches; that is a real scope of its own and
// is never merged with any branch's data.
type Scope struct {
	Org    OrgID
	Branch *BranchID
}

func NewScope(org OrgID) Scope {
	return Scope{Org: org}
}

func NewBranchScope(org OrgID, branch BranchID) Scope {
	return Scope{Org: org, Branch: &branch}
}

func (s Scope) HasBranch() bool { return s.Branch != nil }

// BranchKey returns the branch component as a comparable string, with ""
// standing for the no-branch scope. Stores use it as part of composite keys.
func (s Scope) BranchKey() string {
	if s.Branch == nil {
		return ""
	}
	return string(*s.Branch)
}

func (s Scope) Equal(other Scope) bool {
	return s.Org == other.Org && s.BranchKey() == other.BranchKey()
}

func (s Scope) String() string {
	if s.Branch == nil {
		return string(s.Org)
	}
	return string(s.Org) + "/" + string(*s.Branch)
}

// =============================================================================
// MOVEMENT - A single dated stock event
// =============================================================================

type MovementKind string

const (
	KindRestock  MovementKind = "restocking"
	KindSale     MovementKind = "sale"
	KindWaste    MovementKind = "waste_spoilage"
	KindTransfer MovementKind = "branch_transfer"
)

// SaleSource distinguishes manually recorded sales from sales derived by
// issuance settlement.
type SaleSource string

const (
	SaleSourceManual   SaleSource = "manual"
	SaleSourceIssuance SaleSource = "issuance"
)

// Movement is one stock event. Kind determines which optional fields are
// meaningful:
//
//	restocking:      Quantity inbound at Scope
//	sale:            Quantity outbound; price fields, Source, optional
//	                 batch link (RestockingID or OpeningStockID), and
//	                 IssuanceID when Source is issuance
//	waste_spoilage:  Quantity outbound; Reason
//	branch_transfer: Quantity outbound at FromBranch, inbound at ToBranch;
//	                 Branch on the movement itself is unused
type Movement struct {
	ID       MovementID
	Kind     MovementKind
	Org      OrgID
	Branch   *BranchID
	ItemID   ItemID
	Date     Date
	Quantity decimal.Decimal

	// Sale fields
	PricePerUnit   decimal.Decimal
	TotalPrice     decimal.Decimal
	PaymentMode    string
	Source         SaleSource
	RestockingID   *MovementID
	OpeningStockID *string
	IssuanceID     *IssuanceID

	// Waste fields
	Reason string

	// Transfer fields
	FromBranch *BranchID
	ToBranch   *BranchID

	Description string
	RecordedBy  string
	CreatedAt   time.Time
}

// Scope returns the (org, branch) pair this movement belongs to. Transfers
// have no single scope; use SourceScope/DestScope instead.
func (m Movement) Scope() Scope {
	return Scope{Org: m.Org, Branch: m.Branch}
}

// SourceScope is the branch a transfer leaves from.
func (m Movement) SourceScope() Scope {
	return Scope{Org: m.Org, Branch: m.FromBranch}
}

// DestScope is the branch a transfer arrives at.
func (m Movement) DestScope() Scope {
	return Scope{Org: m.Org, Branch: m.ToBranch}
}

// BatchRef names the specific inbound batch a sale draws from: either a
// restocking delivery or an explicit opening-stock record, never both.
type BatchRef struct {
	RestockingID   *MovementID
	OpeningStockID *string
}

func (b BatchRef) IsZero() bool {
	return b.RestockingID == nil && b.OpeningStockID == nil
}

func (b BatchRef) conflicting() bool {
	return b.RestockingID != nil && b.OpeningStockID != nil
}

// =============================================================================
// OPENING / CLOSING STOCK - Per-day boundary records
// =============================================================================

// StockSource tags how a boundary record came to exist. Manual records are
// sentinels: the cascade never overwrites a manual value, it only reads it.
type StockSource string

const (
	StockManual   StockSource = "manual"
	StockComputed StockSource = "computed" // closing: written by the calculator
	StockDerived  StockSource = "derived"  // opening: carried from prior closing
)

// OpeningStock is the quantity on hand at the start of a day. At most one
// record exists per (item, date, scope).
type OpeningStock struct {
	ID         string
	ItemID     ItemID
	Org        OrgID
	Branch     *BranchID
	Date       Date
	Quantity   decimal.Decimal
	Source     StockSource // manual or derived
	RecordedBy string
}

func (o OpeningStock) Scope() Scope   { return Scope{Org: o.Org, Branch: o.Branch} }
func (o OpeningStock) IsManual() bool { return o.Source == StockManual }

// ClosingStock is the quantity on hand at the end of a day. Computed rows
// carry the derivation trace in Notes; Manual rows block recomputation for
// their day while still seeding the next day's opening.
type ClosingStock struct {
	ID         string
	ItemID     ItemID
	Org        OrgID
	Branch     *BranchID
	Date       Date
	Quantity   decimal.Decimal
	Source     StockSource // manual or computed
	Notes      string
	RecordedBy string
}

func (c ClosingStock) Scope() Scope   { return Scope{Org: c.Org, Branch: c.Branch} }
func (c ClosingStock) IsManual() bool { return c.Source == StockManual }

// =============================================================================
// ISSUANCE / RETURN - The staff reservation channel
// =============================================================================

// Issuance records stock handed to a staff member, pending reconciliation.
// Issued stock stays on hand in the ledger until settlement moves the
// unreturned residual into sales, so neither creation nor settlement runs
// an availability check.
type Issuance struct {
	ID          IssuanceID
	Org         OrgID
	Branch      *BranchID
	ItemID      ItemID
	StaffID     StaffID
	Date        Date
	Quantity    decimal.Decimal
	ConfirmedAt *time.Time
	RecordedBy  string
}

func (i Issuance) Scope() Scope { return Scope{Org: i.Org, Branch: i.Branch} }

// Return records stock handed back against an issuance.
// Invariant: sum of returns for an issuance never exceeds its quantity.
type Return struct {
	ID         string
	IssuanceID IssuanceID
	Date       Date
	Quantity   decimal.Decimal
	Reason     string
	RecordedBy string
}

// =============================================================================
// ITEM - A tracked SKU
// =============================================================================

// Item is a tracked SKU. Note the deliberate absence of a quantity field:
// stock on hand is always derived from the ledger.
type Item struct {
	ID                ItemID
	Org               OrgID
	Name              string
	Unit              string
	CostPrice         decimal.Decimal
	SellingPrice      decimal.Decimal
	LowStockThreshold decimal.Decimal
	CreatedAt         time.Time
}
