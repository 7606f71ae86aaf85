/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types returned to clients

VALIDATION:
  Request types carry validator struct tags; handlers run them through a
  shared validator instance before touching the engine. Validation
  failures are 400s with the offending field named.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/service.go: Engine inputs these map onto
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/tally/inventory-engine/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// scopeFields is embedded by every scoped request body.
type scopeFields struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	BranchID       string `json:"branch_id"`
}

func (s scopeFields) scope() ledger.Scope {
	if s.BranchID == "" {
		return ledger.NewScope(ledger.OrgID(s.OrganizationID))
	}
	return ledger.NewBranchScope(ledger.OrgID(s.OrganizationID), ledger.BranchID(s.BranchID))
}

// RecordSaleRequest records a manual sale.
type RecordSaleRequest struct {
	scopeFields
	ItemID         string          `json:"item_id" validate:"required"`
	Date           string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity       decimal.Decimal `json:"quantity" validate:"required"`
	PricePerUnit   decimal.Decimal `json:"price_per_unit"`
	PaymentMode    string          `json:"payment_mode"`
	RestockingID   string          `json:"restocking_id"`
	OpeningStockID string          `json:"opening_stock_id"`
	RecordedBy     string          `json:"recorded_by"`
}

// CreateTransferRequest moves stock between branches.
type CreateTransferRequest struct {
	OrganizationID string          `json:"organization_id" validate:"required"`
	ItemID         string          `json:"item_id" validate:"required"`
	Date           string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity       decimal.Decimal `json:"quantity" validate:"required"`
	FromBranchID   string          `json:"from_branch_id" validate:"required"`
	ToBranchID     string          `json:"to_branch_id" validate:"required"`
	RecordedBy     string          `json:"recorded_by"`
}

// RecordRestockRequest records incoming stock.
type RecordRestockRequest struct {
	scopeFields
	ItemID       string          `json:"item_id" validate:"required"`
	Date         string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity     decimal.Decimal `json:"quantity" validate:"required"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	RecordedBy   string          `json:"recorded_by"`
}

// RecordWasteRequest records spoilage or waste.
type RecordWasteRequest struct {
	scopeFields
	ItemID     string          `json:"item_id" validate:"required"`
	Date       string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required"`
	Reason     string          `json:"reason"`
	RecordedBy string          `json:"recorded_by"`
}

// CreateIssuanceRequest issues stock to a staff member.
type CreateIssuanceRequest struct {
	scopeFields
	ItemID     string          `json:"item_id" validate:"required"`
	StaffID    string          `json:"staff_id" validate:"required"`
	Date       string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required"`
	RecordedBy string          `json:"recorded_by"`
}

// RecordReturnRequest records unsold stock coming back from an issuance.
type RecordReturnRequest struct {
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	Reason      string          `json:"reason"`
	MoveToWaste bool            `json:"move_to_waste"`
	RecordedBy  string          `json:"recorded_by"`
}

// SettleIssuancesRequest settles a day's issuances into derived sales.
type SettleIssuancesRequest struct {
	scopeFields
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	RecordedBy string `json:"recorded_by"`
}

// EnterClosingStockRequest records a manually counted closing figure.
type EnterClosingStockRequest struct {
	scopeFields
	ItemID     string          `json:"item_id" validate:"required"`
	Date       string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity   decimal.Decimal `json:"quantity"`
	Notes      string          `json:"notes"`
	RecordedBy string          `json:"recorded_by"`
}

// AutoSaveRequest computes and persists closing stock for every item.
type AutoSaveRequest struct {
	scopeFields
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	RecordedBy string `json:"recorded_by"`
}

// SaveItemRequest creates or updates an item.
type SaveItemRequest struct {
	ID                string          `json:"id"`
	OrganizationID    string          `json:"organization_id" validate:"required"`
	Name              string          `json:"name" validate:"required"`
	Unit              string          `json:"unit"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// MovementDTO represents a stock movement in API responses.
type MovementDTO struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	OrganizationID string          `json:"organization_id"`
	BranchID       string          `json:"branch_id,omitempty"`
	ItemID         string          `json:"item_id"`
	Date           string          `json:"date"`
	Quantity       decimal.Decimal `json:"quantity"`
	PricePerUnit   decimal.Decimal `json:"price_per_unit"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	PaymentMode    string          `json:"payment_mode,omitempty"`
	Source         string          `json:"source,omitempty"`
	RestockingID   string          `json:"restocking_id,omitempty"`
	OpeningStockID string          `json:"opening_stock_id,omitempty"`
	IssuanceID     string          `json:"issuance_id,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	FromBranchID   string          `json:"from_branch_id,omitempty"`
	ToBranchID     string          `json:"to_branch_id,omitempty"`
	Description    string          `json:"description,omitempty"`
}

func movementDTO(m ledger.Movement) MovementDTO {
	dto := MovementDTO{
		ID:             string(m.ID),
		Kind:           string(m.Kind),
		OrganizationID: string(m.Org),
		ItemID:         string(m.ItemID),
		Date:           m.Date.String(),
		Quantity:       m.Quantity,
		PricePerUnit:   m.PricePerUnit,
		TotalPrice:     m.TotalPrice,
		PaymentMode:    m.PaymentMode,
		Source:         string(m.Source),
		Reason:         m.Reason,
		Description:    m.Description,
	}
	if m.Branch != nil {
		dto.BranchID = string(*m.Branch)
	}
	if m.RestockingID != nil {
		dto.RestockingID = string(*m.RestockingID)
	}
	if m.OpeningStockID != nil {
		dto.OpeningStockID = *m.OpeningStockID
	}
	if m.IssuanceID != nil {
		dto.IssuanceID = string(*m.IssuanceID)
	}
	if m.FromBranch != nil {
		dto.FromBranchID = string(*m.FromBranch)
	}
	if m.ToBranch != nil {
		dto.ToBranchID = string(*m.ToBranch)
	}
	return dto
}

// AvailabilityDTO reports available stock for an item.
type AvailabilityDTO struct {
	ItemID    string          `json:"item_id"`
	Date      string          `json:"date"`
	Available decimal.Decimal `json:"available_stock"`
	Info      string          `json:"info,omitempty"`
}

// IssuanceDTO represents an issuance in API responses.
type IssuanceDTO struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	BranchID       string          `json:"branch_id,omitempty"`
	ItemID         string          `json:"item_id"`
	StaffID        string          `json:"staff_id"`
	Date           string          `json:"date"`
	Quantity       decimal.Decimal `json:"quantity"`
}

func issuanceDTO(i ledger.Issuance) IssuanceDTO {
	dto := IssuanceDTO{
		ID:             string(i.ID),
		OrganizationID: string(i.Org),
		ItemID:         string(i.ItemID),
		StaffID:        string(i.StaffID),
		Date:           i.Date.String(),
		Quantity:       i.Quantity,
	}
	if i.Branch != nil {
		dto.BranchID = string(*i.Branch)
	}
	return dto
}

// SettlementDTO summarizes one settlement run.
type SettlementDTO struct {
	SalesCreated int           `json:"sales_created"`
	Sales        []MovementDTO `json:"sales"`
}

// ClosingStockDTO represents a saved closing stock record.
type ClosingStockDTO struct {
	ItemID   string          `json:"item_id"`
	Date     string          `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	Source   string          `json:"source"`
	Notes    string          `json:"notes,omitempty"`
}

// AutoSaveDTO summarizes one auto-save pass.
type AutoSaveDTO struct {
	RecordsSaved int    `json:"records_saved"`
	Date         string `json:"date"`
}

// ReportLineDTO is one item's row in the stock report.
type ReportLineDTO struct {
	ItemID        string          `json:"item_id"`
	ItemName      string          `json:"item_name"`
	ItemUnit      string          `json:"item_unit,omitempty"`
	Opening       decimal.Decimal `json:"opening_stock"`
	OpeningSource string          `json:"opening_source"`
	Restocking    decimal.Decimal `json:"restocking"`
	Sales         decimal.Decimal `json:"sales"`
	Waste         decimal.Decimal `json:"waste"`
	Closing       decimal.Decimal `json:"closing_stock"`
	ClosingSource string          `json:"closing_source"`
}

// ItemDTO represents an item in API responses.
type ItemDTO struct {
	ID                string          `json:"id"`
	OrganizationID    string          `json:"organization_id"`
	Name              string          `json:"name"`
	Unit              string          `json:"unit,omitempty"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
}

func itemDTO(i ledger.Item) ItemDTO {
	return ItemDTO{
		ID:                string(i.ID),
		OrganizationID:    string(i.Org),
		Name:              i.Name,
		Unit:              i.Unit,
		CostPrice:         i.CostPrice,
		SellingPrice:      i.SellingPrice,
		LowStockThreshold: i.LowStockThreshold,
	}
}

// ErrorDTO is the error envelope for non-2xx responses. AvailableStock
// is set on insufficient-stock and conflict responses so clients can
// show the shortfall without a second round trip.
type ErrorDTO struct {
	Error          string           `json:"error"`
	Detail         string           `json:"detail,omitempty"`
	AvailableStock *decimal.Decimal `json:"available_stock,omitempty"`
}
