/*
handlers.go - HTTP API handlers for the inventory ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Sales:
    POST   /api/sales                    Record a manual sale
    DELETE /api/sales/{id}               Delete a sale (cascades)

  Transfers:
    POST   /api/transfers                Move stock between branches

  Movements:
    POST   /api/restocks                 Record an inbound delivery
    POST   /api/waste                    Record spoilage/waste

  Issuances:
    POST   /api/issuances                Issue stock to staff
    POST   /api/issuances/{id}/returns   Record a return
    POST   /api/issuances/settle         Settle a day into derived sales

  Stock:
    GET    /api/stock/availability       Available stock for an item
    POST   /api/stock/closing            Manual closing entry
    POST   /api/stock/closing/auto-save  Bulk end-of-day save
    GET    /api/stock/report             Per-item day summary

  Items:
    GET    /api/items                    List items for an org
    POST   /api/items                    Create/update an item
    GET    /api/items/{id}               Get item details

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, insufficient stock, bad input
  - 404: Referenced record not found
  - 409: Stock conflict (margin gone between check and commit);
         the body carries available_stock so clients can re-offer
  - 500: Internal errors, retry exhaustion

SECURITY NOTE:
  No authentication middleware. Scope resolution (org/branch) is taken
  from the request body or query; authorization belongs upstream.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/tally/inventory-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ledger.Engine
	Log      *logrus.Logger
	validate *validator.Validate
}

// NewHandler creates a new handler around an engine.
func NewHandler(engine *ledger.Engine, log *logrus.Logger) *Handler {
	return &Handler{
		Engine:   engine,
		Log:      log,
		validate: validator.New(),
	}
}

// decodeAndValidate parses the JSON body into dst and runs struct
// validation. On failure it writes the 400 and reports false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func parseDate(w http.ResponseWriter, raw string) (ledger.Date, bool) {
	d, err := ledger.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD", err)
		return ledger.Date{}, false
	}
	return d, true
}

func batchRef(restockingID, openingStockID string) ledger.BatchRef {
	var batch ledger.BatchRef
	if restockingID != "" {
		rid := ledger.MovementID(restockingID)
		batch.RestockingID = &rid
	}
	if openingStockID != "" {
		oid := openingStockID
		batch.OpeningStockID = &oid
	}
	return batch
}

// =============================================================================
// SALES
// =============================================================================

// RecordSale handles POST /api/sales.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	sale, err := h.Engine.RecordSale(r.Context(), ledger.SaleInput{
		Scope:        req.scope(),
		ItemID:       ledger.ItemID(req.ItemID),
		Date:         date,
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		TotalPrice:   req.Quantity.Mul(req.PricePerUnit),
		PaymentMode:  req.PaymentMode,
		Batch:        batchRef(req.RestockingID, req.OpeningStockID),
		RecordedBy:   req.RecordedBy,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movementDTO(*sale))
}

// DeleteSale handles DELETE /api/sales/{id}.
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id := ledger.MovementID(chi.URLParam(r, "id"))
	if err := h.Engine.DeleteSale(r.Context(), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// TRANSFERS
// =============================================================================

// CreateTransfer handles POST /api/transfers.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	transfer, err := h.Engine.CreateTransfer(r.Context(), ledger.TransferInput{
		Org:        ledger.OrgID(req.OrganizationID),
		ItemID:     ledger.ItemID(req.ItemID),
		FromBranch: ledger.BranchID(req.FromBranchID),
		ToBranch:   ledger.BranchID(req.ToBranchID),
		Date:       date,
		Quantity:   req.Quantity,
		RecordedBy: req.RecordedBy,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movementDTO(*transfer))
}

// =============================================================================
// RESTOCK / WASTE
// =============================================================================

// RecordRestock handles POST /api/restocks.
func (h *Handler) RecordRestock(w http.ResponseWriter, r *http.Request) {
	var req RecordRestockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	restock, err := h.Engine.RecordRestock(r.Context(), ledger.RestockInput{
		Scope:      req.scope(),
		ItemID:     ledger.ItemID(req.ItemID),
		Date:       date,
		Quantity:   req.Quantity,
		RecordedBy: req.RecordedBy,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movementDTO(*restock))
}

// RecordWaste handles POST /api/waste.
func (h *Handler) RecordWaste(w http.ResponseWriter, r *http.Request) {
	var req RecordWasteRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	waste, err := h.Engine.RecordWaste(r.Context(), ledger.WasteInput{
		Scope:      req.scope(),
		ItemID:     ledger.ItemID(req.ItemID),
		Date:       date,
		Quantity:   req.Quantity,
		Reason:     req.Reason,
		RecordedBy: req.RecordedBy,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, movementDTO(*waste))
}

// =============================================================================
// ISSUANCES
// =============================================================================

// CreateIssuance handles POST /api/issuances.
func (h *Handler) CreateIssuance(w http.ResponseWriter, r *http.Request) {
	var req CreateIssuanceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	iss, err := h.Engine.CreateIssuance(r.Context(), ledger.IssuanceInput{
		Scope:      req.scope(),
		ItemID:     ledger.ItemID(req.ItemID),
		StaffID:    ledger.StaffID(req.StaffID),
		Date:       date,
		Quantity:   req.Quantity,
		RecordedBy: req.RecordedBy,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issuanceDTO(*iss))
}

// RecordReturn handles POST /api/issuances/{id}/returns.
func (h *Handler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	var req RecordReturnRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	ret, err := h.Engine.RecordReturn(r.Context(), ledger.ReturnInput{
		IssuanceID:  ledger.IssuanceID(chi.URLParam(r, "id")),
		Date:        date,
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		MoveToWaste: req.MoveToWaste,
		RecordedBy:  req.RecordedBy,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          ret.ID,
		"issuance_id": string(ret.IssuanceID),
		"date":        ret.Date.String(),
		"quantity":    ret.Quantity,
	})
}

// SettleIssuances handles POST /api/issuances/settle.
func (h *Handler) SettleIssuances(w http.ResponseWriter, r *http.Request) {
	var req SettleIssuancesRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	result, err := h.Engine.SettleIssuances(r.Context(), req.scope(), date, req.RecordedBy)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dto := SettlementDTO{SalesCreated: result.SalesCreated, Sales: make([]MovementDTO, len(result.Sales))}
	for i, sale := range result.Sales {
		dto.Sales[i] = movementDTO(sale)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// STOCK
// =============================================================================

// GetAvailability handles GET /api/stock/availability.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	org := q.Get("organization_id")
	itemID := q.Get("item_id")
	if org == "" || itemID == "" {
		writeError(w, http.StatusBadRequest, "organization_id and item_id are required", nil)
		return
	}
	date, ok := parseDate(w, q.Get("date"))
	if !ok {
		return
	}

	scope := ledger.NewScope(ledger.OrgID(org))
	if b := q.Get("branch_id"); b != "" {
		scope = ledger.NewBranchScope(ledger.OrgID(org), ledger.BranchID(b))
	}

	avail, err := h.Engine.Availability(r.Context(), scope, ledger.ItemID(itemID), date,
		batchRef(q.Get("restocking_id"), q.Get("opening_stock_id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{
		ItemID:    itemID,
		Date:      date.String(),
		Available: avail,
	})
}

// EnterClosingStock handles POST /api/stock/closing.
func (h *Handler) EnterClosingStock(w http.ResponseWriter, r *http.Request) {
	var req EnterClosingStockRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	rec, err := h.Engine.EnterClosingStock(r.Context(), req.scope(),
		ledger.ItemID(req.ItemID), date, req.Quantity, req.Notes, req.RecordedBy)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ClosingStockDTO{
		ItemID:   string(rec.ItemID),
		Date:     rec.Date.String(),
		Quantity: rec.Quantity,
		Source:   string(rec.Source),
		Notes:    rec.Notes,
	})
}

// AutoSaveClosingStock handles POST /api/stock/closing/auto-save.
func (h *Handler) AutoSaveClosingStock(w http.ResponseWriter, r *http.Request) {
	var req AutoSaveRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date)
	if !ok {
		return
	}

	result, err := h.Engine.AutoSaveClosingStock(r.Context(), req.scope(), date, req.RecordedBy)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AutoSaveDTO{RecordsSaved: result.RecordsSaved, Date: date.String()})
}

// GetStockReport handles GET /api/stock/report.
func (h *Handler) GetStockReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	org := q.Get("organization_id")
	if org == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required", nil)
		return
	}
	date, ok := parseDate(w, q.Get("date"))
	if !ok {
		return
	}

	scope := ledger.NewScope(ledger.OrgID(org))
	if b := q.Get("branch_id"); b != "" {
		scope = ledger.NewBranchScope(ledger.OrgID(org), ledger.BranchID(b))
	}

	lines, err := h.Engine.StockReport(r.Context(), scope, date)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]ReportLineDTO, len(lines))
	for i, line := range lines {
		dtos[i] = ReportLineDTO{
			ItemID:        string(line.ItemID),
			ItemName:      line.ItemName,
			ItemUnit:      line.ItemUnit,
			Opening:       line.Opening,
			OpeningSource: string(line.OpeningSource),
			Restocking:    line.Restocking,
			Sales:         line.Sales,
			Waste:         line.Waste,
			Closing:       line.Closing,
			ClosingSource: string(line.ClosingSource),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ITEMS
// =============================================================================

// SaveItem handles POST /api/items.
func (h *Handler) SaveItem(w http.ResponseWriter, r *http.Request) {
	var req SaveItemRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	item, err := h.Engine.SaveItem(r.Context(), ledger.Item{
		ID:                ledger.ItemID(req.ID),
		Org:               ledger.OrgID(req.OrganizationID),
		Name:              req.Name,
		Unit:              req.Unit,
		CostPrice:         req.CostPrice,
		SellingPrice:      req.SellingPrice,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, itemDTO(*item))
}

// GetItem handles GET /api/items/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Engine.Store.GetItem(r.Context(), ledger.ItemID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load item", err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "Item not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, itemDTO(*item))
}

// ListItems handles GET /api/items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	org := r.URL.Query().Get("organization_id")
	if org == "" {
		writeError(w, http.StatusBadRequest, "organization_id is required", nil)
		return
	}
	items, err := h.Engine.Store.ListItems(r.Context(), ledger.OrgID(org))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}
	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = itemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	dto := ErrorDTO{Error: msg}
	if err != nil {
		dto.Detail = err.Error()
	}
	writeJSON(w, status, dto)
}

// writeEngineError maps engine errors onto HTTP statuses. Insufficient
// stock and conflicts carry available_stock in the body.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var insufficient *ledger.InsufficientStockError
	if errors.As(err, &insufficient) {
		avail := insufficient.Available
		writeJSON(w, http.StatusBadRequest, ErrorDTO{
			Error:          "Insufficient stock",
			Detail:         err.Error(),
			AvailableStock: &avail,
		})
		return
	}

	var conflict *ledger.ConflictError
	if errors.As(err, &conflict) {
		avail := conflict.Available
		writeJSON(w, http.StatusConflict, ErrorDTO{
			Error:          "Stock changed, please retry",
			Detail:         err.Error(),
			AvailableStock: &avail,
		})
		return
	}

	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict, please retry", err)
	default:
		if h.Log != nil {
			h.Log.WithError(err).Error("request failed")
		}
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
