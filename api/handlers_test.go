package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally/inventory-engine/api"
	"github.com/tally/inventory-engine/ledger"
	"github.com/tally/inventory-engine/ledger/store"
)

func newTestServer(t *testing.T, today ledger.Date) *httptest.Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	mem := store.NewMemory()
	engine := ledger.NewEngine(mem, log).WithClock(ledger.FixedClock(today))
	engine.Controller.BackoffBase = time.Millisecond

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(engine, log), []string{"*"}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body map[string]any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createItem(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/items", map[string]any{
		"organization_id": "org-1",
		"name":            name,
		"unit":            "kg",
		"selling_price":   "2.50",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	return body["id"].(string)
}

func TestAPI_RestockThenSale(t *testing.T) {
	today := ledger.NewDate(2024, time.March, 12)
	srv := newTestServer(t, today)
	itemID := createItem(t, srv, "Rice")

	resp := postJSON(t, srv.URL+"/api/restocks", map[string]any{
		"organization_id": "org-1",
		"item_id":         itemID,
		"date":            "2024-03-12",
		"quantity":        "20",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/sales", map[string]any{
		"organization_id": "org-1",
		"item_id":         itemID,
		"date":            "2024-03-12",
		"quantity":        "8",
		"price_per_unit":  "2.50",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "sale", body["kind"])
	assert.Equal(t, "8", body["quantity"])
	assert.Equal(t, "20", body["total_price"])
}

func TestAPI_InsufficientStockCarriesAvailableFigure(t *testing.T) {
	today := ledger.NewDate(2024, time.March, 12)
	srv := newTestServer(t, today)
	itemID := createItem(t, srv, "Rice")

	resp := postJSON(t, srv.URL+"/api/restocks", map[string]any{
		"organization_id": "org-1",
		"item_id":         itemID,
		"date":            "2024-03-12",
		"quantity":        "10",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/sales", map[string]any{
		"organization_id": "org-1",
		"item_id":         itemID,
		"date":            "2024-03-12",
		"quantity":        "15",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Insufficient stock", body["error"])
	assert.Equal(t, "10", body["available_stock"])
}

func TestAPI_ValidationFailure(t *testing.T) {
	srv := newTestServer(t, ledger.NewDate(2024, time.March, 12))

	// organization_id missing
	resp := postJSON(t, srv.URL+"/api/sales", map[string]any{
		"item_id":  "item-1",
		"date":     "2024-03-12",
		"quantity": "1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Validation failed", body["error"])
}

func TestAPI_UnknownItemIs404(t *testing.T) {
	srv := newTestServer(t, ledger.NewDate(2024, time.March, 12))

	resp, err := http.Get(srv.URL + "/api/items/no-such-item")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_IssuanceSettlementFlow(t *testing.T) {
	today := ledger.NewDate(2024, time.March, 12)
	srv := newTestServer(t, today)
	itemID := createItem(t, srv, "Rice")

	resp := postJSON(t, srv.URL+"/api/issuances", map[string]any{
		"organization_id": "org-1",
		"item_id":         itemID,
		"staff_id":        "staff-maria",
		"date":            "2024-03-12",
		"quantity":        "10",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	issuanceID := decodeBody(t, resp)["id"].(string)

	resp = postJSON(t, fmt.Sprintf("%s/api/issuances/%s/returns", srv.URL, issuanceID), map[string]any{
		"date":     "2024-03-12",
		"quantity": "3",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/issuances/settle", map[string]any{
		"organization_id": "org-1",
		"date":            "2024-03-12",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["sales_created"])

	sales := body["sales"].([]any)
	require.Len(t, sales, 1)
	sale := sales[0].(map[string]any)
	assert.Equal(t, "7", sale["quantity"])
	assert.Equal(t, "issuance", sale["source"])
}

func TestAPI_StockReport(t *testing.T) {
	today := ledger.NewDate(2024, time.March, 12)
	srv := newTestServer(t, today)
	itemID := createItem(t, srv, "Rice")

	resp := postJSON(t, srv.URL+"/api/restocks", map[string]any{
		"organization_id": "org-1",
		"item_id":         itemID,
		"date":            "2024-03-12",
		"quantity":        "20",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/stock/report?organization_id=org-1&date=2024-03-12")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var lines []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lines))
	resp.Body.Close()
	require.Len(t, lines, 1)
	assert.Equal(t, itemID, lines[0]["item_id"])
	assert.Equal(t, "20", lines[0]["closing_stock"])
}

func TestAPI_AvailabilityQuery(t *testing.T) {
	today := ledger.NewDate(2024, time.March, 12)
	srv := newTestServer(t, today)
	itemID := createItem(t, srv, "Rice")

	resp := postJSON(t, srv.URL+"/api/restocks", map[string]any{
		"organization_id": "org-1",
		"item_id":         itemID,
		"date":            "2024-03-12",
		"quantity":        "12",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/stock/availability?organization_id=org-1&item_id=" + itemID + "&date=2024-03-12")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "12", body["available_stock"])
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := newTestServer(t, ledger.NewDate(2024, time.March, 12))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
