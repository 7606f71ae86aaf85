package ledger_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tally/inventory-engine/ledger"
	"github.com/tally/inventory-engine/ledger/store"
)

// =============================================================================
// SHARED TEST FIXTURES
// =============================================================================

const (
	testOrg    = ledger.OrgID("org-1")
	testItem   = ledger.ItemID("item-rice")
	testBranch = ledger.BranchID("branch-main")
)

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(year int, month time.Month, d int) ledger.Date {
	return ledger.NewDate(year, month, d)
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestEngine wires an engine over a fresh in-memory store with "today"
// pinned, and the retry backoff shortened so tests don't sleep.
func newTestEngine(t *testing.T, today ledger.Date) (*ledger.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	engine := ledger.NewEngine(mem, quietLog()).WithClock(ledger.FixedClock(today))
	engine.Controller.BackoffBase = time.Millisecond
	return engine, mem
}

func seedItem(t *testing.T, s ledger.Store, id ledger.ItemID, sellingPrice string) {
	t.Helper()
	err := s.SaveItem(context.Background(), ledger.Item{
		ID:           id,
		Org:          testOrg,
		Name:         string(id),
		Unit:         "kg",
		SellingPrice: qty(sellingPrice),
	})
	if err != nil {
		t.Fatalf("seed item %s: %v", id, err)
	}
}

func branchPtr(b ledger.BranchID) *ledger.BranchID { return &b }

// insertMovement writes a raw movement row, bypassing engine validation.
func insertMovement(t *testing.T, s ledger.Store, m ledger.Movement) {
	t.Helper()
	if err := s.InsertMovement(context.Background(), m); err != nil {
		t.Fatalf("insert movement %s: %v", m.ID, err)
	}
}

func assertDecimal(t *testing.T, got decimal.Decimal, want string, msg string) {
	t.Helper()
	if !got.Equal(qty(want)) {
		t.Errorf("%s: got %s, want %s", msg, got, want)
	}
}
