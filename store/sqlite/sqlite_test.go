package sqlite_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tally/inventory-engine/ledger"
	"github.com/tally/inventory-engine/store/sqlite"
)

const testOrg = ledger.OrgID("org-1")

func logrusDiscard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func qty(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mv(id string, kind ledger.MovementKind, quantity string, date ledger.Date) ledger.Movement {
	return ledger.Movement{
		ID: ledger.MovementID(id), Kind: kind, Org: testOrg,
		ItemID: "item-1", Date: date, Quantity: qty(quantity),
	}
}

func TestSQLite_MovementRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	date := ledger.NewDate(2024, time.March, 10)

	restockID := ledger.MovementID("m-restock")
	m := mv("m-sale", ledger.KindSale, "5.25", date)
	m.PricePerUnit = qty("2.50")
	m.TotalPrice = qty("13.125")
	m.PaymentMode = "cash"
	m.Source = ledger.SaleSourceManual
	m.RestockingID = &restockID
	m.RecordedBy = "tester"

	if err := s.InsertMovement(ctx, m); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMovement(ctx, "m-sale")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("movement not found after insert")
	}
	if !got.Quantity.Equal(qty("5.25")) {
		t.Errorf("quantity: got %s, want 5.25", got.Quantity)
	}
	if got.RestockingID == nil || *got.RestockingID != restockID {
		t.Error("restocking link lost in round trip")
	}
	if !got.Date.Equal(date) {
		t.Errorf("date: got %s, want %s", got.Date, date)
	}
}

func TestSQLite_DuplicateIDIsUniquenessViolation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	date := ledger.NewDate(2024, time.March, 10)

	if err := s.InsertMovement(ctx, mv("m-1", ledger.KindSale, "5", date)); err != nil {
		t.Fatal(err)
	}
	err := s.InsertMovement(ctx, mv("m-1", ledger.KindSale, "5", date))
	if !errors.Is(err, ledger.ErrUniquenessViolation) {
		t.Errorf("expected ErrUniquenessViolation, got %v", err)
	}
}

func TestSQLite_DerivedSaleUpsert(t *testing.T) {
	// GIVEN: a derived sale for an issuance
	// WHEN:  settlement reruns with a new quantity for the same key
	// THEN:  the row is replaced, not duplicated

	ctx := context.Background()
	s := newStore(t)
	date := ledger.NewDate(2024, time.March, 10)
	scope := ledger.NewScope(testOrg)
	iss := ledger.IssuanceID("iss-1")

	first := mv("m-1", ledger.KindSale, "7", date)
	first.Source = ledger.SaleSourceIssuance
	first.IssuanceID = &iss
	if err := s.UpsertDerivedSale(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := mv("m-2", ledger.KindSale, "6", date)
	second.Source = ledger.SaleSourceIssuance
	second.IssuanceID = &iss
	if err := s.UpsertDerivedSale(ctx, second); err != nil {
		t.Fatal(err)
	}

	sales, err := s.MovementsOn(ctx, scope, "item-1", date, ledger.KindSale)
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 1 {
		t.Fatalf("got %d derived sales, want 1", len(sales))
	}
	if !sales[0].Quantity.Equal(qty("6")) {
		t.Errorf("quantity after upsert: got %s, want 6", sales[0].Quantity)
	}
}

func TestSQLite_ClosingStockUpsertKey(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	date := ledger.NewDate(2024, time.March, 10)
	scope := ledger.NewScope(testOrg)

	rec := ledger.ClosingStock{
		ID: "c-1", ItemID: "item-1", Org: testOrg, Date: date,
		Quantity: qty("20"), Source: ledger.StockComputed,
	}
	if err := s.UpsertClosingStock(ctx, rec); err != nil {
		t.Fatal(err)
	}

	rec.Quantity = qty("17")
	rec.Source = ledger.StockManual
	rec.Notes = "physical count"
	if err := s.UpsertClosingStock(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetClosingStock(ctx, scope, "item-1", date)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Quantity.Equal(qty("17")) || got.Source != ledger.StockManual {
		t.Errorf("upsert did not replace: %+v", got)
	}
}

func TestSQLite_BranchScopesDoNotCollide(t *testing.T) {
	// GIVEN: closing records for the same item/date at org level and in a
	//        branch
	// WHEN:  both are saved
	// THEN:  they are distinct rows, each readable under its own scope

	ctx := context.Background()
	s := newStore(t)
	date := ledger.NewDate(2024, time.March, 10)
	branch := ledger.BranchID("branch-a")

	if err := s.UpsertClosingStock(ctx, ledger.ClosingStock{
		ID: "c-org", ItemID: "item-1", Org: testOrg, Date: date,
		Quantity: qty("10"), Source: ledger.StockComputed,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertClosingStock(ctx, ledger.ClosingStock{
		ID: "c-branch", ItemID: "item-1", Org: testOrg, Branch: &branch, Date: date,
		Quantity: qty("4"), Source: ledger.StockComputed,
	}); err != nil {
		t.Fatal(err)
	}

	orgRec, _ := s.GetClosingStock(ctx, ledger.NewScope(testOrg), "item-1", date)
	branchRec, _ := s.GetClosingStock(ctx, ledger.NewBranchScope(testOrg, branch), "item-1", date)
	if orgRec == nil || branchRec == nil {
		t.Fatal("expected both scope records")
	}
	if !orgRec.Quantity.Equal(qty("10")) || !branchRec.Quantity.Equal(qty("4")) {
		t.Errorf("scope collision: org %s, branch %s", orgRec.Quantity, branchRec.Quantity)
	}
}

func TestSQLite_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	date := ledger.NewDate(2024, time.March, 10)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.InsertMovement(ctx, mv("m-tx", ledger.KindSale, "5", date)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	got, _ := s.GetMovement(ctx, "m-tx")
	if got != nil {
		t.Error("insert should have rolled back")
	}
}

func TestSQLite_IssuanceAndReturns(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	date := ledger.NewDate(2024, time.March, 10)
	scope := ledger.NewScope(testOrg)

	if err := s.InsertIssuance(ctx, ledger.Issuance{
		ID: "iss-1", Org: testOrg, ItemID: "item-1", StaffID: "staff-maria",
		Date: date, Quantity: qty("10"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertReturn(ctx, ledger.Return{
		ID: "ret-1", IssuanceID: "iss-1", Date: date, Quantity: qty("3"),
	}); err != nil {
		t.Fatal(err)
	}

	issuances, err := s.IssuancesOn(ctx, scope, date)
	if err != nil {
		t.Fatal(err)
	}
	if len(issuances) != 1 {
		t.Fatalf("got %d issuances, want 1", len(issuances))
	}

	returns, err := s.ReturnsFor(ctx, "iss-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(returns) != 1 || !returns[0].Quantity.Equal(qty("3")) {
		t.Errorf("returns round trip failed: %+v", returns)
	}
}

func TestSQLite_EngineEndToEnd(t *testing.T) {
	// The full engine against the real store: restock, sell, settle, and
	// check the closing figure.

	ctx := context.Background()
	s := newStore(t)
	today := ledger.NewDate(2024, time.March, 12)

	log := logrusDiscard()
	engine := ledger.NewEngine(s, log).WithClock(ledger.FixedClock(today))

	item, err := engine.SaveItem(ctx, ledger.Item{Org: testOrg, Name: "Rice", Unit: "kg", SellingPrice: qty("2")})
	if err != nil {
		t.Fatal(err)
	}
	scope := ledger.NewScope(testOrg)

	if _, err := engine.RecordRestock(ctx, ledger.RestockInput{
		Scope: scope, ItemID: item.ID, Date: today, Quantity: qty("20"),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.RecordSale(ctx, ledger.SaleInput{
		Scope: scope, ItemID: item.ID, Date: today, Quantity: qty("8"), PricePerUnit: qty("2"),
	}); err != nil {
		t.Fatal(err)
	}

	d, err := engine.Calc.Closing(ctx, scope, item.ID, today)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Closing.Equal(qty("12")) {
		t.Errorf("closing: got %s, want 12", d.Closing)
	}
}
