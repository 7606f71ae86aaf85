package ledger_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tally/inventory-engine/ledger"
	"github.com/tally/inventory-engine/ledger/store"
)

func seedIssuance(t *testing.T, s ledger.Store, id ledger.IssuanceID, staff ledger.StaffID, date ledger.Date, quantity string) {
	t.Helper()
	err := s.InsertIssuance(context.Background(), ledger.Issuance{
		ID: id, Org: testOrg, ItemID: testItem, StaffID: staff,
		Date: date, Quantity: qty(quantity),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func seedReturn(t *testing.T, s ledger.Store, issuanceID ledger.IssuanceID, date ledger.Date, quantity string) {
	t.Helper()
	err := s.InsertReturn(context.Background(), ledger.Return{
		ID: string(issuanceID) + "-ret-" + quantity, IssuanceID: issuanceID,
		Date: date, Quantity: qty(quantity),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSettle_IssuedMinusReturned(t *testing.T) {
	// GIVEN: 10 issued to a staff member, 3 returned
	// WHEN:  the day is settled
	// THEN:  one derived sale of 7 at the item's selling price, paid cash,
	//        tagged with its issuance

	ctx := context.Background()
	mem := store.NewMemory()
	scope := ledger.NewScope(testOrg)
	date := day(2024, time.March, 10)

	seedItem(t, mem, testItem, "2.50")
	seedIssuance(t, mem, "iss-1", "staff-maria", date, "10")
	seedReturn(t, mem, "iss-1", date, "3")

	result, err := ledger.NewSettler(mem, quietLog()).Settle(ctx, scope, date, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if result.SalesCreated != 1 {
		t.Fatalf("sales created: got %d, want 1", result.SalesCreated)
	}

	sale := result.Sales[0]
	assertDecimal(t, sale.Quantity, "7", "derived sale quantity")
	assertDecimal(t, sale.PricePerUnit, "2.50", "price per unit")
	assertDecimal(t, sale.TotalPrice, "17.5", "total price")
	if sale.PaymentMode != "cash" {
		t.Errorf("payment mode: got %q, want cash", sale.PaymentMode)
	}
	if sale.Source != ledger.SaleSourceIssuance {
		t.Errorf("source: got %q, want issuance", sale.Source)
	}
	if sale.IssuanceID == nil || *sale.IssuanceID != "iss-1" {
		t.Error("derived sale must carry its issuance id")
	}
	if !strings.Contains(sale.Description, "staff-maria") {
		t.Errorf("description should name the staff member, got %q", sale.Description)
	}
}

func TestSettle_FullyReturnedProducesNoSale(t *testing.T) {
	// GIVEN: 10 issued and all 10 returned
	// WHEN:  the day is settled
	// THEN:  no sale is derived

	ctx := context.Background()
	mem := store.NewMemory()
	date := day(2024, time.March, 10)

	seedItem(t, mem, testItem, "2.50")
	seedIssuance(t, mem, "iss-1", "staff-maria", date, "10")
	seedReturn(t, mem, "iss-1", date, "10")

	result, err := ledger.NewSettler(mem, quietLog()).Settle(ctx, ledger.NewScope(testOrg), date, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if result.SalesCreated != 0 {
		t.Errorf("sales created: got %d, want 0", result.SalesCreated)
	}
}

func TestSettle_RerunReplacesInsteadOfDuplicating(t *testing.T) {
	// GIVEN: a settled day whose issuance later gains another return
	// WHEN:  settlement reruns
	// THEN:  the existing derived sale is replaced in place, never
	//        duplicated

	ctx := context.Background()
	mem := store.NewMemory()
	scope := ledger.NewScope(testOrg)
	date := day(2024, time.March, 10)

	seedItem(t, mem, testItem, "2.50")
	seedIssuance(t, mem, "iss-1", "staff-maria", date, "10")

	settler := ledger.NewSettler(mem, quietLog())
	if _, err := settler.Settle(ctx, scope, date, "tester"); err != nil {
		t.Fatal(err)
	}

	seedReturn(t, mem, "iss-1", date, "4")
	if _, err := settler.Settle(ctx, scope, date, "tester"); err != nil {
		t.Fatal(err)
	}

	sales, err := mem.MovementsOn(ctx, scope, testItem, date, ledger.KindSale)
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 1 {
		t.Fatalf("got %d sales after rerun, want 1", len(sales))
	}
	assertDecimal(t, sales[0].Quantity, "6", "replaced sale quantity")
}

func TestSettle_MultipleIssuances(t *testing.T) {
	// GIVEN: two staff members issued on the same day
	// WHEN:  the day is settled
	// THEN:  each issuance yields its own derived sale

	ctx := context.Background()
	mem := store.NewMemory()
	scope := ledger.NewScope(testOrg)
	date := day(2024, time.March, 10)

	seedItem(t, mem, testItem, "1")
	seedIssuance(t, mem, "iss-1", "staff-maria", date, "10")
	seedIssuance(t, mem, "iss-2", "staff-kofi", date, "4")
	seedReturn(t, mem, "iss-1", date, "2")

	result, err := ledger.NewSettler(mem, quietLog()).Settle(ctx, scope, date, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if result.SalesCreated != 2 {
		t.Fatalf("sales created: got %d, want 2", result.SalesCreated)
	}

	sales, _ := mem.MovementsOn(ctx, scope, testItem, date, ledger.KindSale)
	total := qty("0")
	for _, s := range sales {
		total = total.Add(s.Quantity)
	}
	assertDecimal(t, total, "12", "total derived sales")
}
