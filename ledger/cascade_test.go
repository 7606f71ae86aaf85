package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tally/inventory-engine/ledger"
	"github.com/tally/inventory-engine/ledger/store"
)

func newPropagator(mem *store.Memory, today ledger.Date) *ledger.Propagator {
	p := ledger.NewPropagator(mem, quietLog())
	p.Clock = ledger.FixedClock(today)
	return p
}

func TestPropagate_WalksForwardToToday(t *testing.T) {
	// GIVEN: a restock of 20 on day 1 and a sale of 5 on day 2,
	//        with today = day 3
	// WHEN:  propagation runs from day 1
	// THEN:  every day up to today has a computed closing, and each next
	//        day's opening is carried from the prior closing

	ctx := context.Background()
	mem := store.NewMemory()
	scope := ledger.NewScope(testOrg)
	day1 := day(2024, time.March, 10)
	day2, day3 := day1.Next(), day1.AddDays(2)

	seedItem(t, mem, testItem, "0")
	insertMovement(t, mem, ledger.Movement{
		ID: "m-restock", Kind: ledger.KindRestock, Org: testOrg,
		ItemID: testItem, Date: day1, Quantity: qty("20"),
	})
	insertMovement(t, mem, ledger.Movement{
		ID: "m-sale", Kind: ledger.KindSale, Org: testOrg,
		ItemID: testItem, Date: day2, Quantity: qty("5"),
	})

	if err := newPropagator(mem, day3).Propagate(ctx, scope, day1); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		date ledger.Date
		want string
	}{
		{day1, "20"},
		{day2, "15"},
		{day3, "15"},
	} {
		closing, err := mem.GetClosingStock(ctx, scope, testItem, tc.date)
		if err != nil {
			t.Fatal(err)
		}
		if closing == nil {
			t.Fatalf("no closing record for %s", tc.date)
		}
		assertDecimal(t, closing.Quantity, tc.want, "closing on "+tc.date.String())
		if closing.Source != ledger.StockComputed {
			t.Errorf("closing on %s: got source %s, want computed", tc.date, closing.Source)
		}
	}

	opening2, err := mem.GetOpeningStock(ctx, scope, testItem, day2)
	if err != nil {
		t.Fatal(err)
	}
	if opening2 == nil {
		t.Fatal("no derived opening for day 2")
	}
	assertDecimal(t, opening2.Quantity, "20", "derived opening on day 2")
	if opening2.Source != ledger.StockDerived {
		t.Errorf("opening source: got %s, want derived", opening2.Source)
	}
}

func TestPropagate_ManualClosingIsASentinel(t *testing.T) {
	// GIVEN: movements that would compute day 1 closing as 20, but a
	//        manual count of 12 is already saved for day 1
	// WHEN:  propagation runs from day 1
	// THEN:  the manual value survives untouched AND still seeds day 2's
	//        opening

	ctx := context.Background()
	mem := store.NewMemory()
	scope := ledger.NewScope(testOrg)
	day1 := day(2024, time.March, 10)
	day2 := day1.Next()

	seedItem(t, mem, testItem, "0")
	insertMovement(t, mem, ledger.Movement{
		ID: "m-restock", Kind: ledger.KindRestock, Org: testOrg,
		ItemID: testItem, Date: day1, Quantity: qty("20"),
	})
	if err := mem.UpsertClosingStock(ctx, ledger.ClosingStock{
		ID: "close-manual", ItemID: testItem, Org: testOrg,
		Date: day1, Quantity: qty("12"), Source: ledger.StockManual,
	}); err != nil {
		t.Fatal(err)
	}

	if err := newPropagator(mem, day2).Propagate(ctx, scope, day1); err != nil {
		t.Fatal(err)
	}

	closing1, _ := mem.GetClosingStock(ctx, scope, testItem, day1)
	assertDecimal(t, closing1.Quantity, "12", "manual closing on day 1")
	if closing1.Source != ledger.StockManual {
		t.Errorf("closing source: got %s, want manual", closing1.Source)
	}

	opening2, _ := mem.GetOpeningStock(ctx, scope, testItem, day2)
	if opening2 == nil {
		t.Fatal("no derived opening for day 2")
	}
	assertDecimal(t, opening2.Quantity, "12", "day 2 opening seeded from manual closing")
}

func TestPropagate_ManualOpeningWinsOverCarryForward(t *testing.T) {
	// GIVEN: day 1 closes at 20, but day 2 has a manual opening of 99
	// WHEN:  propagation runs from day 1
	// THEN:  the manual opening is not overwritten

	ctx := context.Background()
	mem := store.NewMemory()
	scope := ledger.NewScope(testOrg)
	day1 := day(2024, time.March, 10)
	day2 := day1.Next()

	seedItem(t, mem, testItem, "0")
	insertMovement(t, mem, ledger.Movement{
		ID: "m-restock", Kind: ledger.KindRestock, Org: testOrg,
		ItemID: testItem, Date: day1, Quantity: qty("20"),
	})
	if err := mem.UpsertOpeningStock(ctx, ledger.OpeningStock{
		ID: "open-manual", ItemID: testItem, Org: testOrg,
		Date: day2, Quantity: qty("99"), Source: ledger.StockManual,
	}); err != nil {
		t.Fatal(err)
	}

	if err := newPropagator(mem, day2).Propagate(ctx, scope, day1); err != nil {
		t.Fatal(err)
	}

	opening2, _ := mem.GetOpeningStock(ctx, scope, testItem, day2)
	assertDecimal(t, opening2.Quantity, "99", "manual opening on day 2")
	if opening2.Source != ledger.StockManual {
		t.Errorf("opening source: got %s, want manual", opening2.Source)
	}
}

func TestPropagate_IsIdempotent(t *testing.T) {
	// GIVEN: a propagated range
	// WHEN:  propagation reruns over the same unchanged data
	// THEN:  every record lands on the same fixed point

	ctx := context.Background()
	mem := store.NewMemory()
	scope := ledger.NewScope(testOrg)
	day1 := day(2024, time.March, 10)
	day3 := day1.AddDays(2)

	seedItem(t, mem, testItem, "0")
	insertMovement(t, mem, ledger.Movement{
		ID: "m-restock", Kind: ledger.KindRestock, Org: testOrg,
		ItemID: testItem, Date: day1, Quantity: qty("20"),
	})

	p := newPropagator(mem, day3)
	if err := p.Propagate(ctx, scope, day1); err != nil {
		t.Fatal(err)
	}
	first, _ := mem.GetClosingStock(ctx, scope, testItem, day3)

	if err := p.Propagate(ctx, scope, day1); err != nil {
		t.Fatal(err)
	}
	second, _ := mem.GetClosingStock(ctx, scope, testItem, day3)

	if !first.Quantity.Equal(second.Quantity) || first.ID != second.ID {
		t.Errorf("rerun changed the record: first %+v, second %+v", first, second)
	}
}

func TestPropagate_RejectsFutureStart(t *testing.T) {
	// GIVEN: today = day 1
	// WHEN:  propagation is asked to start from day 2
	// THEN:  it refuses with the future-date error

	mem := store.NewMemory()
	day1 := day(2024, time.March, 10)

	err := newPropagator(mem, day1).Propagate(context.Background(), ledger.NewScope(testOrg), day1.Next())
	if !errors.Is(err, ledger.ErrFutureDate) {
		t.Errorf("expected ErrFutureDate, got %v", err)
	}
}

func TestPropagate_HonorsIterationCap(t *testing.T) {
	// GIVEN: a correction far older than the cap
	// WHEN:  propagation runs with MaxDays = 5
	// THEN:  it stops after the cap instead of walking the whole range

	ctx := context.Background()
	mem := store.NewMemory()
	scope := ledger.NewScope(testOrg)
	day1 := day(2024, time.January, 1)
	today := day1.AddDays(30)

	seedItem(t, mem, testItem, "0")
	insertMovement(t, mem, ledger.Movement{
		ID: "m-restock", Kind: ledger.KindRestock, Org: testOrg,
		ItemID: testItem, Date: day1, Quantity: qty("20"),
	})

	p := newPropagator(mem, today)
	p.MaxDays = 5
	if err := p.Propagate(ctx, scope, day1); err != nil {
		t.Fatal(err)
	}

	within, _ := mem.GetClosingStock(ctx, scope, testItem, day1.AddDays(4))
	if within == nil {
		t.Error("expected a closing record within the cap")
	}
	beyond, _ := mem.GetClosingStock(ctx, scope, testItem, day1.AddDays(10))
	if beyond != nil {
		t.Error("expected no closing record beyond the cap")
	}
}
