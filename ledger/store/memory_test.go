package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally/inventory-engine/ledger"
	"github.com/tally/inventory-engine/ledger/store"
)

const memOrg = ledger.OrgID("org-1")

func mv(id string, kind ledger.MovementKind, quantity string, date ledger.Date) ledger.Movement {
	return ledger.Movement{
		ID: ledger.MovementID(id), Kind: kind, Org: memOrg,
		ItemID: "item-1", Date: date, Quantity: decimal.RequireFromString(quantity),
	}
}

func TestMemory_DuplicateMovementIDIsUniquenessViolation(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	date := ledger.NewDate(2024, time.March, 10)

	if err := mem.InsertMovement(ctx, mv("m-1", ledger.KindSale, "5", date)); err != nil {
		t.Fatal(err)
	}
	err := mem.InsertMovement(ctx, mv("m-1", ledger.KindSale, "5", date))
	if !errors.Is(err, ledger.ErrUniquenessViolation) {
		t.Errorf("expected ErrUniquenessViolation, got %v", err)
	}
}

func TestMemory_DeleteMissingMovement(t *testing.T) {
	err := store.NewMemory().DeleteMovement(context.Background(), "no-such-id")
	if !errors.Is(err, ledger.ErrMovementNotFound) {
		t.Errorf("expected ErrMovementNotFound, got %v", err)
	}
}

func TestMemory_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: a transaction that inserts and then fails
	// WHEN:  WithTx returns the error
	// THEN:  the insert is gone

	ctx := context.Background()
	mem := store.NewMemory()
	date := ledger.NewDate(2024, time.March, 10)
	boom := errors.New("boom")

	err := mem.WithTx(ctx, func(s ledger.Store) error {
		if err := s.InsertMovement(ctx, mv("m-tx", ledger.KindSale, "5", date)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the fn error back, got %v", err)
	}

	got, _ := mem.GetMovement(ctx, "m-tx")
	if got != nil {
		t.Error("insert should have been rolled back")
	}
}

func TestMemory_WithTxCommits(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	date := ledger.NewDate(2024, time.March, 10)

	err := mem.WithTx(ctx, func(s ledger.Store) error {
		return s.InsertMovement(ctx, mv("m-tx", ledger.KindSale, "5", date))
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := mem.GetMovement(ctx, "m-tx")
	if got == nil {
		t.Error("committed insert should be visible")
	}
}

func TestMemory_DerivedSaleUpsertKey(t *testing.T) {
	// GIVEN: a derived sale for an issuance
	// WHEN:  another derived sale arrives for the same issuance/day/scope,
	//        and one for a different issuance
	// THEN:  the first is replaced in place, the second coexists

	ctx := context.Background()
	mem := store.NewMemory()
	date := ledger.NewDate(2024, time.March, 10)
	scope := ledger.NewScope(memOrg)

	issA := ledger.IssuanceID("iss-a")
	issB := ledger.IssuanceID("iss-b")

	first := mv("m-1", ledger.KindSale, "7", date)
	first.Source = ledger.SaleSourceIssuance
	first.IssuanceID = &issA
	if err := mem.UpsertDerivedSale(ctx, first); err != nil {
		t.Fatal(err)
	}

	replacement := mv("m-2", ledger.KindSale, "6", date)
	replacement.Source = ledger.SaleSourceIssuance
	replacement.IssuanceID = &issA
	if err := mem.UpsertDerivedSale(ctx, replacement); err != nil {
		t.Fatal(err)
	}

	other := mv("m-3", ledger.KindSale, "4", date)
	other.Source = ledger.SaleSourceIssuance
	other.IssuanceID = &issB
	if err := mem.UpsertDerivedSale(ctx, other); err != nil {
		t.Fatal(err)
	}

	sales, err := mem.MovementsOn(ctx, scope, "item-1", date, ledger.KindSale)
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 2 {
		t.Fatalf("got %d sales, want 2 (one per issuance)", len(sales))
	}
	total := decimal.Zero
	for _, s := range sales {
		total = total.Add(s.Quantity)
	}
	if !total.Equal(decimal.RequireFromString("10")) {
		t.Errorf("total derived: got %s, want 10", total)
	}
}

func TestMemory_ScopesAreIsolated(t *testing.T) {
	// GIVEN: the same item moved in two branches and at org level
	// WHEN:  one branch's movements are listed
	// THEN:  only that branch's rows come back

	ctx := context.Background()
	mem := store.NewMemory()
	date := ledger.NewDate(2024, time.March, 10)
	branchA := ledger.BranchID("branch-a")

	inBranch := mv("m-a", ledger.KindSale, "5", date)
	inBranch.Branch = &branchA
	if err := mem.InsertMovement(ctx, inBranch); err != nil {
		t.Fatal(err)
	}
	if err := mem.InsertMovement(ctx, mv("m-org", ledger.KindSale, "3", date)); err != nil {
		t.Fatal(err)
	}

	scoped, err := mem.MovementsOn(ctx, ledger.NewBranchScope(memOrg, branchA), "item-1", date, ledger.KindSale)
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].ID != "m-a" {
		t.Errorf("branch scope leaked: %+v", scoped)
	}

	orgWide, err := mem.MovementsOn(ctx, ledger.NewScope(memOrg), "item-1", date, ledger.KindSale)
	if err != nil {
		t.Fatal(err)
	}
	if len(orgWide) != 1 || orgWide[0].ID != "m-org" {
		t.Errorf("org scope leaked: %+v", orgWide)
	}
}
