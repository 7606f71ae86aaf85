package ledger_test

import (
	"testing"
	"time"

	"github.com/tally/inventory-engine/ledger"
)

func TestDate_ParseRoundTrip(t *testing.T) {
	d, err := ledger.ParseDate("2024-03-10")
	if err != nil {
		t.Fatal(err)
	}
	if d.String() != "2024-03-10" {
		t.Errorf("round trip: got %s", d)
	}
}

func TestDate_ParseRejectsGarbage(t *testing.T) {
	if _, err := ledger.ParseDate("10/03/2024"); err == nil {
		t.Error("expected an error for a non-ISO date")
	}
}

func TestDate_ArithmeticCrossesMonthBoundary(t *testing.T) {
	d := ledger.NewDate(2024, time.February, 28)
	if got := d.AddDays(2).String(); got != "2024-03-01" {
		t.Errorf("leap-year february: got %s, want 2024-03-01", got)
	}
	if got := d.Prev().String(); got != "2024-02-27" {
		t.Errorf("prev: got %s", got)
	}
}

func TestDate_DaysBetween(t *testing.T) {
	from := ledger.NewDate(2024, time.March, 10)
	if got := ledger.DaysBetween(from, from.AddDays(5)); got != 5 {
		t.Errorf("days between: got %d, want 5", got)
	}
}

func TestFixedClock(t *testing.T) {
	pinned := ledger.NewDate(2024, time.March, 12)
	clock := ledger.FixedClock(pinned)
	if !clock().Equal(pinned) {
		t.Error("fixed clock drifted")
	}
}
