/*
settlement.go - Deriving sales from issuance/return pairs

PURPOSE:
  Staff issuances are the alternate path by which stock leaves a location.
  Settlement reconciles them into the sales ledger: for every issuance on
  a date, sold = issued - sum(returns). A positive residual becomes a
  derived sale tagged source=issuance; a fully returned issuance produces
  nothing.

IDEMPOTENCY:
  Derived sales are upserted on (item, date, org, branch, issuance), so
  rerunning settlement for the same day replaces instead of duplicating.

NO STOCK CHECK:
  The issued quantity already represents a reservation made when the
  issuance was created (availability was checked then). Settlement only
  moves the residual into the sales ledger; it never rejects for stock.
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Settler reconciles a day's issuances into derived sales.
type Settler struct {
	Store Store
	Log   *logrus.Logger
}

func NewSettler(store Store, log *logrus.Logger) *Settler {
	return &Settler{Store: store, Log: log}
}

// SettlementResult reports what one settlement pass did.
type SettlementResult struct {
	SalesCreated int
	Sales        []Movement
}

// Settle derives sales for every issuance in (scope, date).
func (s *Settler) Settle(ctx context.Context, scope Scope, date Date, recordedBy string) (SettlementResult, error) {
	var result SettlementResult

	issuances, err := s.Store.IssuancesOn(ctx, scope, date)
	if err != nil {
		return result, fmt.Errorf("settle %s on %s: %w", scope, date, err)
	}

	for _, iss := range issuances {
		returns, err := s.Store.ReturnsFor(ctx, iss.ID)
		if err != nil {
			return result, fmt.Errorf("settle issuance %s: %w", iss.ID, err)
		}
		returned := sumReturns(returns)
		sold := iss.Quantity.Sub(returned)
		if !sold.IsPositive() {
			continue
		}

		item, err := s.Store.GetItem(ctx, iss.ItemID)
		if err != nil {
			return result, err
		}
		if item == nil {
			return result, fmt.Errorf("settle issuance %s: %w", iss.ID, ErrItemNotFound)
		}

		issuanceID := iss.ID
		sale := Movement{
			ID:           MovementID(uuid.NewString()),
			Kind:         KindSale,
			Org:          iss.Org,
			Branch:       iss.Branch,
			ItemID:       iss.ItemID,
			Date:         date,
			Quantity:     sold,
			PricePerUnit: item.SellingPrice,
			TotalPrice:   sold.Mul(item.SellingPrice),
			PaymentMode:  "cash",
			Source:       SaleSourceIssuance,
			IssuanceID:   &issuanceID,
			Description:  fmt.Sprintf("Auto-calculated from issuance to %s", iss.StaffID),
			RecordedBy:   recordedBy,
		}

		if err := s.Store.UpsertDerivedSale(ctx, sale); err != nil {
			return result, fmt.Errorf("settle issuance %s: upsert sale: %w", iss.ID, err)
		}
		result.SalesCreated++
		result.Sales = append(result.Sales, sale)
	}

	if s.Log != nil {
		s.Log.WithFields(logrus.Fields{
			"scope":         scope.String(),
			"date":          date.String(),
			"issuances":     len(issuances),
			"sales_created": result.SalesCreated,
		}).Info("issuance settlement complete")
	}
	return result, nil
}

func sumReturns(rs []Return) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rs {
		total = total.Add(r.Quantity)
	}
	return total
}
