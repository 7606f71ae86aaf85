/*
report.go - Per-item day summary

The stock report answers "what happened to each item on this date":
opening (and where it came from), restocking, sales, closing. Closing is
the saved record when one exists - manual entries included - and a live
computation otherwise, so the report never shows a stale figure.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReportLine is one item's row in the stock report.
type ReportLine struct {
	ItemID        ItemID
	ItemName      string
	ItemUnit      string
	Opening       decimal.Decimal
	OpeningSource OpeningSource
	Restocking    decimal.Decimal
	Sales         decimal.Decimal
	Waste         decimal.Decimal
	Closing       decimal.Decimal
	ClosingSource StockSource
}

// StockReport builds the day summary for every item in the scope's org.
func (e *Engine) StockReport(ctx context.Context, scope Scope, date Date) ([]ReportLine, error) {
	if err := e.rejectFuture(date); err != nil {
		return nil, err
	}

	items, err := e.Store.ListItems(ctx, scope.Org)
	if err != nil {
		return nil, err
	}

	lines := make([]ReportLine, 0, len(items))
	for _, item := range items {
		d, err := e.Calc.Closing(ctx, scope, item.ID, date)
		if err != nil {
			return nil, err
		}
		line := ReportLine{
			ItemID:        item.ID,
			ItemName:      item.Name,
			ItemUnit:      item.Unit,
			Opening:       d.Opening,
			OpeningSource: d.OpeningSource,
			Restocking:    d.Restocking,
			Sales:         d.Sales,
			Waste:         d.Waste,
			Closing:       d.Closing,
			ClosingSource: StockComputed,
		}

		// A saved closing record wins over the live computation; manual
		// entries especially must be reported as entered.
		if saved, err := e.Store.GetClosingStock(ctx, scope, item.ID, date); err != nil {
			return nil, err
		} else if saved != nil {
			line.Closing = saved.Quantity
			line.ClosingSource = saved.Source
		}
		lines = append(lines, line)
	}
	return lines, nil
}
