package portfolio

import "portfolio-enginev1/internal/model"

// Valuation is the per-record valuation triple plus percent and day change.
type Valuation struct {
	CurrentValue  float64 `json:"current_value"`
	InvestedValue float64 `json:"invested_value"`
	PnL           float64 `json:"pnl"`
	PnLPercent    float64 `json:"pnl_percent"`
	DayChange     float64 `json:"day_change"`
}

// Value values r using the record's own direction.
func Value(r model.Record) Valuation {
	return ComputeValuation(r, r.Direction)
}

// ComputeValuation values r as if held in direction dir. An empty direction
// is treated as BUY. The valuation rule is selected by r.Kind.
func ComputeValuation(r model.Record, dir model.Direction) Valuation {
	if r.Quantity == 0 {
		return Valuation{}
	}

	mult := r.EffectiveMultiplier()
	var v Valuation

	switch r.Kind {
	case model.KindCryptoFuture:
		// Margined: value is the entry notional, P&L comes from the venue.
		notional := r.ReferencePrice * r.Quantity * mult
		v.CurrentValue = notional
		v.InvestedValue = notional
		v.PnL = r.UnrealizedPnL
	default:
		// Holdings, intraday and lots-based F&O share one rule; for F&O
		// Quantity is lots and mult is the lot size.
		v.CurrentValue = r.LastPrice * r.Quantity * mult
		v.InvestedValue = r.ReferencePrice * r.Quantity * mult
		v.PnL = dir.Sign() * (v.CurrentValue - v.InvestedValue)
	}

	v.CurrentValue = finite(v.CurrentValue)
	v.InvestedValue = finite(v.InvestedValue)
	v.PnL = finite(v.PnL)
	v.PnLPercent = percentOf(v.PnL, v.InvestedValue)
	v.DayChange = finite(r.DayChange)
	return v
}

// Row pairs a record with its valuation for tabular views.
type Row struct {
	Record    model.Record `json:"record"`
	Valuation Valuation    `json:"valuation"`
}

// Rows values every record, preserving order.
func Rows(records []model.Record) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{Record: r, Valuation: Value(r)}
	}
	return rows
}
