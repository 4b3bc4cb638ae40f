package gateway

import (
	"encoding/json"

	"portfolio-enginev1/internal/dashboard"
	"portfolio-enginev1/internal/display"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/portfolio"
)

// Responses carry the raw engine values plus a "display" block with the
// same numbers rendered for people. Aggregates are in rupees.

// SummaryDisplay renders a portfolio.Summary.
type SummaryDisplay struct {
	CurrentValue        string `json:"current_value"`
	CurrentValueCompact string `json:"current_value_compact"`
	Invested            string `json:"invested"`
	OverallPnL          string `json:"overall_pnl"`
	OverallPnLPercent   string `json:"overall_pnl_percent"`
	DayChange           string `json:"day_change"`
	DayChangePercent    string `json:"day_change_percent"`
}

func summaryDisplay(s portfolio.Summary) SummaryDisplay {
	return SummaryDisplay{
		CurrentValue:        display.IndianMoney(s.TotalCurrentValue),
		CurrentValueCompact: display.Compact(s.TotalCurrentValue, "INR"),
		Invested:            display.IndianMoney(s.TotalInvestmentValue),
		OverallPnL:          display.SignedMoney(s.OverallPnL, "INR"),
		OverallPnLPercent:   display.SignedPercent(s.OverallPnLPercent),
		DayChange:           display.SignedMoney(s.TotalDayChange, "INR"),
		DayChangePercent:    display.SignedPercent(s.TotalDayChangePercent),
	}
}

// SummaryResponse is the body of GET /api/v1/summary.
type SummaryResponse struct {
	dashboard.SummaryView
	Display SummaryDisplay `json:"display"`
}

// NewSummaryResponse decorates v with display strings.
func NewSummaryResponse(v dashboard.SummaryView) SummaryResponse {
	return SummaryResponse{SummaryView: v, Display: summaryDisplay(v.Summary)}
}

// RowDisplay renders one valuation row in the record's quote currency.
type RowDisplay struct {
	Label        string `json:"label"`
	CurrentValue string `json:"current_value"`
	Invested     string `json:"invested"`
	PnL          string `json:"pnl"`
	PnLPercent   string `json:"pnl_percent"`
}

// RowResponse is one row of GET /api/v1/valuations.
type RowResponse struct {
	portfolio.Row
	Display RowDisplay `json:"display"`
}

// ValuationsResponse is the body of GET /api/v1/valuations.
type ValuationsResponse struct {
	SnapshotID string               `json:"snapshot_id"`
	Filter     portfolio.FilterKind `json:"filter"`
	Rows       []RowResponse        `json:"rows"`
}

// NewValuationsResponse decorates every row of v.
func NewValuationsResponse(v dashboard.ValuationsView) ValuationsResponse {
	rows := make([]RowResponse, len(v.Rows))
	for i, row := range v.Rows {
		code := row.Record.QuoteCurrency()
		rows[i] = RowResponse{
			Row: row,
			Display: RowDisplay{
				Label:        row.Record.Label(),
				CurrentValue: display.Money(row.Valuation.CurrentValue, code),
				Invested:     display.Money(row.Valuation.InvestedValue, code),
				PnL:          display.SignedMoney(row.Valuation.PnL, code),
				PnLPercent:   display.SignedPercent(row.Valuation.PnLPercent),
			},
		}
	}
	return ValuationsResponse{SnapshotID: v.SnapshotID, Filter: v.Filter, Rows: rows}
}

// PledgeDisplay renders pledge economics in rupees. Payback fields are
// empty in pledge mode.
type PledgeDisplay struct {
	CollateralValue string `json:"collateral_value"`
	HaircutAmount   string `json:"haircut_amount"`
	ResultingMargin string `json:"resulting_margin"`
	InterestLevied  string `json:"interest_levied,omitempty"`
	TotalPayback    string `json:"total_payback,omitempty"`
}

// PledgeResponse is the body of POST /api/v1/pledge.
type PledgeResponse struct {
	dashboard.PledgeView
	Display PledgeDisplay `json:"display"`
}

// NewPledgeResponse decorates v with rupee strings.
func NewPledgeResponse(v dashboard.PledgeView) PledgeResponse {
	e := v.Economics
	d := PledgeDisplay{
		CollateralValue: display.IndianMoney(e.CollateralValue.InexactFloat64()),
		HaircutAmount:   display.IndianMoney(e.HaircutAmount.InexactFloat64()),
		ResultingMargin: display.IndianMoney(e.ResultingMargin.InexactFloat64()),
	}
	if e.InterestLevied.Valid {
		d.InterestLevied = display.IndianMoney(e.InterestLevied.Decimal.InexactFloat64())
	}
	if e.TotalPayback.Valid {
		d.TotalPayback = display.IndianMoney(e.TotalPayback.Decimal.InexactFloat64())
	}
	return PledgeResponse{PledgeView: v, Display: d}
}

// IngestRequest is the body of POST /api/v1/snapshots.
type IngestRequest struct {
	Source  string         `json:"source"`
	Records []model.Record `json:"records"`
}

// IngestResponse is the body returned for a stored snapshot.
type IngestResponse struct {
	Snapshot model.SnapshotInfo `json:"snapshot"`
	Summary  SummaryResponse    `json:"summary"`
	Alerted  bool               `json:"alerted"`
}

// MissedResponse is the body of GET /api/v1/missed.
type MissedResponse struct {
	Seq       int64             `json:"seq"`
	Envelopes []json.RawMessage `json:"envelopes"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
