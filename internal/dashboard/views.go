package dashboard

import (
	"fmt"
	"time"

	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/portfolio"
)

// SummaryView is the aggregate for one filter of one snapshot.
type SummaryView struct {
	SnapshotID  string               `json:"snapshot_id"`
	TakenAt     time.Time            `json:"taken_at"`
	Filter      portfolio.FilterKind `json:"filter"`
	Summary     portfolio.Summary    `json:"summary"`
	ByAssetType []portfolio.Group    `json:"by_asset_type"`
	ByExchange  []portfolio.Group    `json:"by_exchange"`
	ComputedAt  time.Time            `json:"computed_at"`
}

// ValuationsView lists every matching record with its valuation, in
// snapshot order.
type ValuationsView struct {
	SnapshotID string               `json:"snapshot_id"`
	TakenAt    time.Time            `json:"taken_at"`
	Filter     portfolio.FilterKind `json:"filter"`
	Rows       []portfolio.Row      `json:"rows"`
}

// ChartView is the allocation series for a pie or bar chart.
type ChartView struct {
	SnapshotID string                  `json:"snapshot_id"`
	Filter     portfolio.FilterKind    `json:"filter"`
	Series     []portfolio.SeriesPoint `json:"series"`
}

// HeatmapView is the treemap projection.
type HeatmapView struct {
	SnapshotID string                  `json:"snapshot_id"`
	Filter     portfolio.FilterKind    `json:"filter"`
	Ceiling    float64                 `json:"ceiling"`
	Cells      []portfolio.HeatmapCell `json:"cells"`
}

// PledgeRequest asks for pledge economics on one holding of the latest
// snapshot. Nil rate fields take the service defaults.
type PledgeRequest struct {
	HoldingID   string               `json:"id"`
	Quantity    float64              `json:"quantity"`
	Mode        portfolio.PledgeMode `json:"mode"`
	HaircutRate *float64             `json:"haircutRate,omitempty"`
	AnnualRate  *float64             `json:"annualRate,omitempty"`
	Days        *int                 `json:"days,omitempty"`
}

// PledgeView pairs the economics with the holding they were computed for.
type PledgeView struct {
	SnapshotID string                    `json:"snapshot_id"`
	Holding    model.Record              `json:"holding"`
	Economics  portfolio.PledgeEconomics `json:"economics"`
}

// IngestResult reports what Ingest stored and derived.
type IngestResult struct {
	Snapshot model.SnapshotInfo `json:"snapshot"`
	Summary  SummaryView        `json:"summary"`
	Alerted  bool               `json:"alerted"`
}

// SummaryFor computes the summary view of snap under kind.
func SummaryFor(snap model.Snapshot, kind portfolio.FilterKind, now time.Time) (SummaryView, error) {
	recs, err := portfolio.FilterRecords(snap.Records, kind)
	if err != nil {
		return SummaryView{}, err
	}
	return SummaryView{
		SnapshotID:  snap.ID,
		TakenAt:     snap.TakenAt,
		Filter:      kind,
		Summary:     portfolio.ComputeSummary(recs),
		ByAssetType: portfolio.SummaryByAssetType(recs),
		ByExchange:  portfolio.SummaryByExchange(recs),
		ComputedAt:  now,
	}, nil
}

// ValuationsFor values every record of snap matching kind.
func ValuationsFor(snap model.Snapshot, kind portfolio.FilterKind) (ValuationsView, error) {
	recs, err := portfolio.FilterRecords(snap.Records, kind)
	if err != nil {
		return ValuationsView{}, err
	}
	return ValuationsView{
		SnapshotID: snap.ID,
		TakenAt:    snap.TakenAt,
		Filter:     kind,
		Rows:       portfolio.Rows(recs),
	}, nil
}

// ChartFor projects snap under kind to a chart series.
func ChartFor(snap model.Snapshot, kind portfolio.FilterKind) (ChartView, error) {
	recs, err := portfolio.FilterRecords(snap.Records, kind)
	if err != nil {
		return ChartView{}, err
	}
	return ChartView{SnapshotID: snap.ID, Filter: kind, Series: portfolio.ToChartSeries(recs)}, nil
}

// HeatmapFor projects snap under kind to heatmap cells. A ceiling <= 0
// uses portfolio.DefaultIntensityCeiling.
func HeatmapFor(snap model.Snapshot, kind portfolio.FilterKind, ceiling float64) (HeatmapView, error) {
	recs, err := portfolio.FilterRecords(snap.Records, kind)
	if err != nil {
		return HeatmapView{}, err
	}
	if ceiling <= 0 {
		ceiling = portfolio.DefaultIntensityCeiling
	}
	return HeatmapView{
		SnapshotID: snap.ID,
		Filter:     kind,
		Ceiling:    ceiling,
		Cells:      portfolio.ToHeatmapCells(recs, ceiling),
	}, nil
}

// PledgeFor finds the holding in snap and computes its economics. Rate
// fields missing from req fall back to defaults field by field.
func PledgeFor(snap model.Snapshot, req PledgeRequest, defaults portfolio.PledgeRates) (PledgeView, error) {
	holding, err := findHolding(snap, req.HoldingID)
	if err != nil {
		return PledgeView{}, err
	}

	rates := defaults
	if req.HaircutRate != nil {
		rates.HaircutRate = *req.HaircutRate
	}
	if req.AnnualRate != nil {
		rates.AnnualRate = *req.AnnualRate
	}
	if req.Days != nil {
		rates.Days = *req.Days
	}

	econ, err := portfolio.ComputePledgeEconomics(holding, req.Quantity, req.Mode, &rates)
	if err != nil {
		return PledgeView{}, err
	}
	return PledgeView{SnapshotID: snap.ID, Holding: holding, Economics: econ}, nil
}

func findHolding(snap model.Snapshot, id string) (model.Record, error) {
	for _, r := range snap.Records {
		if r.ID != id {
			continue
		}
		if r.Kind != model.KindHolding {
			return model.Record{}, fmt.Errorf("%w: %s is %s", ErrNotPledgeable, id, r.Kind)
		}
		return r, nil
	}
	return model.Record{}, fmt.Errorf("%w: %s", ErrHoldingNotFound, id)
}
