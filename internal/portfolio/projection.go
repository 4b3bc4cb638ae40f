package portfolio

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"portfolio-enginev1/internal/model"
)

// DefaultIntensityCeiling is the |P&L %| at which heatmap color saturates.
const DefaultIntensityCeiling = 5.0

// SeriesPoint is one bar or pie slice.
type SeriesPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Tone is the heatmap hue.
type Tone string

const (
	ToneGain Tone = "gain"
	ToneLoss Tone = "loss"
	ToneFlat Tone = "flat"
)

// HeatmapCell is one heatmap tile. SizePercent drives area, Tone and
// Intensity drive color.
type HeatmapCell struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	PnL         float64 `json:"pnl"`
	PnLPercent  float64 `json:"pnl_percent"`
	SizePercent float64 `json:"size_percent"`
	Intensity   float64 `json:"intensity"`
	Tone        Tone    `json:"tone"`
}

// ToChartSeries maps each record to its label and current value.
func ToChartSeries(records []model.Record) []SeriesPoint {
	out := make([]SeriesPoint, len(records))
	for i, r := range records {
		out[i] = SeriesPoint{Name: r.Label(), Value: Value(r).CurrentValue}
	}
	return out
}

// ToHeatmapCells projects records onto heatmap tiles, one per record in
// input order. A ceiling <= 0 uses DefaultIntensityCeiling. When the total
// value is zero every SizePercent is zero.
func ToHeatmapCells(records []model.Record, ceiling float64) []HeatmapCell {
	vals := make([]Valuation, len(records))
	values := make([]float64, len(records))
	for i, r := range records {
		vals[i] = Value(r)
		values[i] = vals[i].CurrentValue
	}
	total := finite(floats.Sum(values))

	out := make([]HeatmapCell, len(records))
	for i, r := range records {
		v := vals[i]
		cell := HeatmapCell{
			Name:       r.Label(),
			Value:      v.CurrentValue,
			PnL:        v.PnL,
			PnLPercent: v.PnLPercent,
			Intensity:  Intensity(v.PnLPercent, ceiling),
			Tone:       toneOf(v.PnL),
		}
		if total != 0 {
			cell.SizePercent = finite(v.CurrentValue / total * 100)
		}
		out[i] = cell
	}
	return out
}

// Intensity maps a P&L percentage onto [0,1], saturating at ceiling.
// It depends on nothing but its arguments.
func Intensity(pnlPercent, ceiling float64) float64 {
	if ceiling <= 0 {
		ceiling = DefaultIntensityCeiling
	}
	return finite(math.Min(math.Abs(pnlPercent)/ceiling, 1.0))
}

func toneOf(pnl float64) Tone {
	switch {
	case pnl > 0:
		return ToneGain
	case pnl < 0:
		return ToneLoss
	default:
		return ToneFlat
	}
}
