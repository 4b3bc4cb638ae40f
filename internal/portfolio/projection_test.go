package portfolio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"portfolio-enginev1/internal/model"
)

func TestToChartSeries(t *testing.T) {
	book := sampleBook()
	series := ToChartSeries(book)

	require.Len(t, series, len(book))
	assert.Equal(t, SeriesPoint{Name: "RELIANCE", Value: 25000}, series[0])
	assert.Equal(t, "PPFAS Flexi Cap", series[4].Name, "falls back to name")
	for i, r := range book {
		assert.InDelta(t, Value(r).CurrentValue, series[i].Value, eps)
	}
}

func TestToHeatmapCells_SizeConservation(t *testing.T) {
	cells := ToHeatmapCells(sampleBook(), 0)

	sizes := make([]float64, len(cells))
	for i, c := range cells {
		sizes[i] = c.SizePercent
	}
	assert.InDelta(t, 100, floats.Sum(sizes), 1e-9)
}

func TestToHeatmapCells_ZeroTotal(t *testing.T) {
	recs := []model.Record{
		model.NewHolding("a", "A", model.AssetStock, model.ExchangeNSE, 0, 10, 11),
		model.NewHolding("b", "B", model.AssetStock, model.ExchangeNSE, 5, 10, 0),
	}
	cells := ToHeatmapCells(recs, 5)
	require.Len(t, cells, 2)
	for _, c := range cells {
		assert.Equal(t, 0.0, c.SizePercent)
		assert.False(t, math.IsNaN(c.SizePercent))
	}
}

func TestToHeatmapCells_ColorFields(t *testing.T) {
	recs := []model.Record{
		model.NewHolding("up", "UP", model.AssetStock, model.ExchangeNSE, 1, 100, 102),   // +2%
		model.NewHolding("down", "DN", model.AssetStock, model.ExchangeNSE, 1, 100, 80),  // -20%
		model.NewHolding("flat", "FL", model.AssetStock, model.ExchangeNSE, 1, 100, 100), // 0%
	}
	cells := ToHeatmapCells(recs, 0)

	assert.Equal(t, ToneGain, cells[0].Tone)
	assert.InDelta(t, 0.4, cells[0].Intensity, eps)
	assert.Equal(t, ToneLoss, cells[1].Tone)
	assert.Equal(t, 1.0, cells[1].Intensity, "saturates at ceiling")
	assert.Equal(t, ToneFlat, cells[2].Tone)
	assert.Equal(t, 0.0, cells[2].Intensity)

	// A wider ceiling lowers intensity without affecting size.
	wide := ToHeatmapCells(recs, 40)
	assert.InDelta(t, 0.5, wide[1].Intensity, eps)
	assert.InDelta(t, cells[1].SizePercent, wide[1].SizePercent, eps)
}

func TestIntensity_Deterministic(t *testing.T) {
	assert.InDelta(t, 0.5, Intensity(2.5, 5), eps)
	assert.InDelta(t, 0.5, Intensity(-2.5, 5), eps)
	assert.Equal(t, 1.0, Intensity(7, 5))
	assert.InDelta(t, Intensity(3, 0), Intensity(3, DefaultIntensityCeiling), eps)

	// A cell's intensity does not depend on its neighbours.
	one := ToHeatmapCells([]model.Record{sampleBook()[0]}, 5)
	many := ToHeatmapCells(sampleBook(), 5)
	assert.Equal(t, one[0].Intensity, many[0].Intensity)
}

func TestToHeatmapCells_InputOrder(t *testing.T) {
	book := sampleBook()
	cells := ToHeatmapCells(book, 5)
	require.Len(t, cells, len(book))
	for i, r := range book {
		assert.Equal(t, r.Label(), cells[i].Name)
	}
}
