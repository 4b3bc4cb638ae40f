package portfolio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"portfolio-enginev1/internal/model"
)

const eps = 1e-9

func TestComputeValuation_Holding(t *testing.T) {
	h := model.NewHolding("h1", "TCS", model.AssetStock, model.ExchangeNSE, 10, 100, 110)

	v := ComputeValuation(h, model.Buy)

	assert.InDelta(t, 1100, v.CurrentValue, eps)
	assert.InDelta(t, 1000, v.InvestedValue, eps)
	assert.InDelta(t, 100, v.PnL, eps)
	assert.InDelta(t, 10, v.PnLPercent, eps)
}

func TestComputeValuation_FnOBuy(t *testing.T) {
	f := model.NewFnO("f1", "NIFTY24DEC24000CE", model.Buy, 2, 50, 120.50, 135.25)

	v := Value(f)

	assert.InDelta(t, 1475.00, v.PnL, 1e-6)
	assert.InDelta(t, 135.25*100, v.CurrentValue, 1e-6)
	assert.InDelta(t, 120.50*100, v.InvestedValue, 1e-6)
}

func TestComputeValuation_SellFlipsSign(t *testing.T) {
	f := model.NewFnO("f1", "BANKNIFTY24DECFUT", model.Sell, 1, 15, 50000, 49800)

	v := Value(f)

	// Short gains when price falls.
	assert.InDelta(t, 200*15, v.PnL, eps)
	assert.Greater(t, v.PnLPercent, 0.0)

	// Same record valued as a long loses the same amount.
	long := ComputeValuation(f, model.Buy)
	assert.InDelta(t, -v.PnL, long.PnL, eps)
}

func TestComputeValuation_IntradayShort(t *testing.T) {
	p := model.NewIntraday("i1", "SBIN", model.ExchangeNSE, model.Sell, 100, 800, 810)
	v := Value(p)
	assert.InDelta(t, -1000, v.PnL, eps)
	assert.InDelta(t, -1.25, v.PnLPercent, eps)
}

func TestComputeValuation_CryptoFutureCarriesPnL(t *testing.T) {
	cf := model.NewCryptoFuture("c1", "BTCUSDT", model.Buy, 0.5, 60000, 62000, 987.65, 10)

	v := Value(cf)

	assert.InDelta(t, 30000, v.CurrentValue, eps, "current value is entry notional")
	assert.InDelta(t, 30000, v.InvestedValue, eps)
	assert.InDelta(t, 987.65, v.PnL, eps, "P&L is carried, not re-derived from mark price")

	// Direction does not re-sign carried P&L.
	short := ComputeValuation(cf, model.Sell)
	assert.InDelta(t, 987.65, short.PnL, eps)
}

func TestComputeValuation_ZeroQuantity(t *testing.T) {
	records := []model.Record{
		model.NewHolding("h", "X", model.AssetStock, model.ExchangeNSE, 0, 100, 120),
		model.NewFnO("f", "Y", model.Sell, 0, 50, 10, 12),
		model.NewCryptoFuture("c", "ETHUSDT", model.Buy, 0, 3000, 3100, 55, 5),
		{ID: "d", Kind: model.KindHolding, DayChange: 42},
	}
	for _, r := range records {
		assert.Equal(t, Valuation{}, Value(r), "record %s", r.ID)
	}
}

func TestComputeValuation_ZeroInvestedPercentGuard(t *testing.T) {
	// Bonus shares carry a zero cost basis.
	bonus := model.NewHolding("b", "ITC", model.AssetStock, model.ExchangeNSE, 50, 0, 450)

	v := Value(bonus)

	assert.InDelta(t, 22500, v.PnL, eps)
	assert.Equal(t, 0.0, v.PnLPercent)
	assert.False(t, math.IsNaN(v.PnLPercent))
}

func TestComputeValuation_MultiplierDefaultsToOne(t *testing.T) {
	r := model.Record{ID: "m", Kind: model.KindHolding, Quantity: 3, ReferencePrice: 10, LastPrice: 12}
	v := Value(r)
	assert.InDelta(t, 36, v.CurrentValue, eps)
	assert.InDelta(t, 30, v.InvestedValue, eps)
}

func TestComputeValuation_NonFiniteInputsYieldZero(t *testing.T) {
	r := model.Record{ID: "n", Kind: model.KindHolding, Quantity: 1, ReferencePrice: math.Inf(1), LastPrice: 10}
	v := Value(r)
	for _, x := range []float64{v.CurrentValue, v.InvestedValue, v.PnL, v.PnLPercent} {
		assert.False(t, math.IsNaN(x) || math.IsInf(x, 0), "got non-finite %v", x)
	}
}

func TestComputeValuation_DoesNotMutateInput(t *testing.T) {
	r := model.NewFnO("f1", "NIFTY", model.Sell, 2, 50, 100, 90)
	before := r
	_ = Value(r)
	_ = Rows([]model.Record{r})
	assert.Equal(t, before, r)
}

func TestRows(t *testing.T) {
	recs := []model.Record{
		model.NewHolding("a", "A", model.AssetStock, model.ExchangeNSE, 1, 10, 11),
		model.NewHolding("b", "B", model.AssetStock, model.ExchangeBSE, 2, 10, 9),
	}
	rows := Rows(recs)
	if assert.Len(t, rows, 2) {
		assert.Equal(t, "a", rows[0].Record.ID)
		assert.InDelta(t, 1, rows[0].Valuation.PnL, eps)
		assert.InDelta(t, -2, rows[1].Valuation.PnL, eps)
	}
}
