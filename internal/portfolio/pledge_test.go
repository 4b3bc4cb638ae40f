package portfolio

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-enginev1/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputePledgeEconomics_Pledge(t *testing.T) {
	h := model.NewHolding("h1", "HDFCBANK", model.AssetStock, model.ExchangeNSE, 10, 1500, 1600)

	e, err := ComputePledgeEconomics(h, 5, ModePledge, nil)
	require.NoError(t, err)

	assert.True(t, e.CollateralValue.Equal(dec("8000")), "collateral %s", e.CollateralValue)
	assert.True(t, e.HaircutAmount.Equal(dec("800")), "haircut %s", e.HaircutAmount)
	assert.True(t, e.ResultingMargin.Equal(dec("7200")), "margin %s", e.ResultingMargin)
	assert.False(t, e.InterestLevied.Valid)
	assert.False(t, e.TotalPayback.Valid)
	assert.Equal(t, DefaultPledgeRates(), e.Rates)
}

func TestComputePledgeEconomics_Payback(t *testing.T) {
	h := model.NewHolding("h1", "HDFCBANK", model.AssetStock, model.ExchangeNSE, 10, 1500, 1600)

	e, err := ComputePledgeEconomics(h, 5, ModePayback, nil)
	require.NoError(t, err)
	require.True(t, e.InterestLevied.Valid)

	// 7200 * 8.5/100/365 * 30
	want := dec("7200").Mul(dec("8.5")).Div(dec("100")).Div(dec("365")).Mul(dec("30"))
	assert.True(t, e.InterestLevied.Decimal.Sub(want).Abs().LessThan(dec("0.000001")),
		"interest %s want %s", e.InterestLevied.Decimal, want)
	assert.True(t, e.TotalPayback.Decimal.Equal(e.CollateralValue.Add(e.InterestLevied.Decimal)))
	assert.Equal(t, "50.30", e.InterestLevied.Decimal.StringFixed(2))
}

func TestComputePledgeEconomics_MarginRoundTrip(t *testing.T) {
	h := model.NewHolding("h", "TATAMOTORS", model.AssetStock, model.ExchangeNSE, 1000, 700, 987.35)
	for _, rate := range []float64{0, 0.5, 10, 12.5, 33.333, 99.99, 100} {
		e, err := ComputePledgeEconomics(h, 123, ModePledge, &PledgeRates{HaircutRate: rate, AnnualRate: 8.5, Days: 30})
		require.NoError(t, err, "rate %v", rate)
		assert.True(t, e.ResultingMargin.Equal(e.CollateralValue.Sub(e.HaircutAmount)), "rate %v", rate)
		assert.True(t, e.ResultingMargin.Add(e.HaircutAmount).Equal(e.CollateralValue), "rate %v", rate)
	}
}

func TestComputePledgeEconomics_QuantityOutOfRange(t *testing.T) {
	h := model.NewHolding("h", "INFY", model.AssetStock, model.ExchangeNSE, 10, 1400, 1500)
	for _, q := range []float64{15, 0, -1, 10.0001} {
		_, err := ComputePledgeEconomics(h, q, ModePledge, nil)
		assert.ErrorIs(t, err, ErrQuantityOutOfRange, "qty %v", q)
	}
	_, err := ComputePledgeEconomics(h, 10, ModePledge, nil)
	assert.NoError(t, err, "full quantity is allowed")
}

func TestComputePledgeEconomics_InvalidInputs(t *testing.T) {
	h := model.NewHolding("h", "INFY", model.AssetStock, model.ExchangeNSE, 10, 1400, 1500)

	_, err := ComputePledgeEconomics(h, 1, "lend", nil)
	assert.ErrorIs(t, err, ErrInvalidPledgeMode)

	bad := []PledgeRates{
		{HaircutRate: -1, AnnualRate: 8.5, Days: 30},
		{HaircutRate: 101, AnnualRate: 8.5, Days: 30},
		{HaircutRate: 10, AnnualRate: -2, Days: 30},
		{HaircutRate: 10, AnnualRate: 8.5, Days: -1},
	}
	for _, r := range bad {
		r := r
		_, err := ComputePledgeEconomics(h, 1, ModePayback, &r)
		assert.ErrorIs(t, err, ErrInvalidRate, "%+v", r)
	}
}

func TestComputePledgeEconomics_NonFiniteInputs(t *testing.T) {
	h := model.NewHolding("h", "INFY", model.AssetStock, model.ExchangeNSE, 10, 1400, 1500)
	nan, inf := math.NaN(), math.Inf(1)

	for _, r := range []PledgeRates{
		{HaircutRate: nan, AnnualRate: 8.5, Days: 30},
		{HaircutRate: 10, AnnualRate: nan, Days: 30},
		{HaircutRate: 10, AnnualRate: inf, Days: 30},
	} {
		r := r
		_, err := ComputePledgeEconomics(h, 1, ModePayback, &r)
		assert.ErrorIs(t, err, ErrInvalidRate, "%+v", r)
	}

	for _, q := range []float64{nan, inf} {
		_, err := ComputePledgeEconomics(h, q, ModePledge, nil)
		assert.ErrorIs(t, err, ErrQuantityOutOfRange, "qty %v", q)
	}

	unbounded := h
	unbounded.Quantity = inf
	_, err := ComputePledgeEconomics(unbounded, inf, ModePledge, nil)
	assert.ErrorIs(t, err, ErrQuantityOutOfRange)

	for _, p := range []float64{nan, inf, math.Inf(-1)} {
		priced := h
		priced.LastPrice = p
		assert.NotPanics(t, func() {
			_, err = ComputePledgeEconomics(priced, 1, ModePledge, nil)
		})
		assert.ErrorIs(t, err, model.ErrInvalidRecord, "price %v", p)
	}
}

func TestComputePledgeEconomics_ZeroRatesAreLiteral(t *testing.T) {
	h := model.NewHolding("h", "INFY", model.AssetStock, model.ExchangeNSE, 10, 1400, 1500)
	e, err := ComputePledgeEconomics(h, 2, ModePayback, &PledgeRates{})
	require.NoError(t, err)
	assert.True(t, e.HaircutAmount.IsZero())
	assert.True(t, e.ResultingMargin.Equal(dec("3000")))
	assert.True(t, e.InterestLevied.Decimal.IsZero())
	assert.True(t, e.TotalPayback.Decimal.Equal(dec("3000")))
}
