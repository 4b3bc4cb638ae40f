package portfolio

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"portfolio-enginev1/internal/model"
)

// PledgeMode selects which economics are computed.
type PledgeMode string

const (
	ModePledge  PledgeMode = "pledge"
	ModePayback PledgeMode = "payback"
)

// PledgeRates are the collateral terms. Rates are percentages.
type PledgeRates struct {
	HaircutRate float64 `json:"haircut_rate"` // percent of collateral withheld
	AnnualRate  float64 `json:"annual_rate"`  // simple interest, percent per year
	Days        int     `json:"days"`
}

// DefaultPledgeRates returns a 10% haircut at 8.5% p.a. over 30 days.
func DefaultPledgeRates() PledgeRates {
	return PledgeRates{HaircutRate: 10, AnnualRate: 8.5, Days: 30}
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func (r PledgeRates) validate() error {
	if !isFinite(r.HaircutRate) || !isFinite(r.AnnualRate) {
		return fmt.Errorf("%w: haircut %v, annual %v", ErrInvalidRate, r.HaircutRate, r.AnnualRate)
	}
	if r.HaircutRate < 0 || r.HaircutRate > 100 {
		return fmt.Errorf("%w: haircut %.4f%% not in [0,100]", ErrInvalidRate, r.HaircutRate)
	}
	if r.AnnualRate < 0 {
		return fmt.Errorf("%w: annual rate %.4f%% is negative", ErrInvalidRate, r.AnnualRate)
	}
	if r.Days < 0 {
		return fmt.Errorf("%w: %d days is negative", ErrInvalidRate, r.Days)
	}
	return nil
}

// PledgeEconomics is the result of a pledge or payback computation.
// Interest and payback are only set in payback mode.
type PledgeEconomics struct {
	HoldingID       string              `json:"holding_id"`
	Mode            PledgeMode          `json:"mode"`
	Quantity        decimal.Decimal     `json:"quantity"`
	CollateralValue decimal.Decimal     `json:"collateral_value"`
	HaircutAmount   decimal.Decimal     `json:"haircut_amount"`
	ResultingMargin decimal.Decimal     `json:"resulting_margin"`
	InterestLevied  decimal.NullDecimal `json:"interest_levied"`
	TotalPayback    decimal.NullDecimal `json:"total_payback"`
	Rates           PledgeRates         `json:"rates"`
}

var (
	hundred    = decimal.NewFromInt(100)
	daysInYear = decimal.NewFromInt(365)
)

// ComputePledgeEconomics computes collateral economics for pledging
// quantity units of holding. Quantity must be in (0, holding.Quantity].
// A nil rates uses DefaultPledgeRates. All arithmetic is decimal; rounding
// is left to the presentation layer.
func ComputePledgeEconomics(holding model.Record, quantity float64, mode PledgeMode, rates *PledgeRates) (PledgeEconomics, error) {
	if mode != ModePledge && mode != ModePayback {
		return PledgeEconomics{}, fmt.Errorf("%w: %q", ErrInvalidPledgeMode, mode)
	}
	if !isFinite(holding.LastPrice) {
		return PledgeEconomics{}, fmt.Errorf("%w: price %v for %s", model.ErrInvalidRecord, holding.LastPrice, holding.ID)
	}
	if !isFinite(quantity) || !isFinite(holding.Quantity) || !(quantity > 0 && quantity <= holding.Quantity) {
		return PledgeEconomics{}, fmt.Errorf("%w: %v not in (0, %v] for %s",
			ErrQuantityOutOfRange, quantity, holding.Quantity, holding.ID)
	}
	terms := DefaultPledgeRates()
	if rates != nil {
		terms = *rates
	}
	if err := terms.validate(); err != nil {
		return PledgeEconomics{}, err
	}

	qty := decimal.NewFromFloat(quantity)
	collateral := qty.Mul(decimal.NewFromFloat(holding.LastPrice))
	haircut := collateral.Mul(decimal.NewFromFloat(terms.HaircutRate)).Div(hundred)

	e := PledgeEconomics{
		HoldingID:       holding.ID,
		Mode:            mode,
		Quantity:        qty,
		CollateralValue: collateral,
		HaircutAmount:   haircut,
		ResultingMargin: collateral.Sub(haircut),
		Rates:           terms,
	}

	if mode == ModePayback {
		daily := decimal.NewFromFloat(terms.AnnualRate).Div(hundred).Div(daysInYear)
		interest := e.ResultingMargin.Mul(daily).Mul(decimal.NewFromInt(int64(terms.Days)))
		e.InterestLevied = decimal.NewNullDecimal(interest)
		e.TotalPayback = decimal.NewNullDecimal(collateral.Add(interest))
	}
	return e, nil
}
