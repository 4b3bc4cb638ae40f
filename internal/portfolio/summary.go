package portfolio

import "portfolio-enginev1/internal/model"

// Summary aggregates valuations across a set of records.
type Summary struct {
	TotalCurrentValue     float64 `json:"total_current_value"`
	TotalInvestmentValue  float64 `json:"total_investment_value"`
	OverallPnL            float64 `json:"overall_pnl"`
	OverallPnLPercent     float64 `json:"overall_pnl_percent"`
	TotalDayChange        float64 `json:"total_day_change"`
	TotalDayChangePercent float64 `json:"total_day_change_percent"`
	Count                 int     `json:"count"`
}

// ComputeSummary reduces records to a single Summary. The reduction is a
// plain sum per field, so input order only affects floating-point rounding.
// Empty input yields the zero Summary.
func ComputeSummary(records []model.Record) Summary {
	var s Summary
	for _, r := range records {
		s.add(Value(r))
	}
	return s.finish()
}

func (s *Summary) add(v Valuation) {
	s.TotalCurrentValue += v.CurrentValue
	s.TotalInvestmentValue += v.InvestedValue
	s.OverallPnL += v.PnL
	s.TotalDayChange += v.DayChange
	s.Count++
}

func (s Summary) finish() Summary {
	s.TotalCurrentValue = finite(s.TotalCurrentValue)
	s.TotalInvestmentValue = finite(s.TotalInvestmentValue)
	s.OverallPnL = finite(s.OverallPnL)
	s.TotalDayChange = finite(s.TotalDayChange)
	s.OverallPnLPercent = percentOf(s.OverallPnL, s.TotalInvestmentValue)

	// Day change is relative to yesterday's value. A base at or below zero
	// (e.g. a position opened today) has no meaningful percentage.
	base := s.TotalCurrentValue - s.TotalDayChange
	if base > 0 {
		s.TotalDayChangePercent = percentOf(s.TotalDayChange, base)
	}
	return s
}

// Group is a labeled Summary.
type Group struct {
	Key     string  `json:"key"`
	Summary Summary `json:"summary"`
}

// GroupSummaries partitions records by key and summarizes each partition.
// Groups are returned in first-seen order.
func GroupSummaries(records []model.Record, key func(model.Record) string) []Group {
	idx := make(map[string]int)
	var sums []Summary
	var keys []string
	for _, r := range records {
		k := key(r)
		i, ok := idx[k]
		if !ok {
			i = len(sums)
			idx[k] = i
			sums = append(sums, Summary{})
			keys = append(keys, k)
		}
		sums[i].add(Value(r))
	}

	groups := make([]Group, len(sums))
	for i := range sums {
		groups[i] = Group{Key: keys[i], Summary: sums[i].finish()}
	}
	return groups
}

// SummaryByAssetType groups by asset type.
func SummaryByAssetType(records []model.Record) []Group {
	return GroupSummaries(records, func(r model.Record) string { return string(r.AssetType) })
}

// SummaryByExchange groups by exchange.
func SummaryByExchange(records []model.Record) []Group {
	return GroupSummaries(records, func(r model.Record) string { return r.Exchange })
}
