package portfolio

import (
	"fmt"

	"portfolio-enginev1/internal/model"
)

// FilterKind names one of the built-in record partitions.
type FilterKind string

const (
	FilterAll          FilterKind = "All"
	FilterIndianStocks FilterKind = "IndianStocks"
	FilterUSStocks     FilterKind = "USStocks"
	FilterCrypto       FilterKind = "Crypto"
	FilterMutualFunds  FilterKind = "MutualFunds"
	FilterBonds        FilterKind = "Bonds"
	FilterDerivatives  FilterKind = "Derivatives"
)

var filters = map[FilterKind]func(model.Record) bool{
	FilterAll: func(model.Record) bool { return true },
	FilterIndianStocks: func(r model.Record) bool {
		return (r.AssetType == model.AssetStock || r.AssetType == model.AssetETF) &&
			(r.Exchange == model.ExchangeNSE || r.Exchange == model.ExchangeBSE)
	},
	FilterUSStocks: func(r model.Record) bool {
		return r.Exchange == model.ExchangeNASDAQ || r.Exchange == model.ExchangeNYSE
	},
	FilterCrypto:      func(r model.Record) bool { return r.AssetType == model.AssetCrypto },
	FilterMutualFunds: func(r model.Record) bool { return r.AssetType == model.AssetMutualFund },
	FilterBonds:       func(r model.Record) bool { return r.AssetType == model.AssetBond },
	FilterDerivatives: func(r model.Record) bool { return r.Kind == model.KindFnO },
}

// FilterKinds lists the built-in filters in a stable order.
func FilterKinds() []FilterKind {
	return []FilterKind{
		FilterAll, FilterIndianStocks, FilterUSStocks, FilterCrypto,
		FilterMutualFunds, FilterBonds, FilterDerivatives,
	}
}

// ParseFilterKind validates s. The empty string means FilterAll.
func ParseFilterKind(s string) (FilterKind, error) {
	if s == "" {
		return FilterAll, nil
	}
	k := FilterKind(s)
	if _, ok := filters[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilterKind, s)
	}
	return k, nil
}

// FilterRecords returns the records matching kind, in input order.
// An unknown kind fails with ErrInvalidFilterKind.
func FilterRecords(records []model.Record, kind FilterKind) ([]model.Record, error) {
	pred, ok := filters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilterKind, kind)
	}
	return FilterFunc(records, pred), nil
}

// FilterFunc returns the records for which pred is true, in input order.
// The result never aliases the input slice.
func FilterFunc(records []model.Record, pred func(model.Record) bool) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}
