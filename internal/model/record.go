// Package model defines the position and holding records the portfolio
// engine computes over. Records are read-only snapshots supplied by a
// position source; nothing in this module mutates them after construction.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Kind discriminates the record variants. Each kind has its own valuation
// rule in package portfolio.
type Kind string

const (
	KindHolding      Kind = "HOLDING"       // delivery equity, ETF, MF, bond or spot crypto
	KindIntraday     Kind = "INTRADAY"      // same-day position
	KindFnO          Kind = "FNO"           // futures & options, quantity in lots
	KindCryptoFuture Kind = "CRYPTO_FUTURE" // margined perpetual/future, P&L carried
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindHolding, KindIntraday, KindFnO, KindCryptoFuture:
		return true
	}
	return false
}

// AssetType classifies the underlying instrument.
type AssetType string

const (
	AssetStock      AssetType = "STOCK"
	AssetETF        AssetType = "ETF"
	AssetCrypto     AssetType = "CRYPTO"
	AssetMutualFund AssetType = "MUTUAL_FUND"
	AssetBond       AssetType = "BOND"
	AssetDerivative AssetType = "DERIVATIVE"
)

// Exchange codes seen in snapshots.
const (
	ExchangeNSE    = "NSE"
	ExchangeBSE    = "BSE"
	ExchangeNFO    = "NFO"
	ExchangeMCX    = "MCX"
	ExchangeNASDAQ = "NASDAQ"
	ExchangeNYSE   = "NYSE"
	ExchangeCrypto = "CRYPTO"
)

// Direction is the transaction side of a position.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Sign returns +1 for BUY (or unset) and -1 for SELL.
func (d Direction) Sign() float64 {
	if d == Sell {
		return -1
	}
	return 1
}

// ErrInvalidRecord is returned by Validate for malformed records.
var ErrInvalidRecord = errors.New("invalid record")

// Record is a single position or holding.
//
// Quantity is shares, units or coins for spot kinds and lots for KindFnO,
// where Multiplier carries the quantity per lot. A zero Multiplier means 1.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Symbol    string    `json:"symbol,omitempty"`
	Name      string    `json:"name,omitempty"`
	AssetType AssetType `json:"asset_type,omitempty"`
	Exchange  string    `json:"exchange,omitempty"`

	Quantity       float64   `json:"quantity"`
	ReferencePrice float64   `json:"reference_price"` // avg cost or entry price
	LastPrice      float64   `json:"last_price"`      // LTP or mark price
	Multiplier     float64   `json:"multiplier,omitempty"`
	Direction      Direction `json:"direction,omitempty"`

	DayChange float64 `json:"day_change,omitempty"` // today's absolute P&L contribution

	// Crypto futures only.
	UnrealizedPnL float64 `json:"unrealized_pnl,omitempty"`
	Leverage      float64 `json:"leverage,omitempty"`
}

// NewHolding builds a delivery/spot holding.
func NewHolding(id, symbol string, asset AssetType, exchange string, qty, avgPrice, ltp float64) Record {
	return Record{
		ID:             id,
		Kind:           KindHolding,
		Symbol:         symbol,
		AssetType:      asset,
		Exchange:       exchange,
		Quantity:       qty,
		ReferencePrice: avgPrice,
		LastPrice:      ltp,
		Direction:      Buy,
	}
}

// NewIntraday builds a same-day equity position.
func NewIntraday(id, symbol, exchange string, dir Direction, qty, avgPrice, ltp float64) Record {
	return Record{
		ID:             id,
		Kind:           KindIntraday,
		Symbol:         symbol,
		AssetType:      AssetStock,
		Exchange:       exchange,
		Quantity:       qty,
		ReferencePrice: avgPrice,
		LastPrice:      ltp,
		Direction:      dir,
	}
}

// NewFnO builds a derivatives position expressed in lots.
func NewFnO(id, symbol string, dir Direction, lots, qtyPerLot, avgPrice, ltp float64) Record {
	return Record{
		ID:             id,
		Kind:           KindFnO,
		Symbol:         symbol,
		AssetType:      AssetDerivative,
		Exchange:       ExchangeNFO,
		Quantity:       lots,
		Multiplier:     qtyPerLot,
		ReferencePrice: avgPrice,
		LastPrice:      ltp,
		Direction:      dir,
	}
}

// NewCryptoFuture builds a margined crypto futures position. The unrealized
// P&L is computed by the venue from the mark price and carried verbatim.
func NewCryptoFuture(id, symbol string, dir Direction, qty, entryPrice, markPrice, unrealizedPnL, leverage float64) Record {
	return Record{
		ID:             id,
		Kind:           KindCryptoFuture,
		Symbol:         symbol,
		AssetType:      AssetCrypto,
		Exchange:       ExchangeCrypto,
		Quantity:       qty,
		ReferencePrice: entryPrice,
		LastPrice:      markPrice,
		Direction:      dir,
		UnrealizedPnL:  unrealizedPnL,
		Leverage:       leverage,
	}
}

// EffectiveMultiplier returns Multiplier, treating 0 as 1.
func (r Record) EffectiveMultiplier() float64 {
	if r.Multiplier == 0 {
		return 1
	}
	return r.Multiplier
}

// Label is the best available display name: symbol, then name, then id.
func (r Record) Label() string {
	switch {
	case r.Symbol != "":
		return r.Symbol
	case r.Name != "":
		return r.Name
	default:
		return r.ID
	}
}

// QuoteCurrency is "USD" for US listings and crypto, "INR" otherwise.
func (r Record) QuoteCurrency() string {
	switch {
	case r.Exchange == ExchangeNASDAQ, r.Exchange == ExchangeNYSE:
		return "USD"
	case r.AssetType == AssetCrypto, r.Kind == KindCryptoFuture:
		return "USD"
	default:
		return "INR"
	}
}

// Validate checks the fields every valuation rule depends on.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidRecord, r.ID, r.Kind)
	}
	if r.Direction != "" && r.Direction != Buy && r.Direction != Sell {
		return fmt.Errorf("%w: %s: unknown direction %q", ErrInvalidRecord, r.ID, r.Direction)
	}
	for name, v := range map[string]float64{
		"quantity":        r.Quantity,
		"reference_price": r.ReferencePrice,
		"last_price":      r.LastPrice,
		"multiplier":      r.Multiplier,
		"day_change":      r.DayChange,
		"unrealized_pnl":  r.UnrealizedPnL,
		"leverage":        r.Leverage,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s: %s is not finite", ErrInvalidRecord, r.ID, name)
		}
	}
	if r.Multiplier < 0 {
		return fmt.Errorf("%w: %s: negative multiplier", ErrInvalidRecord, r.ID)
	}
	return nil
}

// Snapshot is an immutable set of records taken at one point in time.
type Snapshot struct {
	ID      string    `json:"id"`
	TakenAt time.Time `json:"taken_at"`
	Source  string    `json:"source"`
	Records []Record  `json:"records"`
}

// SnapshotInfo is a snapshot header without its records.
type SnapshotInfo struct {
	ID          string    `json:"id"`
	TakenAt     time.Time `json:"taken_at"`
	Source      string    `json:"source"`
	RecordCount int       `json:"record_count"`
}

// Info returns the snapshot header.
func (s Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{ID: s.ID, TakenAt: s.TakenAt, Source: s.Source, RecordCount: len(s.Records)}
}
