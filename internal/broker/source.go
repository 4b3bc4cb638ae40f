// Package broker turns an Angel One account into portfolio snapshots.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"portfolio-enginev1/config"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/pkg/smartconnect"
)

// SourceName tags snapshots produced by this package.
const SourceName = "angelone"

// API is the part of the SmartAPI client a Source needs.
type API interface {
	GenerateSession(ctx context.Context, clientCode, password, totp string) (smartconnect.Session, error)
	Session() smartconnect.Session
	Holdings(ctx context.Context) ([]smartconnect.Holding, error)
	Positions(ctx context.Context) ([]smartconnect.Position, error)
}

// Source fetches holdings and positions and maps them to records.
type Source struct {
	api  API
	cfg  config.BrokerConfig
	now  func() time.Time
	mu   sync.Mutex
	code func(secret string, t time.Time) (string, error)
}

// NewSource creates a Source backed by a SmartAPI client for cfg.
func NewSource(cfg config.BrokerConfig) *Source {
	return NewSourceWithAPI(smartconnect.New(smartconnect.Config{
		APIKey:  cfg.APIKey,
		RootURL: cfg.BaseURL,
	}), cfg)
}

// NewSourceWithAPI creates a Source on an existing client.
func NewSourceWithAPI(api API, cfg config.BrokerConfig) *Source {
	return &Source{
		api:  api,
		cfg:  cfg,
		now:  time.Now,
		code: totp.GenerateCode,
	}
}

// Fetch logs in when there is no session, reads holdings and positions and
// returns them as one snapshot. An expired session is renewed once with a
// fresh TOTP.
func (s *Source) Fetch(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.api.Session().JWTToken == "" {
		if err := s.login(ctx); err != nil {
			return model.Snapshot{}, err
		}
	}

	records, err := s.fetchRecords(ctx)
	if errors.Is(err, smartconnect.ErrTokenExpired) {
		log.Printf("[broker] session expired, logging in again")
		if err := s.login(ctx); err != nil {
			return model.Snapshot{}, err
		}
		records, err = s.fetchRecords(ctx)
	}
	if err != nil {
		return model.Snapshot{}, err
	}

	return model.Snapshot{
		TakenAt: s.now().UTC(),
		Source:  SourceName,
		Records: records,
	}, nil
}

func (s *Source) login(ctx context.Context) error {
	code, err := s.code(s.cfg.TOTPSecret, s.now())
	if err != nil {
		return fmt.Errorf("generate totp: %w", err)
	}
	if _, err := s.api.GenerateSession(ctx, s.cfg.ClientCode, s.cfg.Password, code); err != nil {
		return err
	}
	log.Printf("[broker] session ready for %s", s.cfg.ClientCode)
	return nil
}

func (s *Source) fetchRecords(ctx context.Context) ([]model.Record, error) {
	holdings, err := s.api.Holdings(ctx)
	if err != nil {
		return nil, fmt.Errorf("holdings: %w", err)
	}
	positions, err := s.api.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	records := MapHoldings(holdings)
	records = append(records, MapPositions(positions)...)
	return records, nil
}

// MapHoldings converts demat holdings to HOLDING records. Empty holdings
// are skipped. Day change is (ltp - previous close) x quantity when the
// previous close is known.
func MapHoldings(hs []smartconnect.Holding) []model.Record {
	out := make([]model.Record, 0, len(hs))
	for _, h := range hs {
		qty := h.TotalQuantity()
		if qty == 0 {
			continue
		}
		symbol := baseSymbol(h.TradingSymbol)
		asset := model.AssetStock
		if isETF(symbol) {
			asset = model.AssetETF
		}
		r := model.NewHolding(h.Exchange+":"+h.TradingSymbol, symbol, asset, strings.ToUpper(h.Exchange),
			qty, h.AveragePrice.Float(), h.LTP.Float())
		r.Name = h.TradingSymbol
		if c := h.Close.Float(); c > 0 {
			r.DayChange = (h.LTP.Float() - c) * qty
		}
		out = append(out, r)
	}
	return out
}

// MapPositions converts open net positions to INTRADAY or FNO records.
// Flat positions are skipped. Derivatives are expressed in lots of the
// contract's lot size; a short position has direction SELL.
func MapPositions(ps []smartconnect.Position) []model.Record {
	out := make([]model.Record, 0, len(ps))
	for _, p := range ps {
		net := p.NetQty.Float()
		if net == 0 {
			continue
		}
		dir := model.Buy
		avg := p.BuyAvgPrice.Float()
		if net < 0 {
			dir = model.Sell
			avg = p.SellAvgPrice.Float()
		}
		if avg == 0 {
			avg = p.AvgNetPrice.Float()
		}
		units := math.Abs(net)
		ltp := p.LTP.Float()
		id := fmt.Sprintf("%s:%s:%s", p.Exchange, p.TradingSymbol, p.ProductType)

		var r model.Record
		if p.IsDerivative() {
			lot := p.LotSize.Float()
			if lot <= 0 {
				lot = 1
			}
			r = model.NewFnO(id, p.TradingSymbol, dir, units/lot, lot, avg, ltp)
			r.Exchange = strings.ToUpper(p.Exchange)
		} else {
			r = model.NewIntraday(id, baseSymbol(p.TradingSymbol), strings.ToUpper(p.Exchange), dir, units, avg, ltp)
		}
		r.Name = firstNonEmpty(p.SymbolName, p.TradingSymbol)

		// Carried positions move from yesterday's close, fresh ones from
		// their entry price.
		ref := p.Close.Float()
		if ref <= 0 {
			ref = avg
		}
		r.DayChange = dir.Sign() * (ltp - ref) * units
		out = append(out, r)
	}
	return out
}

// baseSymbol strips the NSE series suffix, e.g. "INFY-EQ" -> "INFY".
func baseSymbol(tradingSymbol string) string {
	for _, suffix := range []string{"-EQ", "-BE", "-BZ", "-SM", "-ST"} {
		if strings.HasSuffix(tradingSymbol, suffix) {
			return strings.TrimSuffix(tradingSymbol, suffix)
		}
	}
	return tradingSymbol
}

func isETF(symbol string) bool {
	s := strings.ToUpper(symbol)
	return strings.HasSuffix(s, "BEES") || strings.HasSuffix(s, "ETF") || strings.Contains(s, "IETF")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
