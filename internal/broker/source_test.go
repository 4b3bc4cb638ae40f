package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"portfolio-enginev1/config"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/pkg/smartconnect"
)

type MockAPI struct {
	mock.Mock
	session smartconnect.Session
}

func (m *MockAPI) GenerateSession(ctx context.Context, clientCode, password, code string) (smartconnect.Session, error) {
	args := m.Called(ctx, clientCode, password, code)
	if err := args.Error(1); err != nil {
		return smartconnect.Session{}, err
	}
	m.session = args.Get(0).(smartconnect.Session)
	return m.session, nil
}

func (m *MockAPI) Session() smartconnect.Session { return m.session }

func (m *MockAPI) Holdings(ctx context.Context) ([]smartconnect.Holding, error) {
	args := m.Called(ctx)
	hs, _ := args.Get(0).([]smartconnect.Holding)
	return hs, args.Error(1)
}

func (m *MockAPI) Positions(ctx context.Context) ([]smartconnect.Position, error) {
	args := m.Called(ctx)
	ps, _ := args.Get(0).([]smartconnect.Position)
	return ps, args.Error(1)
}

var testCfg = config.BrokerConfig{
	APIKey:     "key",
	ClientCode: "A123",
	Password:   "1111",
	TOTPSecret: "JBSWY3DPEHPK3PXP",
}

func newTestSource(api API) *Source {
	s := NewSourceWithAPI(api, testCfg)
	s.now = func() time.Time { return time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC) }
	return s
}

func TestMapHoldings(t *testing.T) {
	recs := MapHoldings([]smartconnect.Holding{
		{TradingSymbol: "INFY-EQ", Exchange: "NSE", Quantity: 10, T1Quantity: 2, AveragePrice: 1400, LTP: 1500, Close: 1490},
		{TradingSymbol: "NIFTYBEES-EQ", Exchange: "NSE", Quantity: 100, AveragePrice: 240, LTP: 250},
		{TradingSymbol: "SOLD-EQ", Exchange: "BSE", Quantity: 0},
	})

	require.Len(t, recs, 2)
	infy := recs[0]
	assert.Equal(t, "NSE:INFY-EQ", infy.ID)
	assert.Equal(t, model.KindHolding, infy.Kind)
	assert.Equal(t, "INFY", infy.Symbol)
	assert.Equal(t, model.AssetStock, infy.AssetType)
	assert.Equal(t, 12.0, infy.Quantity)
	assert.InDelta(t, 120, infy.DayChange, 1e-9)
	assert.NoError(t, infy.Validate())

	bees := recs[1]
	assert.Equal(t, model.AssetETF, bees.AssetType)
	assert.Zero(t, bees.DayChange, "no previous close means no day change")
}

func TestMapPositions(t *testing.T) {
	recs := MapPositions([]smartconnect.Position{
		{TradingSymbol: "NIFTY26MARFUT", Exchange: "NFO", InstrumentType: "FUTIDX", ProductType: "CARRYFORWARD",
			NetQty: -100, LotSize: 50, SellAvgPrice: 22000, LTP: 21950, Close: 21900},
		{TradingSymbol: "SBIN-EQ", Exchange: "NSE", ProductType: "INTRADAY",
			NetQty: 20, BuyAvgPrice: 800, LTP: 810},
		{TradingSymbol: "TCS-EQ", Exchange: "NSE", ProductType: "INTRADAY", NetQty: 0},
	})

	require.Len(t, recs, 2)
	fut := recs[0]
	assert.Equal(t, model.KindFnO, fut.Kind)
	assert.Equal(t, model.Sell, fut.Direction)
	assert.Equal(t, 2.0, fut.Quantity, "100 units / lot of 50")
	assert.Equal(t, 50.0, fut.Multiplier)
	assert.Equal(t, 22000.0, fut.ReferencePrice)
	assert.Equal(t, "NFO", fut.Exchange)
	assert.InDelta(t, -(21950-21900)*100, fut.DayChange, 1e-9)

	sbin := recs[1]
	assert.Equal(t, model.KindIntraday, sbin.Kind)
	assert.Equal(t, model.Buy, sbin.Direction)
	assert.Equal(t, "SBIN", sbin.Symbol)
	assert.Equal(t, 20.0, sbin.Quantity)
	assert.InDelta(t, 200, sbin.DayChange, 1e-9, "opened today: moves from entry")
	assert.NotEqual(t, fut.ID, sbin.ID)
}

func TestFetch_LogsInAndMaps(t *testing.T) {
	api := new(MockAPI)
	api.On("GenerateSession", mock.Anything, "A123", "1111", mock.MatchedBy(func(code string) bool {
		return len(code) == 6
	})).Return(smartconnect.Session{JWTToken: "jwt"}, nil).Once()
	api.On("Holdings", mock.Anything).Return([]smartconnect.Holding{
		{TradingSymbol: "INFY-EQ", Exchange: "NSE", Quantity: 1, AveragePrice: 1, LTP: 2},
	}, nil)
	api.On("Positions", mock.Anything).Return([]smartconnect.Position{}, nil)

	src := newTestSource(api)
	snap, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceName, snap.Source)
	assert.Len(t, snap.Records, 1)
	assert.False(t, snap.TakenAt.IsZero())

	// Session is reused on the next fetch.
	_, err = src.Fetch(context.Background())
	require.NoError(t, err)
	api.AssertNumberOfCalls(t, "GenerateSession", 1)
}

func TestFetch_RelogsOnExpiredToken(t *testing.T) {
	api := new(MockAPI)
	api.session = smartconnect.Session{JWTToken: "stale"}
	api.On("GenerateSession", mock.Anything, "A123", "1111", mock.Anything).
		Return(smartconnect.Session{JWTToken: "fresh"}, nil).Once()
	api.On("Holdings", mock.Anything).Return(nil, smartconnect.ErrTokenExpired).Once()
	api.On("Holdings", mock.Anything).Return([]smartconnect.Holding{}, nil).Once()
	api.On("Positions", mock.Anything).Return([]smartconnect.Position{}, nil).Once()

	snap, err := newTestSource(api).Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
	api.AssertExpectations(t)
}

func TestFetch_LoginFailure(t *testing.T) {
	api := new(MockAPI)
	api.On("GenerateSession", mock.Anything, "A123", "1111", mock.Anything).
		Return(smartconnect.Session{}, smartconnect.ErrLogin)

	_, err := newTestSource(api).Fetch(context.Background())
	assert.ErrorIs(t, err, smartconnect.ErrLogin)
	api.AssertNotCalled(t, "Holdings", mock.Anything)
}

func TestFetch_BadTOTPSecret(t *testing.T) {
	api := new(MockAPI)
	src := newTestSource(api)
	src.code = func(string, time.Time) (string, error) { return "", errors.New("bad secret") }

	_, err := src.Fetch(context.Background())
	assert.ErrorContains(t, err, "generate totp")
}
