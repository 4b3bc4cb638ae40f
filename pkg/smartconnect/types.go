package smartconnect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Number decodes SmartAPI numeric fields, which arrive either as JSON
// numbers or as strings ("1,234.50", "" and "-" count as zero).
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" || s == "-" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("smartconnect: bad number %q: %w", s, err)
		}
		*n = Number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

// Float returns n as float64.
func (n Number) Float() float64 { return float64(n) }

// Holding is one row of getHolding.
type Holding struct {
	TradingSymbol      string `json:"tradingsymbol"`
	Exchange           string `json:"exchange"`
	ISIN               string `json:"isin"`
	SymbolToken        string `json:"symboltoken"`
	Product            string `json:"product"`
	Quantity           Number `json:"quantity"`
	T1Quantity         Number `json:"t1quantity"`
	RealisedQuantity   Number `json:"realisedquantity"`
	AuthorisedQuantity Number `json:"authorisedquantity"`
	CollateralQuantity Number `json:"collateralquantity"`
	Haircut            Number `json:"haircut"`
	AveragePrice       Number `json:"averageprice"`
	LTP                Number `json:"ltp"`
	Close              Number `json:"close"`
	ProfitAndLoss      Number `json:"profitandloss"`
	PnLPercentage      Number `json:"pnlpercentage"`
}

// TotalQuantity is settled plus T1 quantity.
func (h Holding) TotalQuantity() float64 {
	return h.Quantity.Float() + h.T1Quantity.Float()
}

// Position is one row of getPosition.
type Position struct {
	Exchange       string `json:"exchange"`
	SymbolToken    string `json:"symboltoken"`
	ProductType    string `json:"producttype"`
	TradingSymbol  string `json:"tradingsymbol"`
	SymbolName     string `json:"symbolname"`
	InstrumentType string `json:"instrumenttype"`
	StrikePrice    Number `json:"strikeprice"`
	OptionType     string `json:"optiontype"`
	ExpiryDate     string `json:"expirydate"`
	LotSize        Number `json:"lotsize"`
	BuyQty         Number `json:"buyqty"`
	SellQty        Number `json:"sellqty"`
	NetQty         Number `json:"netqty"`
	BuyAvgPrice    Number `json:"buyavgprice"`
	SellAvgPrice   Number `json:"sellavgprice"`
	AvgNetPrice    Number `json:"avgnetprice"`
	NetValue       Number `json:"netvalue"`
	LTP            Number `json:"ltp"`
	Close          Number `json:"close"`
	RealisedPnL    Number `json:"realised"`
	UnrealisedPnL  Number `json:"unrealised"`
}

// IsDerivative reports whether p is a futures or options contract.
func (p Position) IsDerivative() bool {
	switch strings.ToUpper(p.InstrumentType) {
	case "FUTIDX", "FUTSTK", "OPTIDX", "OPTSTK", "FUTCOM", "OPTFUT", "FUTCUR", "OPTCUR":
		return true
	}
	switch strings.ToUpper(p.Exchange) {
	case "NFO", "BFO", "MCX", "CDS":
		return true
	}
	return false
}
