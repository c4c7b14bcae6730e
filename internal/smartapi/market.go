package smartapi

import (
	"context"
	"fmt"
)

const (
	ltpPath   = "/rest/secure/angelbroking/order/v1/getLtpData"
	quotePath = "/rest/secure/angelbroking/market/v1/quote/"
)

// LTP is the last-traded-price record for one instrument.
type LTP struct {
	Exchange      string
	TradingSymbol string
	SymbolToken   string
	LTP           float64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	// Change and PercentChange are not always present in the LTP record.
	Change        *float64
	PercentChange *float64
}

// Quote is the FULL market quote record for one instrument.
type Quote struct {
	Exchange      string
	TradingSymbol string
	SymbolToken   string
	LTP           float64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	NetChange     *float64
	PercentChange *float64
}

type ltpRequest struct {
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
}

type ltpData struct {
	Exchange      string   `json:"exchange"`
	TradingSymbol string   `json:"tradingsymbol"`
	SymbolToken   string   `json:"symboltoken"`
	LTP           *float64 `json:"ltp"`
	Open          *float64 `json:"open"`
	High          *float64 `json:"high"`
	Low           *float64 `json:"low"`
	Close         *float64 `json:"close"`
	Change        *float64 `json:"change"`
	PChange       *float64 `json:"pChange"`
}

type quoteRequest struct {
	Mode           string              `json:"mode"`
	ExchangeTokens map[string][]string `json:"exchangeTokens"`
}

type quoteData struct {
	Fetched   []fetchedQuote   `json:"fetched"`
	Unfetched []unfetchedQuote `json:"unfetched"`
}

type fetchedQuote struct {
	Exchange      string   `json:"exchange"`
	TradingSymbol string   `json:"tradingSymbol"`
	SymbolToken   string   `json:"symbolToken"`
	LTP           *float64 `json:"ltp"`
	Open          *float64 `json:"open"`
	High          *float64 `json:"high"`
	Low           *float64 `json:"low"`
	Close         *float64 `json:"close"`
	NetChange     *float64 `json:"netChange"`
	PercentChange *float64 `json:"percentChange"`
}

type unfetchedQuote struct {
	Exchange    string `json:"exchange"`
	SymbolToken string `json:"symbolToken"`
	Message     string `json:"message"`
	ErrorCode   string `json:"errorCode"`
}

// LTP fetches the last traded price of one instrument.
func (c *Client) LTP(ctx context.Context, exchange, tradingSymbol, symbolToken string) (*LTP, error) {
	var data ltpData
	err := c.post(ctx, ltpPath, true, ltpRequest{
		Exchange:      exchange,
		TradingSymbol: tradingSymbol,
		SymbolToken:   symbolToken,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("ltp %s: %w", tradingSymbol, err)
	}

	if data.LTP == nil {
		return nil, fmt.Errorf("ltp %s: missing field ltp: %w", tradingSymbol, ErrMalformedResponse)
	}

	return &LTP{
		Exchange:      data.Exchange,
		TradingSymbol: data.TradingSymbol,
		SymbolToken:   data.SymbolToken,
		LTP:           *data.LTP,
		Open:          deref(data.Open),
		High:          deref(data.High),
		Low:           deref(data.Low),
		Close:         deref(data.Close),
		Change:        data.Change,
		PercentChange: data.PChange,
	}, nil
}

// FullQuote fetches the FULL market quote of one instrument.
func (c *Client) FullQuote(ctx context.Context, exchange, symbolToken string) (*Quote, error) {
	var data quoteData
	err := c.post(ctx, quotePath, true, quoteRequest{
		Mode:           "FULL",
		ExchangeTokens: map[string][]string{exchange: {symbolToken}},
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbolToken, err)
	}

	if len(data.Fetched) == 0 {
		reason := "not fetched"
		if len(data.Unfetched) > 0 && data.Unfetched[0].Message != "" {
			reason = data.Unfetched[0].Message
		}
		return nil, fmt.Errorf("quote %s: %s: %w", symbolToken, reason, ErrMalformedResponse)
	}

	q := data.Fetched[0]
	for name, v := range map[string]*float64{"open": q.Open, "high": q.High, "low": q.Low, "close": q.Close} {
		if v == nil {
			return nil, fmt.Errorf("quote %s: missing field %s: %w", symbolToken, name, ErrMalformedResponse)
		}
	}

	return &Quote{
		Exchange:      q.Exchange,
		TradingSymbol: q.TradingSymbol,
		SymbolToken:   q.SymbolToken,
		LTP:           deref(q.LTP),
		Open:          *q.Open,
		High:          *q.High,
		Low:           *q.Low,
		Close:         *q.Close,
		NetChange:     q.NetChange,
		PercentChange: q.PercentChange,
	}, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
