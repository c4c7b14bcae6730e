package quotes

import (
	"encoding/json"
	"errors"

	"github.com/camuig/smartapi-proxy/internal/smartapi"
)

// Quote is the merged market snapshot of one symbol.
type Quote struct {
	LTP     float64
	Change  float64
	PChange float64
	Open    float64
	High    float64
	Low     float64
	Close   float64
}

// Result is the outcome for one requested symbol: exactly one of Quote and
// Err is set.
type Result struct {
	Symbol string
	Quote  *Quote
	Err    error
}

func (r Result) OK() bool {
	return r.Err == nil && r.Quote != nil
}

// Expired reports whether the symbol failed because the upstream rejected
// the session tokens.
func (r Result) Expired() bool {
	return errors.Is(r.Err, smartapi.ErrSessionExpired)
}

type quoteJSON struct {
	Symbol  string  `json:"symbol"`
	LTP     float64 `json:"ltp"`
	Change  float64 `json:"change"`
	PChange float64 `json:"pChange"`
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Close   float64 `json:"close"`
}

type failureJSON struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if !r.OK() {
		msg := "no data"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		return json.Marshal(failureJSON{Symbol: r.Symbol, Error: msg})
	}
	q := r.Quote
	return json.Marshal(quoteJSON{
		Symbol:  r.Symbol,
		LTP:     q.LTP,
		Change:  q.Change,
		PChange: q.PChange,
		Open:    q.Open,
		High:    q.High,
		Low:     q.Low,
		Close:   q.Close,
	})
}
