package symbols

import (
	"errors"
	"maps"
	"strings"
)

// Token is the exchange-assigned numeric identifier of an instrument, kept as
// the decimal string the upstream API expects.
type Token string

// NotFound is returned by Resolve for symbols missing from the table.
const NotFound Token = ""

// ErrUnresolved marks a per-symbol failure for a symbol without a token.
var ErrUnresolved = errors.New("symbol token not found")

// defaultTokens are NSE equity tokens known without any mapping file.
var defaultTokens = map[string]Token{
	"RELIANCE": "2885",
	"TCS":      "11536",
	"HDFCBANK": "1333",
	"INFY":     "1594",
}

// Table is a read-only symbol to token mapping. It must not be modified after
// it has been handed to the quote aggregator.
type Table struct {
	tokens map[string]Token
}

// NewTable returns a table seeded with the built-in tokens plus extra.
// Entries in extra override the built-ins.
func NewTable(extra map[string]Token) *Table {
	tokens := maps.Clone(defaultTokens)
	for sym, tok := range extra {
		sym = strings.TrimSpace(sym)
		if sym == "" || tok == NotFound {
			continue
		}
		tokens[sym] = tok
	}
	return &Table{tokens: tokens}
}

// Resolve maps symbol to its token, or NotFound.
func (t *Table) Resolve(symbol string) Token {
	if t == nil {
		return NotFound
	}
	return t.tokens[symbol]
}

func (t *Table) Len() int {
	return len(t.tokens)
}
