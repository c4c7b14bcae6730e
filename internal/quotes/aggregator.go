package quotes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/session"
	"github.com/camuig/smartapi-proxy/internal/smartapi"
	"github.com/camuig/smartapi-proxy/internal/symbols"
)

const (
	defaultExchange    = "NSE"
	defaultConcurrency = 8
	defaultCallTimeout = 5 * time.Second
)

type Resolver interface {
	Resolve(symbol string) symbols.Token
}

// Aggregator fans a batch of symbols out to the upstream and collects one
// Result per symbol in input order.
type Aggregator struct {
	resolver    Resolver
	exchange    string
	concurrency int
	callTimeout time.Duration
	log         *logger.Logger
}

type Option func(*Aggregator)

func WithExchange(exchange string) Option {
	return func(a *Aggregator) {
		if exchange != "" {
			a.exchange = exchange
		}
	}
}

// WithConcurrency bounds the number of symbols queried at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithCallTimeout bounds every single upstream call.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

func NewAggregator(resolver Resolver, log *logger.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		resolver:    resolver,
		exchange:    defaultExchange,
		concurrency: defaultConcurrency,
		callTimeout: defaultCallTimeout,
		log:         log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetQuotes queries every symbol with sess and returns results of the same
// length and order as syms. Failures are reported per symbol and never stop
// the rest of the batch.
func (a *Aggregator) GetQuotes(ctx context.Context, sess *session.Session, syms []string) []Result {
	results := make([]Result, len(syms))
	if len(syms) == 0 {
		return results
	}

	var (
		wg  sync.WaitGroup
		sem = make(chan struct{}, a.concurrency)
	)

	for i, sym := range syms {
		wg.Add(1)
		sem <- struct{}{}

		i, sym := i, sym
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = a.fetchOne(ctx, sess.Client, sym)
			if results[i].Err != nil {
				a.log.Warn("fetch quote", "symbol", sym, "error", results[i].Err)
			}
		}()
	}

	wg.Wait()
	return results
}

func (a *Aggregator) fetchOne(ctx context.Context, client session.MarketData, symbol string) Result {
	token := a.resolver.Resolve(symbol)
	if token == symbols.NotFound {
		return Result{Symbol: symbol, Err: symbols.ErrUnresolved}
	}
	if err := ctx.Err(); err != nil {
		return Result{Symbol: symbol, Err: err}
	}

	ltp, err := a.ltp(ctx, client, symbol, string(token))
	if err != nil {
		return Result{Symbol: symbol, Err: err}
	}
	full, err := a.fullQuote(ctx, client, string(token))
	if err != nil {
		return Result{Symbol: symbol, Err: err}
	}

	q, err := merge(ltp, full)
	if err != nil {
		return Result{Symbol: symbol, Err: fmt.Errorf("%s: %w", symbol, err)}
	}
	return Result{Symbol: symbol, Quote: q}
}

func (a *Aggregator) ltp(ctx context.Context, client session.MarketData, symbol, token string) (*smartapi.LTP, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	return client.LTP(ctx, a.exchange, symbol, token)
}

func (a *Aggregator) fullQuote(ctx context.Context, client session.MarketData, token string) (*smartapi.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()
	return client.FullQuote(ctx, a.exchange, token)
}

// merge takes the price from the LTP record and the day range from the full
// quote. Change figures prefer the LTP record.
func merge(ltp *smartapi.LTP, full *smartapi.Quote) (*Quote, error) {
	change := ltp.Change
	if change == nil {
		change = full.NetChange
	}
	pChange := ltp.PercentChange
	if pChange == nil {
		pChange = full.PercentChange
	}
	if change == nil {
		return nil, fmt.Errorf("missing field change: %w", smartapi.ErrMalformedResponse)
	}
	if pChange == nil {
		return nil, fmt.Errorf("missing field pChange: %w", smartapi.ErrMalformedResponse)
	}

	return &Quote{
		LTP:     ltp.LTP,
		Change:  *change,
		PChange: *pChange,
		Open:    full.Open,
		High:    full.High,
		Low:     full.Low,
		Close:   full.Close,
	}, nil
}
