package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/quotes"
	"github.com/camuig/smartapi-proxy/internal/session"
	"github.com/camuig/smartapi-proxy/internal/storage"
)

var (
	// ErrNotImplemented is returned by OptionChain.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInvalidRequest marks caller mistakes, such as too many symbols.
	ErrInvalidRequest = errors.New("invalid request")
)

type Sessions interface {
	Login(ctx context.Context, creds session.Credentials) (*session.Session, error)
	EnsureSession(ctx context.Context, accountID string) (*session.Session, error)
	Discard(s *session.Session) bool
	Lookup(accountID string) (*session.Session, bool)
}

type QuoteFetcher interface {
	GetQuotes(ctx context.Context, sess *session.Session, symbols []string) []quotes.Result
}

type Publisher interface {
	PublishQuotes(ctx context.Context, accountID string, results []quotes.Result) error
}

type Service struct {
	name           string
	defaultAccount string
	maxSymbols     int

	sessions  Sessions
	quotes    QuoteFetcher
	observer  *Observer
	publisher Publisher
	log       *logger.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithDefaultAccount sets the account used when a request names none.
func WithDefaultAccount(accountID string) Option {
	return func(s *Service) { s.defaultAccount = accountID }
}

func WithMaxSymbols(n int) Option {
	return func(s *Service) { s.maxSymbols = n }
}

func WithObserver(o *Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func New(name string, sessions Sessions, fetcher QuoteFetcher, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		name:     name,
		sessions: sessions,
		quotes:   fetcher,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.observer == nil {
		s.observer = NewObserver(nil, nil, nil, log)
	}
	return s
}

// Login establishes a fresh session for creds.
func (s *Service) Login(ctx context.Context, creds session.Credentials) (*session.Session, error) {
	return s.sessions.Login(ctx, creds)
}

// Quotes returns one result per symbol, in order. If the upstream rejects the
// session for some symbols, the session is discarded, one new login is made
// and only those symbols are queried again.
func (s *Service) Quotes(ctx context.Context, accountID string, symbols []string) ([]quotes.Result, error) {
	accountID = s.account(accountID)
	if accountID == "" {
		return nil, session.ErrNotAuthenticated
	}
	if s.maxSymbols > 0 && len(symbols) > s.maxSymbols {
		return nil, fmt.Errorf("%w: at most %d symbols per request", ErrInvalidRequest, s.maxSymbols)
	}

	started := s.now()
	results, retried, err := s.fetch(ctx, accountID, symbols)
	s.observer.onQuotes(ctx, quoteOutcome{
		accountID: accountID,
		symbols:   symbols,
		results:   results,
		retried:   retried,
		duration:  s.now().Sub(started),
		err:       err,
	})
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishQuotes(ctx, accountID, results); err != nil {
			s.log.Warn("publish quotes", "account", accountID, "error", err)
		}
	}
	return results, nil
}

func (s *Service) fetch(ctx context.Context, accountID string, symbols []string) ([]quotes.Result, bool, error) {
	sess, err := s.sessions.EnsureSession(ctx, accountID)
	if err != nil {
		return nil, false, err
	}

	results := s.quotes.GetQuotes(ctx, sess, symbols)

	var expired []int
	for i, r := range results {
		if r.Expired() {
			expired = append(expired, i)
		}
	}
	if len(expired) == 0 {
		return results, false, nil
	}

	s.log.Info("session rejected by upstream, re-authenticating", "account", accountID, "symbols", len(expired))
	s.sessions.Discard(sess)
	s.observer.onReauth()

	fresh, err := s.sessions.EnsureSession(ctx, accountID)
	if err != nil {
		return nil, true, fmt.Errorf("re-authenticate: %w", err)
	}

	again := make([]string, len(expired))
	for j, i := range expired {
		again[j] = symbols[i]
	}
	for j, r := range s.quotes.GetQuotes(ctx, fresh, again) {
		results[expired[j]] = r
	}
	return results, true, nil
}

// OptionChain is not implemented and always reports ErrNotImplemented.
func (s *Service) OptionChain(ctx context.Context, accountID, symbol string) error {
	return ErrNotImplemented
}

type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (s *Service) Health() Health {
	return Health{Status: "ok", Service: s.name}
}

type Status struct {
	AccountID     string              `json:"accountId"`
	Authenticated bool                `json:"authenticated"`
	SessionAge    float64             `json:"sessionAgeSeconds,omitempty"`
	LastLogin     *storage.LoginEvent `json:"lastLogin,omitempty"`
}

// Status reports the session state of an account without logging in.
func (s *Service) Status(ctx context.Context, accountID string) (Status, error) {
	accountID = s.account(accountID)
	if accountID == "" {
		return Status{}, fmt.Errorf("%w: clientId is required", ErrInvalidRequest)
	}

	st := Status{AccountID: accountID}
	if sess, ok := s.sessions.Lookup(accountID); ok {
		st.Authenticated = true
		st.SessionAge = s.now().Sub(sess.CreatedAt).Seconds()
	}
	st.LastLogin = s.observer.lastLogin(ctx, accountID)
	return st, nil
}

func (s *Service) account(accountID string) string {
	if accountID != "" {
		return accountID
	}
	return s.defaultAccount
}
