package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/camuig/smartapi-proxy/internal/smartapi"
)

// ErrNotAuthenticated is returned for accounts with neither a live session
// nor registered credentials.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError is returned when the upstream rejects a login.
type AuthError struct {
	AccountID string
	Reason    string
	Err       error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s", e.AccountID, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Credentials identify one upstream account. They are kept in memory only.
type Credentials struct {
	APIKey     string
	ClientID   string
	Password   string
	TOTPSecret string
}

func (c Credentials) validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("client id is required")
	case c.APIKey == "":
		return errors.New("api key is required")
	case c.Password == "":
		return errors.New("password is required")
	case c.TOTPSecret == "":
		return errors.New("totp is required")
	}
	return nil
}

// MarketData is the part of the upstream API used once a session exists.
type MarketData interface {
	LTP(ctx context.Context, exchange, tradingSymbol, symbolToken string) (*smartapi.LTP, error)
	FullQuote(ctx context.Context, exchange, symbolToken string) (*smartapi.Quote, error)
}

// Upstream is a brokerage client bound to one API key.
type Upstream interface {
	MarketData
	Login(ctx context.Context, clientCode, password, totp string) (smartapi.Tokens, error)
	SetTokens(t smartapi.Tokens)
}

// Dialer creates an upstream client for an API key.
type Dialer func(apiKey string) Upstream

// Session is an authenticated upstream session for one account. Sessions are
// created and invalidated only by the Manager.
type Session struct {
	AccountID    string
	AuthToken    string
	FeedToken    string
	RefreshToken string
	Client       MarketData
	CreatedAt    time.Time

	valid atomic.Bool
}

func newSession(accountID string, client MarketData, tokens smartapi.Tokens, createdAt time.Time) *Session {
	s := &Session{
		AccountID:    accountID,
		AuthToken:    tokens.JWT,
		FeedToken:    tokens.Feed,
		RefreshToken: tokens.Refresh,
		Client:       client,
		CreatedAt:    createdAt,
	}
	s.valid.Store(true)
	return s
}

// Valid reports whether the session has not been invalidated.
func (s *Session) Valid() bool {
	return s != nil && s.valid.Load()
}

func (s *Session) record() Record {
	return Record{
		AccountID:    s.AccountID,
		AuthToken:    s.AuthToken,
		FeedToken:    s.FeedToken,
		RefreshToken: s.RefreshToken,
		CreatedAt:    s.CreatedAt,
	}
}
