package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/smartapi"
)

const (
	defaultLoginTimeout = 15 * time.Second
	defaultMaxAge       = 20 * time.Hour
	storeTimeout        = 2 * time.Second
)

// LoginEvent describes one completed attempt to establish a session.
type LoginEvent struct {
	AccountID string
	Restored  bool
	Duration  time.Duration
	Err       error
}

type LoginHook func(LoginEvent)

// Manager owns the session table. At most one login per account is in
// flight at any time; callers for the same account share its outcome.
type Manager struct {
	dial         Dialer
	store        Store
	log          *logger.Logger
	now          func() time.Time
	maxAge       time.Duration
	loginTimeout time.Duration
	hooks        []LoginHook

	mu       sync.RWMutex
	creds    map[string]Credentials
	sessions map[string]*Session

	flight singleflight.Group
}

type Option func(*Manager)

// WithStore persists session tokens in s.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMaxAge sets how long a session is trusted; zero disables the limit.
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) { m.maxAge = d }
}

func WithLoginTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.loginTimeout = d
		}
	}
}

func WithLoginHook(h LoginHook) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, h) }
}

func NewManager(dial Dialer, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		dial:         dial,
		log:          log,
		now:          time.Now,
		maxAge:       defaultMaxAge,
		loginTimeout: defaultLoginTimeout,
		creds:        make(map[string]Credentials),
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SmartAPIDialer returns a Dialer producing SmartAPI REST clients.
func SmartAPIDialer(opts ...smartapi.Option) Dialer {
	return func(apiKey string) Upstream {
		return smartapi.NewClient(apiKey, opts...)
	}
}

// Register stores credentials for later lazy logins. Replacing credentials
// that differ from the stored ones invalidates the current session.
func (m *Manager) Register(creds Credentials) error {
	if err := creds.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	prev, known := m.creds[creds.ClientID]
	m.creds[creds.ClientID] = creds
	m.mu.Unlock()

	if known && prev != creds {
		m.Invalidate(creds.ClientID)
	}
	return nil
}

// Login authenticates creds and, only on success, makes them the account's
// registered credentials and the result its current session. A failed login
// leaves the registered credentials and the live session untouched.
// Concurrent logins with identical credentials share one upstream call.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*Session, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}

	ch := m.flight.DoChan(loginKey(creds), func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loginTimeout)
		defer cancel()

		started := m.now()
		s, err := m.Authenticate(lctx, creds)
		m.emit(LoginEvent{AccountID: creds.ClientID, Duration: m.now().Sub(started), Err: err})
		if err != nil {
			m.log.Error("login failed", "account", creds.ClientID, "error", err)
			return nil, err
		}

		m.mu.Lock()
		m.creds[creds.ClientID] = mergeCredentials(m.creds[creds.ClientID], creds)
		m.mu.Unlock()

		m.put(s)
		m.persist(lctx, s)
		m.log.Info("session established", "account", creds.ClientID)
		return s, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	}
}

// loginKey separates explicit logins from lazy ones and from logins with
// other credentials for the same account.
func loginKey(creds Credentials) string {
	h := sha256.New()
	for _, f := range []string{creds.APIKey, creds.ClientID, creds.Password, creds.TOTPSecret} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return "login:" + creds.ClientID + ":" + hex.EncodeToString(h.Sum(nil))
}

// mergeCredentials keeps a registered TOTP secret when next only carries a
// one-time code, which cannot serve later lazy logins.
func mergeCredentials(prev, next Credentials) Credentials {
	if prev.TOTPSecret != "" && !isCode(strings.TrimSpace(prev.TOTPSecret)) && isCode(strings.TrimSpace(next.TOTPSecret)) {
		next.TOTPSecret = prev.TOTPSecret
	}
	return next
}

// Lookup returns the live session for accountID, if any.
func (m *Manager) Lookup(accountID string) (*Session, bool) {
	s := m.current(accountID)
	return s, s != nil
}

// EnsureSession returns a valid session for accountID, logging in when none
// exists. Concurrent callers for the same account share a single login.
// Cancelling ctx releases the caller but not the shared login.
func (m *Manager) EnsureSession(ctx context.Context, accountID string) (*Session, error) {
	if s := m.current(accountID); s != nil {
		return s, nil
	}

	ch := m.flight.DoChan(accountID, func() (any, error) {
		if s := m.current(accountID); s != nil {
			return s, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.loginTimeout)
		defer cancel()
		return m.establish(lctx, accountID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	}
}

// Invalidate drops the current session of accountID.
func (m *Manager) Invalidate(accountID string) {
	m.mu.Lock()
	s := m.sessions[accountID]
	delete(m.sessions, accountID)
	m.mu.Unlock()

	if s != nil {
		s.valid.Store(false)
		m.log.Info("session invalidated", "account", accountID)
	}
	m.forget(accountID)
}

// Discard invalidates s only if it is still the account's current session,
// so a session created by a concurrent re-login survives. It reports whether
// s was removed.
func (m *Manager) Discard(s *Session) bool {
	if s == nil {
		return false
	}
	s.valid.Store(false)

	m.mu.Lock()
	removed := m.sessions[s.AccountID] == s
	if removed {
		delete(m.sessions, s.AccountID)
	}
	m.mu.Unlock()

	if removed {
		m.log.Info("session discarded", "account", s.AccountID)
		m.forget(s.AccountID)
	}
	return removed
}

// Authenticate performs one upstream login without touching the session
// table.
func (m *Manager) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	code, err := OneTimePassword(creds.TOTPSecret, m.now())
	if err != nil {
		return nil, &AuthError{AccountID: creds.ClientID, Reason: "invalid totp secret", Err: err}
	}

	client := m.dial(creds.APIKey)
	tokens, err := client.Login(ctx, creds.ClientID, creds.Password, code)
	if err != nil {
		var apiErr *smartapi.APIError
		if errors.As(err, &apiErr) {
			return nil, &AuthError{AccountID: creds.ClientID, Reason: apiErr.Reason(), Err: err}
		}
		return nil, fmt.Errorf("login %s: %w", creds.ClientID, err)
	}
	return newSession(creds.ClientID, client, tokens, m.now()), nil
}

func (m *Manager) current(accountID string) *Session {
	m.mu.RLock()
	s := m.sessions[accountID]
	m.mu.RUnlock()

	if !s.Valid() || m.tooOld(s.CreatedAt) {
		return nil
	}
	return s
}

func (m *Manager) tooOld(createdAt time.Time) bool {
	return m.maxAge > 0 && m.now().Sub(createdAt) >= m.maxAge
}

func (m *Manager) credentials(accountID string) (Credentials, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[accountID]
	return c, ok
}

func (m *Manager) establish(ctx context.Context, accountID string) (*Session, error) {
	creds, ok := m.credentials(accountID)
	if !ok {
		return nil, ErrNotAuthenticated
	}

	started := m.now()
	if s := m.restore(ctx, creds); s != nil {
		s = m.adopt(s)
		m.emit(LoginEvent{AccountID: accountID, Restored: true})
		return s, nil
	}

	s, err := m.Authenticate(ctx, creds)
	m.emit(LoginEvent{AccountID: accountID, Duration: m.now().Sub(started), Err: err})
	if err != nil {
		m.log.Error("login failed", "account", accountID, "error", err)
		return nil, err
	}

	if cur := m.adopt(s); cur != s {
		return cur, nil
	}
	m.persist(ctx, s)
	m.log.Info("session established", "account", accountID)
	return s, nil
}

func (m *Manager) put(s *Session) {
	m.mu.Lock()
	prev := m.sessions[s.AccountID]
	m.sessions[s.AccountID] = s
	m.mu.Unlock()

	if prev != nil && prev != s {
		prev.valid.Store(false)
	}
}

// adopt installs s unless an explicit Login already put a live session in
// place while s was being established. It returns the session now current.
func (m *Manager) adopt(s *Session) *Session {
	m.mu.Lock()
	cur := m.sessions[s.AccountID]
	if cur.Valid() && !m.tooOld(cur.CreatedAt) {
		m.mu.Unlock()
		s.valid.Store(false)
		return cur
	}
	m.sessions[s.AccountID] = s
	m.mu.Unlock()

	if cur != nil {
		cur.valid.Store(false)
	}
	return s
}

func (m *Manager) restore(ctx context.Context, creds Credentials) *Session {
	if m.store == nil {
		return nil
	}
	rec, ok, err := m.store.Load(ctx, creds.ClientID)
	if err != nil {
		m.log.Warn("session store load failed", "account", creds.ClientID, "error", err)
		return nil
	}
	if !ok || rec.AuthToken == "" || m.tooOld(rec.CreatedAt) {
		return nil
	}

	tokens := smartapi.Tokens{JWT: rec.AuthToken, Refresh: rec.RefreshToken, Feed: rec.FeedToken}
	client := m.dial(creds.APIKey)
	client.SetTokens(tokens)
	m.log.Info("session restored", "account", creds.ClientID)
	return newSession(creds.ClientID, client, tokens, rec.CreatedAt)
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	if m.store == nil {
		return
	}
	ttl := time.Duration(0)
	if m.maxAge > 0 {
		ttl = m.maxAge - m.now().Sub(s.CreatedAt)
		if ttl <= 0 {
			return
		}
	}
	if err := m.store.Save(ctx, s.record(), ttl); err != nil {
		m.log.Warn("session store save failed", "account", s.AccountID, "error", err)
	}
}

func (m *Manager) forget(accountID string) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := m.store.Delete(ctx, accountID); err != nil {
		m.log.Warn("session store delete failed", "account", accountID, "error", err)
	}
}

func (m *Manager) emit(ev LoginEvent) {
	for _, h := range m.hooks {
		h(ev)
	}
}
