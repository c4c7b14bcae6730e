package service

import (
	"context"
	"strings"
	"time"

	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/quotes"
	"github.com/camuig/smartapi-proxy/internal/session"
	"github.com/camuig/smartapi-proxy/internal/storage"
)

const auditTimeout = 2 * time.Second

type Auditor interface {
	SaveLoginEvent(ctx context.Context, ev *storage.LoginEvent) error
	SaveQuoteRequest(ctx context.Context, req *storage.QuoteRequest) error
	LastLogin(ctx context.Context, accountID string) (*storage.LoginEvent, error)
}

type Notifier interface {
	NotifyLoginFailure(accountID string, err error)
}

type Recorder interface {
	ObserveLogin(outcome string)
	ObserveQuote(ok bool)
	ObserveReauth()
}

// Observer fans login and quote outcomes out to the audit log, metrics and
// notifications. Any of them may be nil.
type Observer struct {
	audit    Auditor
	notifier Notifier
	metrics  Recorder
	log      *logger.Logger
}

func NewObserver(audit Auditor, notifier Notifier, metrics Recorder, log *logger.Logger) *Observer {
	return &Observer{audit: audit, notifier: notifier, metrics: metrics, log: log}
}

// OnLogin is a session.LoginHook.
func (o *Observer) OnLogin(ev session.LoginEvent) {
	outcome := "success"
	switch {
	case ev.Err != nil:
		outcome = "failure"
	case ev.Restored:
		outcome = "restored"
	}
	if o.metrics != nil {
		o.metrics.ObserveLogin(outcome)
	}

	if ev.Err != nil && o.notifier != nil {
		go o.notifier.NotifyLoginFailure(ev.AccountID, ev.Err)
	}

	if o.audit == nil {
		return
	}
	rec := &storage.LoginEvent{
		AccountID:  ev.AccountID,
		Success:    ev.Err == nil,
		Restored:   ev.Restored,
		DurationMs: ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		rec.Reason = ev.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := o.audit.SaveLoginEvent(ctx, rec); err != nil {
		o.log.Error("save login event", "account", ev.AccountID, "error", err)
	}
}

func (o *Observer) onReauth() {
	if o.metrics != nil {
		o.metrics.ObserveReauth()
	}
}

type quoteOutcome struct {
	accountID string
	symbols   []string
	results   []quotes.Result
	retried   bool
	duration  time.Duration
	err       error
}

func (o *Observer) onQuotes(ctx context.Context, q quoteOutcome) {
	failed := 0
	for _, r := range q.results {
		if !r.OK() {
			failed++
		}
		if o.metrics != nil {
			o.metrics.ObserveQuote(r.OK())
		}
	}

	if o.audit == nil {
		return
	}
	rec := &storage.QuoteRequest{
		AccountID:  q.accountID,
		Symbols:    strings.Join(q.symbols, ","),
		Requested:  len(q.symbols),
		Failed:     failed,
		Retried:    q.retried,
		DurationMs: q.duration.Milliseconds(),
	}
	if q.err != nil {
		rec.Error = q.err.Error()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := o.audit.SaveQuoteRequest(ctx, rec); err != nil {
		o.log.Error("save quote request", "account", q.accountID, "error", err)
	}
}

func (o *Observer) lastLogin(ctx context.Context, accountID string) *storage.LoginEvent {
	if o.audit == nil {
		return nil
	}
	ev, err := o.audit.LastLogin(ctx, accountID)
	if err != nil {
		o.log.Warn("load last login", "account", accountID, "error", err)
		return nil
	}
	return ev
}
