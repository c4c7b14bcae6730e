package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/camuig/smartapi-proxy/internal/logger"
	"github.com/camuig/smartapi-proxy/internal/quotes"
)

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// QuoteEvent is the message value published for every successful quote.
type QuoteEvent struct {
	AccountID string  `json:"account_id"`
	Symbol    string  `json:"symbol"`
	LTP       float64 `json:"ltp"`
	Change    float64 `json:"change"`
	PChange   float64 `json:"pChange"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Timestamp int64   `json:"ts"` // unix micro
}

type Publisher struct {
	writer KafkaWriter
	now    func() time.Time
	log    *logger.Logger
}

// NewKafkaWriter builds an async writer keyed by symbol so updates of one
// symbol land in one partition.
func NewKafkaWriter(brokers []string, topic string, log *logger.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		ErrorLogger:  kafka.LoggerFunc(log.Errorf),
	}
}

func NewPublisher(writer KafkaWriter, log *logger.Logger) *Publisher {
	return &Publisher{writer: writer, now: time.Now, log: log}
}

// PublishQuotes sends the successful results; failed symbols are skipped.
func (p *Publisher) PublishQuotes(ctx context.Context, accountID string, results []quotes.Result) error {
	msgs, err := buildMessages(accountID, results, p.now())
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish quotes: %w", err)
	}
	p.log.Debug("quotes published", "account", accountID, "count", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func buildMessages(accountID string, results []quotes.Result, at time.Time) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			continue
		}
		payload, err := json.Marshal(QuoteEvent{
			AccountID: accountID,
			Symbol:    r.Symbol,
			LTP:       r.Quote.LTP,
			Change:    r.Quote.Change,
			PChange:   r.Quote.PChange,
			Open:      r.Quote.Open,
			High:      r.Quote.High,
			Low:       r.Quote.Low,
			Close:     r.Quote.Close,
			Timestamp: at.UnixMicro(),
		})
		if err != nil {
			return nil, fmt.Errorf("encode quote %s: %w", r.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(r.Symbol), Value: payload, Time: at})
	}
	return msgs, nil
}
