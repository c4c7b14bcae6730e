package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Login events

func (r *Repository) SaveLoginEvent(ctx context.Context, ev *LoginEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *Repository) RecentLoginEvents(ctx context.Context, accountID string, limit int) ([]LoginEvent, error) {
	var events []LoginEvent
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// LastLogin returns the latest login event of accountID, or nil if there is
// none.
func (r *Repository) LastLogin(ctx context.Context, accountID string) (*LoginEvent, error) {
	var ev LoginEvent
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Quote requests

func (r *Repository) SaveQuoteRequest(ctx context.Context, req *QuoteRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) CountQuoteRequestsSince(ctx context.Context, accountID string, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&QuoteRequest{}).
		Where("account_id = ? AND created_at >= ?", accountID, since).
		Count(&n).Error
	return n, err
}
