package storage

import "time"

// LoginEvent records one attempt to establish an upstream session.
type LoginEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	AccountID  string `gorm:"index;not null" json:"account_id"`
	Success    bool   `gorm:"not null" json:"success"`
	Restored   bool   `json:"restored"` // reused persisted tokens, no upstream login
	Reason     string `json:"reason"`
	DurationMs int64  `json:"duration_ms"`
}

// QuoteRequest records one served quote batch.
type QuoteRequest struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	AccountID  string `gorm:"index;not null" json:"account_id"`
	Symbols    string `gorm:"type:text" json:"symbols"` // comma separated, request order
	Requested  int    `json:"requested"`
	Failed     int    `json:"failed"`
	Retried    bool   `json:"retried"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error"`
}
