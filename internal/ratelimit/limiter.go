package ratelimit

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Counter is the per-user fixed-window state. One row per user, mutated on
// every allowed request, never deleted.
type Counter struct {
	UserID       uint64    `gorm:"primaryKey" json:"-"`
	RequestCount int       `gorm:"not null;default:0" json:"request_count"`
	LastRequest  time.Time `gorm:"not null" json:"last_request"`
}

func (Counter) TableName() string { return "rate_limits" }

type Limiter struct {
	db     *gorm.DB
	limit  int
	window time.Duration
}

func NewLimiter(db *gorm.DB, limit int, window time.Duration) *Limiter {
	return &Limiter{db: db, limit: limit, window: window}
}

// Allow consumes one request slot for userID. The window is anchored to the
// first request after an idle gap: a reset stores count=1 and the current
// time, so bursts after idle periods start a fresh window.
func (l *Limiter) Allow(ctx context.Context, userID uint64) (bool, error) {
	allowed := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var c Counter
		err := tx.Where("user_id = ?", userID).First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			allowed = true
			return tx.Create(&Counter{UserID: userID, RequestCount: 1, LastRequest: now}).Error
		}
		if err != nil {
			return err
		}

		if now.Sub(c.LastRequest) > l.window {
			c.RequestCount = 1
			c.LastRequest = now
			allowed = true
			return tx.Save(&c).Error
		}

		if c.RequestCount < l.limit {
			c.RequestCount++
			c.LastRequest = now
			allowed = true
			return tx.Save(&c).Error
		}

		// over the limit inside the window; state stays untouched
		return nil
	})
	return allowed, err
}
