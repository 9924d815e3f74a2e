// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ReportAccessAttempt model used by the PIN gate.
//
// The read-increment-compare sequence that enforces the lockout threshold
// must be atomic per booking id; callers are expected to run RecordFailure
// inside a transaction (see services.ReportService).
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/healthlab/go-lab-backend/internal/domain"
)

// GetAttempt returns the attempt record for bookingID, or nil when no failure
// has been recorded yet.
func GetAttempt(ctx context.Context, db *gorm.DB, bookingID string) (*domain.ReportAccessAttempt, error) {
	var a domain.ReportAccessAttempt
	err := db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// RecordFailure increments the failure counter for bookingID, creating the
// row on the first failure. When the counter reaches threshold the record is
// locked until now+window and the counter resets for the next window.
//
// It returns the post-update record so the caller can distinguish "one more
// failure" from "lockout tripped". Must be called inside a transaction keyed
// by booking id.
func RecordFailure(ctx context.Context, db *gorm.DB, bookingID string, threshold int, window time.Duration, now time.Time) (*domain.ReportAccessAttempt, error) {
	var a domain.ReportAccessAttempt
	err := db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&a).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		a = domain.ReportAccessAttempt{BookingID: bookingID}
	case err != nil:
		return nil, err
	}

	a.AttemptCount++
	if a.AttemptCount >= threshold {
		until := now.Add(window)
		a.LockedUntil = &until
		a.AttemptCount = 0
	}
	a.UpdatedAt = now

	if err := db.WithContext(ctx).Save(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ClearAttempt removes the attempt record for bookingID after a successful
// verification, so earlier near-lockout failures do not carry over.
func ClearAttempt(ctx context.Context, db *gorm.DB, bookingID string) error {
	return db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Delete(&domain.ReportAccessAttempt{}).Error
}
