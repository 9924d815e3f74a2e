// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversation
// sessions and their turns.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/healthlab/go-lab-backend/internal/domain"
)

// GetOrCreateSession fetches the session for userID, creating an Idle session
// row lazily on the first message.
func GetOrCreateSession(ctx context.Context, db *gorm.DB, userID string) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	s = domain.Session{
		UserID:        userID,
		PendingAction: domain.PendingNone,
		CreatedAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdatePendingAction replaces the session's pending action and booking hint.
func UpdatePendingAction(ctx context.Context, db *gorm.DB, userID, action, bookingHint string) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"pending_action":       action,
			"pending_booking_hint": bookingHint,
		}).Error
}

// UpdateSessionTopic sets the session's auto-generated topic label.
func UpdateSessionTopic(ctx context.Context, db *gorm.DB, userID, topic string) error {
	return db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("user_id = ?", userID).
		Update("topic", topic).Error
}

// AppendTurn inserts one conversation turn for userID. The turn ID is a
// randomly generated UUID and CreatedAt is set to UTC.
func AppendTurn(ctx context.Context, db *gorm.DB, userID, role, content string) (*domain.Turn, error) {
	t := &domain.Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ListTurns returns the turns for userID ordered by creation time ascending.
// The id tiebreak keeps ordering stable for turns created within the same
// clock tick.
func ListTurns(ctx context.Context, db *gorm.DB, userID string) ([]domain.Turn, error) {
	var out []domain.Turn
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// CountTurns returns the number of stored turns for userID.
func CountTurns(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Turn{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// TrimTurns deletes the oldest turns for userID so that at most keep rows
// remain. It is the retention policy hook and runs only between conversation
// turns, never inside one.
func TrimTurns(ctx context.Context, db *gorm.DB, userID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	total, err := CountTurns(ctx, db, userID)
	if err != nil {
		return err
	}
	excess := total - int64(keep)
	if excess <= 0 {
		return nil
	}
	var ids []string
	err = db.WithContext(ctx).
		Model(&domain.Turn{}).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Order("id asc").
		Limit(int(excess)).
		Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return err
	}
	return db.WithContext(ctx).Where("id IN ?", ids).Delete(&domain.Turn{}).Error
}
