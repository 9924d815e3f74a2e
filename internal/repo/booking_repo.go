// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Booking
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a booking is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/healthlab/go-lab-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateBooking inserts a new Booking row owned by userID. The booking ID is
// a randomly generated UUID (string), status starts as pending, and CreatedAt
// is set to UTC. The caller supplies the already-generated PIN.
func CreateBooking(ctx context.Context, db *gorm.DB, userID, testCode string, scheduledAt time.Time, address, pin string) (*domain.Booking, error) {
	b := &domain.Booking{
		ID:          uuid.NewString(),
		UserID:      userID,
		TestCode:    testCode,
		ScheduledAt: scheduledAt,
		Address:     address,
		Status:      domain.StatusPending,
		PIN:         pin,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, err
	}
	return b, nil
}

// GetBooking fetches a single booking by ID, or ErrNotFound if missing.
func GetBooking(ctx context.Context, db *gorm.DB, id string) (*domain.Booking, error) {
	var b domain.Booking
	err := db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBookings returns all bookings belonging to userID, ordered by scheduled
// time ascending (soonest first). It returns an empty slice if the user has
// no bookings. On DB error, it returns the error.
func ListBookings(ctx context.Context, db *gorm.DB, userID string) ([]domain.Booking, error) {
	var out []domain.Booking
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("scheduled_at asc").
		Find(&out).Error
	return out, err
}

// CountBookings returns the total number of bookings owned by userID.
func CountBookings(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// UpdateBookingStatus updates the status of a booking by ID. It performs a
// blind column update; transition rules are enforced by the service layer.
// Returns ErrNotFound if no row was affected.
func UpdateBookingStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
