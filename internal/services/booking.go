// Package services – BookingService
//
// This file implements the booking ledger: creating bookings against the
// catalog, listing a user's bookings, and enforcing forward-only status
// transitions. Booking creation also mints the 4-digit report access PIN;
// the PIN is returned to the caller exactly once (in the creation result)
// and is excluded from every listing.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// user and booking identifiers. PINs never appear in span attributes or logs.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"

	"github.com/healthlab/go-lab-backend/internal/domain"
	"github.com/healthlab/go-lab-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BookingService coordinates booking persistence and scheduling rules.
type BookingService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Catalog validates test codes on creation.
	Catalog *Catalog

	// Now allows tests to pin the clock; defaults to time.Now.
	Now func() time.Time
}

// NewBookingService constructs a BookingService.
func NewBookingService(db *gorm.DB, cat *Catalog) *BookingService {
	return &BookingService{DB: db, Catalog: cat, Now: time.Now}
}

// Create validates and inserts a new booking for userID.
//
// It rejects unknown test codes (ErrUnknownTest) and schedules that are not
// strictly in the future (ErrInvalidSchedule). On success the returned
// Booking carries the freshly generated PIN; this is the only place the PIN
// ever leaves the service.
func (s *BookingService) Create(ctx context.Context, userID, testCode string, scheduledAt time.Time, address string) (*domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("test.code", testCode),
		),
	)
	defer span.End()

	t, ok := s.Catalog.Get(testCode)
	if !ok {
		return nil, ErrUnknownTest
	}
	if !scheduledAt.After(s.now()) {
		return nil, ErrInvalidSchedule
	}

	pin, err := generatePIN()
	if err != nil {
		return nil, err
	}
	return repo.CreateBooking(ctx, s.DB, userID, t.Code, scheduledAt, address, pin)
}

// List returns the user's bookings sorted by scheduled time ascending.
// The PIN field is never serialized (json:"-"); listings are safe to return
// to the client as-is.
func (s *BookingService) List(ctx context.Context, userID string) ([]domain.Booking, error) {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "List",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	return repo.ListBookings(ctx, s.DB, userID)
}

// Get fetches a booking by id, mapping missing rows to ErrBookingNotFound.
func (s *BookingService) Get(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := repo.GetBooking(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return b, nil
}

// UpdateStatus moves a booking to the next status, enforcing the forward-only
// transition rules (pending → confirmed → completed; cancel from pending or
// confirmed). Invalid targets return ErrInvalidTransition.
func (s *BookingService) UpdateStatus(ctx context.Context, id, next string) error {
	tr := otel.Tracer("services/BookingService")
	ctx, span := tr.Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("booking.id", id),
			attribute.String("booking.status", next),
		),
	)
	defer span.End()

	switch next {
	case domain.StatusConfirmed, domain.StatusCompleted, domain.StatusCancelled:
	default:
		return ErrInvalidTransition
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := repo.GetBooking(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookingNotFound
			}
			return err
		}
		if !domain.CanTransition(b.Status, next) {
			return ErrInvalidTransition
		}
		return repo.UpdateBookingStatus(ctx, tx, id, next)
	})
}

func (s *BookingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// generatePIN returns a uniformly random 4-digit PIN ("0000".."9999") from
// crypto/rand.
func generatePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
