// Booking HTTP handlers.
//
// This file exposes the booking ledger endpoints:
//   - POST  /api/bookings            (create; returns the PIN exactly once)
//   - GET   /api/bookings            (list for a user; never includes the PIN)
//   - PATCH /api/bookings/:id/status (forward-only status transitions)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// creation exists for (user, key), the handler replays the original booking
// id and sets `Idempotency-Replayed: true`. The PIN is never replayed; it is
// returned only by the first creation response.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/healthlab/go-lab-backend/internal/http/middleware"
	"github.com/healthlab/go-lab-backend/internal/repo"
	"github.com/healthlab/go-lab-backend/internal/services"
)

// CreateBookingRequest is the JSON payload for creating a booking.
type CreateBookingRequest struct {
	UserID      string `json:"user_id"`
	TestCode    string `json:"test_code" binding:"required"`
	ScheduledAt string `json:"scheduled_at" binding:"required"`
	Address     string `json:"address"`
}

// CreateBookingResponse returns the new booking id and, on first creation
// only, the 4-digit report PIN.
type CreateBookingResponse struct {
	ID  string `json:"id"`
	PIN string `json:"pin,omitempty"`
}

// BookingItem is the listing projection of a booking. It intentionally has no
// PIN field.
type BookingItem struct {
	ID          string    `json:"id"`
	TestCode    string    `json:"test_code"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	Address     string    `json:"address,omitempty"`
}

// ListBookingsResponse wraps a user's bookings.
type ListBookingsResponse struct {
	Items []BookingItem `json:"items"`
}

// UpdateBookingStatusRequest is the JSON payload for a status transition.
type UpdateBookingStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CreateBooking handles POST /api/bookings.
func (h *Handlers) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: test_code and scheduled_at required")
		return
	}
	uid := resolveUserID(c, req.UserID)
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	at, ok2 := parseScheduledAt(req.ScheduledAt)
	if !ok2 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "scheduled_at must be an RFC3339 or YYYY-MM-DDTHH:MM timestamp")
		return
	}

	ctx := c.Request.Context()

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey == "" {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	var db = concreteBookingDB(h.bookingSvc)
	if idemKey != "" && db != nil {
		if rec, err := repo.GetIdempotency(ctx, db, uid, idemKey, time.Now().UTC()); err == nil && rec != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, rec.Status, CreateBookingResponse{ID: rec.BookingID})
			return
		}
	}

	b, err := h.bookingSvc.Create(ctx, uid, req.TestCode, at, strings.TrimSpace(req.Address))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownTest):
			fail(c, http.StatusBadRequest, ErrCodeUnknownTest, "unknown test code")
		case errors.Is(err, services.ErrInvalidSchedule):
			fail(c, http.StatusBadRequest, ErrCodeInvalidSchedule, "scheduled time must be in the future")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not create booking")
		}
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" && db != nil {
		ttl := h.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		_, _ = repo.CreateIdempotency(ctx, db, uid, idemKey, b.ID, http.StatusOK, ttl)
	}

	ok(c, http.StatusOK, CreateBookingResponse{ID: b.ID, PIN: b.PIN})
}

// ListBookings handles GET /api/bookings?user_id=. The response never carries
// the PIN field.
func (h *Handlers) ListBookings(c *gin.Context) {
	uid := resolveUserID(c, c.Query("user_id"))
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}

	bookings, err := h.bookingSvc.List(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list bookings")
		return
	}

	items := make([]BookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, BookingItem{
			ID:          b.ID,
			TestCode:    b.TestCode,
			ScheduledAt: b.ScheduledAt,
			Status:      b.Status,
			Address:     b.Address,
		})
	}
	ok(c, http.StatusOK, ListBookingsResponse{Items: items})
}

// UpdateBookingStatus handles PATCH /api/bookings/:id/status.
func (h *Handlers) UpdateBookingStatus(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "booking id must be a UUID")
		return
	}
	var req UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status is required")
		return
	}

	err := h.bookingSvc.UpdateStatus(c.Request.Context(), id, strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBookingNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "booking not found")
		case errors.Is(err, services.ErrInvalidTransition):
			fail(c, http.StatusConflict, ErrCodeInvalidTransition, "status transition not allowed")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not update booking")
		}
		return
	}
	noContent(c)
}

// parseScheduledAt accepts RFC3339 plus the datetime-local shapes the web UI
// submits.
func parseScheduledAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// concreteBookingDB unwraps the GORM handle from the concrete booking service
// for the idempotency record lookups. Fakes in tests simply skip idempotency.
func concreteBookingDB(svc BookingService) *gorm.DB {
	if s, okc := svc.(*services.BookingService); okc {
		return s.DB
	}
	return nil
}
