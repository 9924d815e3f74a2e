// Handler wiring and service contracts.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Service dependencies are
// expressed as narrow interfaces so transport concerns stay separate from
// business logic and tests can substitute fakes.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/healthlab/go-lab-backend/internal/domain"
	"github.com/healthlab/go-lab-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ConversationService drives the chat state machine.
//
// Implementations must process messages for one user in arrival order and
// must honor the provided context for cancellation and timeouts.
type ConversationService interface {
	// HandleMessage processes one inbound message and returns the reply.
	HandleMessage(ctx context.Context, userID, text string) (*services.ChatResponse, error)
	// History returns the user's stored turns in order.
	History(ctx context.Context, userID string) ([]domain.Turn, error)
}

// BookingService defines the booking ledger operations consumed by HTTP
// handlers.
type BookingService interface {
	// Create inserts a new pending booking and mints its PIN.
	Create(ctx context.Context, userID, testCode string, scheduledAt time.Time, address string) (*domain.Booking, error)
	// List returns the user's bookings sorted by scheduled time ascending.
	List(ctx context.Context, userID string) ([]domain.Booking, error)
	// UpdateStatus moves a booking forward through its status machine.
	UpdateStatus(ctx context.Context, id, next string) error
}

// ReportService verifies a booking id + PIN pair and returns the report.
type ReportService interface {
	VerifyAndFetch(ctx context.Context, bookingID, pin string) (*services.Report, error)
}

// PromoService evaluates a promo code against a base price.
type PromoService interface {
	Apply(code string, basePrice float64) services.PromoResult
}

// CatalogReader exposes the read-only test catalog.
type CatalogReader interface {
	List() []domain.Test
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for chat, catalog, bookings, promos, and
// report access.
type Handlers struct {
	convSvc    ConversationService
	catalog    CatalogReader
	bookingSvc BookingService
	promoSvc   PromoService
	reportSvc  ReportService

	// IdempotencyTTL bounds how long a booking Idempotency-Key stays valid.
	IdempotencyTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(conv ConversationService, cat CatalogReader, bookings BookingService, promos PromoService, reports ReportService) *Handlers {
	return &Handlers{
		convSvc:        conv,
		catalog:        cat,
		bookingSvc:     bookings,
		promoSvc:       promos,
		reportSvc:      reports,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// resolveUserID picks the effective user id: explicit request value first,
// then the X-User-ID header (tests and the demo UI use it). Empty means the
// request is missing its user identity.
func resolveUserID(c *gin.Context, explicit string) string {
	if s := strings.TrimSpace(explicit); s != "" {
		return s
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return ""
}
