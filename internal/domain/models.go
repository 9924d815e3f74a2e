// Package domain defines the reference data and persistence models for the
// lab booking orchestrator. Persisted types are mapped with GORM; Test and
// PromoCode are immutable reference data loaded at catalog bootstrap and are
// never written back to the store.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Booking statuses. Transitions only move forward: pending → confirmed →
// completed. Cancellation is allowed from pending or confirmed.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Pending actions a conversation session may be parked on.
const (
	PendingNone        = ""
	PendingAwaitingPin = "awaiting_pin"
)

// Test is a lab test offered by the catalog. Reference data: created at
// catalog load, never mutated at runtime, safe for unbounded concurrent reads.
//
// Keywords feed the symptom matcher; they are not exposed over the API.
type Test struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Price       float64  `json:"price"`
	Preparation string   `json:"preparation"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Promo kinds supported by the promo engine.
const (
	PromoPercentage = "percentage"
	PromoFlatAmount = "flat_amount"
)

// PromoCode is a discount rule evaluated by the promo engine. Reference data,
// looked up per request and never mutated.
type PromoCode struct {
	Code      string     `json:"code"`
	Kind      string     `json:"kind"` // percentage | flat_amount
	Value     float64    `json:"value"`
	MinPrice  float64    `json:"min_price,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Booking is a scheduled lab test owned by a user. The PIN gates report
// access: it is generated once at creation, returned only in the creation
// response, and excluded from every listing (json:"-").
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: identifier of the booking owner; indexed for retrieval.
//   - TestCode: catalog test code; validated against the catalog on create.
//   - ScheduledAt: appointment time; must be strictly in the future on create.
//   - Address: optional home sample-collection address.
//   - Status: pending | confirmed | completed | cancelled.
//   - PIN: 4-digit report access code. Never serialized, never logged.
type Booking struct {
	ID          string         `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string         `json:"user_id"      gorm:"type:varchar(64);not null;index:idx_user_bookings"`
	TestCode    string         `json:"test_code"    gorm:"type:varchar(16);not null"`
	ScheduledAt time.Time      `json:"scheduled_at" gorm:"not null;index"`
	Address     string         `json:"address,omitempty" gorm:"type:varchar(255)"`
	Status      string         `json:"status"       gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','confirmed','completed','cancelled')"`
	PIN         string         `json:"-"            gorm:"column:pin;type:char(4);not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"            gorm:"index"`
}

// TableName returns the database table name for Booking.
func (Booking) TableName() string { return "bookings" }

// CanTransition reports whether a booking status change is allowed.
// Transitions are forward-only; cancelled and completed are terminal.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// Session tracks the conversational state of a single user. One row per user,
// created lazily on the first message and never deleted. PendingAction parks
// the session on a multi-turn flow (currently only the PIN challenge); Topic
// is a short label auto-generated from the first user message.
type Session struct {
	UserID             string    `json:"user_id"              gorm:"type:varchar(64);primaryKey"`
	Topic              string    `json:"topic"                gorm:"type:varchar(64);not null;default:''"`
	PendingAction      string    `json:"pending_action"       gorm:"type:varchar(32);not null;default:''"`
	PendingBookingHint string    `json:"pending_booking_hint" gorm:"type:varchar(64);not null;default:''"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Turn is one utterance within a user's conversation. Turns are append-only;
// retention trimming removes the oldest rows between conversation turns,
// never mid-turn.
type Turn struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_turns,priority:1"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_user_turns,priority:2"`
}

// TableName returns the database table name for Turn.
func (Turn) TableName() string { return "turns" }

// ReportAccessAttempt tracks failed PIN attempts per booking. The row is
// created on the first failure, incremented atomically on each subsequent
// failure, and cleared on success. AttemptCount never exceeds the lockout
// threshold without LockedUntil being set.
type ReportAccessAttempt struct {
	BookingID    string     `json:"booking_id"    gorm:"type:char(36);primaryKey"`
	AttemptCount int        `json:"attempt_count" gorm:"not null;default:0"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ReportAccessAttempt.
func (ReportAccessAttempt) TableName() string { return "report_access_attempts" }
