// Package services – ConversationService
//
// This file implements the conversation state machine driving the chat
// endpoint. Each session is either Idle or AwaitingPin. In Idle, inbound text
// is classified by deterministic precedence: an explicit booking command wins
// over a report-access phrase, which wins over symptom matching; anything
// else gets a plain acknowledgment. AwaitingPin expects a booking id and PIN
// and forwards them to the report access gate.
//
// Every handled message appends exactly one inbound and one outbound turn in
// a single transaction, so a store failure records nothing and the client can
// safely retry the same message. All messages for one user are processed in
// arrival order via a per-user exclusive section; different users proceed in
// parallel.
//
// Optional enhancement carried over from the chat stack this grew out of: a
// short topic label is auto-generated from the user's first message.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/healthlab/go-lab-backend/internal/domain"
	"github.com/healthlab/go-lab-backend/internal/match"
	"github.com/healthlab/go-lab-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// Response types and actions emitted over the chat endpoint.
const (
	ResponseSuggestions    = "suggestions"
	ResponseActionRequired = "action_required"
	ActionVerifyPin        = "verify_pin"
)

// TestRef is the compact test reference embedded in suggestion responses.
type TestRef struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ChatResponse is the structured reply returned for every chat message.
type ChatResponse struct {
	Message string    `json:"message"`
	Type    string    `json:"type,omitempty"`
	Tests   []TestRef `json:"tests,omitempty"`
	Action  string    `json:"action,omitempty"`
}

// turnOutcome bundles the computed reply with the session state to persist.
// stored overrides the assistant turn content when the delivered message must
// not be written to history verbatim (it carries the one-time PIN).
type turnOutcome struct {
	resp   *ChatResponse
	stored string
	action string
	hint   string
}

// ConversationService owns per-user conversational state and response
// construction. It consults the symptom matcher, booking ledger, and report
// gate as the classified intent requires.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Catalog resolves test codes mentioned in booking commands.
	Catalog *Catalog
	// Suggester ranks catalog tests against symptom descriptions.
	Suggester *match.Suggester
	// Reports verifies booking id + PIN pairs during AwaitingPin.
	Reports *ReportService
	// Bookings creates bookings for explicit booking commands.
	Bookings *BookingService

	// MaxMessageRunes caps inbound message length. Values <= 0 default to 1000.
	MaxMessageRunes int
	// MaxTurns is the retention cap applied between conversation turns.
	// Values <= 0 disable trimming.
	MaxTurns int
	// SuggestBudget bounds symptom scoring; on expiry the turn degrades to an
	// empty suggestion list. Values <= 0 default to 750ms.
	SuggestBudget time.Duration

	// Topic generation config.
	TopicLocale language.Tag
	TopicMaxLen int

	// Now allows tests to pin the clock; defaults to time.Now.
	Now func() time.Time

	locks userLocks
}

// NewConversationService constructs a ConversationService with sane defaults.
func NewConversationService(db *gorm.DB, cat *Catalog, sug *match.Suggester, reports *ReportService, bookings *BookingService) *ConversationService {
	return &ConversationService{
		DB:              db,
		Catalog:         cat,
		Suggester:       sug,
		Reports:         reports,
		Bookings:        bookings,
		MaxMessageRunes: 1000,
		MaxTurns:        200,
		SuggestBudget:   750 * time.Millisecond,
		TopicLocale:     language.English,
		TopicMaxLen:     60,
		Now:             time.Now,
	}
}

// HandleMessage processes one inbound chat message for userID and returns the
// structured reply. It validates the message, runs the state machine under
// the user's exclusive section, and persists the turn pair atomically.
func (s *ConversationService) HandleMessage(ctx context.Context, userID, text string) (*ChatResponse, error) {
	tr := otel.Tracer("services/ConversationService")
	ctx, span := tr.Start(ctx, "HandleMessage",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if max := s.maxMessageRunes(); utf8.RuneCountInString(text) > max {
		return nil, ErrMessageTooLong
	}

	release := s.locks.acquire(userID)
	defer release()

	sess, err := repo.GetOrCreateSession(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	var out turnOutcome
	if sess.PendingAction == domain.PendingAwaitingPin {
		out, err = s.handleAwaitingPin(ctx, sess, text)
	} else {
		out, err = s.handleIdle(ctx, userID, text)
	}
	if err != nil {
		return nil, err
	}
	if out.stored == "" {
		out.stored = out.resp.Message
	}

	// One transaction per turn: both turns plus any state change land
	// together or not at all, so a retried message never half-records.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.AppendTurn(ctx, tx, userID, roleUser, text); err != nil {
			return err
		}
		if _, err := repo.AppendTurn(ctx, tx, userID, roleAssistant, out.stored); err != nil {
			return err
		}
		if out.action != sess.PendingAction || out.hint != sess.PendingBookingHint {
			if err := repo.UpdatePendingAction(ctx, tx, userID, out.action, out.hint); err != nil {
				return err
			}
		}
		if sess.Topic == "" {
			if topic := s.generateTopic(text); topic != "" {
				if err := repo.UpdateSessionTopic(ctx, tx, userID, topic); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Retention runs between conversation turns, never inside one.
	if s.MaxTurns > 0 {
		if err := repo.TrimTurns(ctx, s.DB, userID, s.MaxTurns); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("turn retention trim failed")
		}
	}

	return out.resp, nil
}

// History returns the user's stored turns in order.
func (s *ConversationService) History(ctx context.Context, userID string) ([]domain.Turn, error) {
	return repo.ListTurns(ctx, s.DB, userID)
}

//
// Idle intent handling
//

var (
	bookingCmdRE   = regexp.MustCompile(`(?i)^book\s+([a-z0-9]+)\s+(.+)$`)
	reportPhraseRE = regexp.MustCompile(`(?i)\b(reports?|results?)\b`)
	uuidRE         = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	pinTokenRE     = regexp.MustCompile(`\b(\d{4})\b`)
	cancelRE       = regexp.MustCompile(`(?i)^(cancel|stop|never\s?mind)\b`)
)

func (s *ConversationService) handleIdle(ctx context.Context, userID, text string) (turnOutcome, error) {
	// Precedence: explicit booking command > report access > symptoms.
	if m := bookingCmdRE.FindStringSubmatch(text); m != nil {
		return s.handleBookingCommand(ctx, userID, m[1], m[2])
	}

	if reportPhraseRE.MatchString(text) {
		hint := ""
		if id := uuidRE.FindString(text); id != "" {
			hint = strings.ToLower(id)
		}
		return turnOutcome{
			resp: &ChatResponse{
				Message: "To view a report I need your booking ID and 4-digit PIN. Send them together, e.g. \"<booking-id> 1234\".",
				Type:    ResponseActionRequired,
				Action:  ActionVerifyPin,
			},
			action: domain.PendingAwaitingPin,
			hint:   hint,
		}, nil
	}

	if sugs := s.suggest(ctx, text); len(sugs) > 0 {
		refs := make([]TestRef, 0, len(sugs))
		names := make([]string, 0, len(sugs))
		for _, sg := range sugs {
			refs = append(refs, TestRef{Code: sg.Test.Code, Name: sg.Test.Name})
			names = append(names, fmt.Sprintf("%s (%s)", sg.Test.Name, sg.Test.Code))
		}
		return turnOutcome{
			resp: &ChatResponse{
				Message: "Based on what you describe, these tests may help: " + strings.Join(names, ", ") + ". Would you like to book one?",
				Type:    ResponseSuggestions,
				Tests:   refs,
			},
			action: domain.PendingNone,
		}, nil
	}

	return turnOutcome{
		resp: &ChatResponse{
			Message: "I'm Laura, your lab assistant. Tell me how you're feeling, say \"book CBC tomorrow 10am\" to schedule a test, or ask about your report.",
		},
		action: domain.PendingNone,
	}, nil
}

func (s *ConversationService) handleBookingCommand(ctx context.Context, userID, code, when string) (turnOutcome, error) {
	t, ok := s.Catalog.Get(code)
	if !ok {
		return turnOutcome{resp: &ChatResponse{
			Message: fmt.Sprintf("I don't recognize the test code %q. The tests tab lists everything we offer.", strings.ToUpper(code)),
		}}, nil
	}

	at, ok := parseWhen(s.now(), when)
	if !ok {
		return turnOutcome{resp: &ChatResponse{
			Message: "I couldn't understand that time. Try \"book " + t.Code + " tomorrow 10am\" or \"book " + t.Code + " 2026-09-10 14:30\".",
		}}, nil
	}

	b, err := s.Bookings.Create(ctx, userID, t.Code, at, "")
	if err != nil {
		if errors.Is(err, ErrInvalidSchedule) {
			return turnOutcome{resp: &ChatResponse{
				Message: "That time is already in the past. Please pick a future slot.",
			}}, nil
		}
		return turnOutcome{}, err
	}

	delivered := fmt.Sprintf("Booked %s for %s. Booking ID: %s. Your report PIN is %s. Keep it private.",
		t.Name, at.Format("Mon, 02 Jan 2006 15:04"), b.ID, b.PIN)
	// The PIN is shown once and never persisted outside the bookings table.
	stored := fmt.Sprintf("Booked %s for %s. Booking ID: %s. Your report PIN is ••••.",
		t.Name, at.Format("Mon, 02 Jan 2006 15:04"), b.ID)

	return turnOutcome{
		resp:   &ChatResponse{Message: delivered},
		stored: stored,
	}, nil
}

//
// AwaitingPin handling
//

func (s *ConversationService) handleAwaitingPin(ctx context.Context, sess *domain.Session, text string) (turnOutcome, error) {
	if cancelRE.MatchString(text) {
		return turnOutcome{resp: &ChatResponse{
			Message: "Okay, cancelled. How else can I help?",
		}, action: domain.PendingNone}, nil
	}

	bookingID := strings.ToLower(uuidRE.FindString(text))
	remainder := text
	if bookingID != "" {
		remainder = strings.Replace(text, uuidRE.FindString(text), "", 1)
	} else if sess.PendingBookingHint != "" {
		bookingID = sess.PendingBookingHint
	}
	pin := ""
	if m := pinTokenRE.FindStringSubmatch(remainder); m != nil {
		pin = m[1]
	}

	if bookingID == "" || pin == "" {
		return turnOutcome{resp: &ChatResponse{
			Message: "I still need your booking ID and 4-digit PIN to show the report (or say \"cancel\").",
			Type:    ResponseActionRequired,
			Action:  ActionVerifyPin,
		}, action: domain.PendingAwaitingPin, hint: sess.PendingBookingHint}, nil
	}

	rep, err := s.Reports.VerifyAndFetch(ctx, bookingID, pin)
	switch {
	case err == nil:
		return turnOutcome{resp: &ChatResponse{
			Message: fmt.Sprintf("Here is your %s report: %s", rep.TestName, rep.Summary),
		}, action: domain.PendingNone}, nil

	case errors.Is(err, ErrLocked):
		msg := "Too many failed attempts. Report access is temporarily locked, please try again later."
		var le *LockoutError
		if errors.As(err, &le) {
			if remaining := time.Until(le.Until).Round(time.Minute); remaining > 0 {
				msg = fmt.Sprintf("Too many failed attempts. Report access is locked for another %s, please try again later.", remaining)
			}
		}
		return turnOutcome{resp: &ChatResponse{Message: msg}, action: domain.PendingNone}, nil

	case errors.Is(err, ErrReportNotReady):
		return turnOutcome{resp: &ChatResponse{
			Message: "Your report isn't ready yet. The lab hasn't completed this booking, please check back later.",
		}, action: domain.PendingNone}, nil

	case errors.Is(err, ErrInvalidPin), errors.Is(err, ErrBookingNotFound):
		// One response for both cases: the gate must not reveal whether the
		// booking id was valid.
		return turnOutcome{resp: &ChatResponse{
			Message: "That booking ID and PIN combination doesn't match. Please check and try again.",
			Type:    ResponseActionRequired,
			Action:  ActionVerifyPin,
		}, action: domain.PendingAwaitingPin, hint: bookingID}, nil

	default:
		return turnOutcome{}, err
	}
}

//
// Helpers
//

// suggest runs the symptom matcher under the configured time budget and
// degrades to an empty list on expiry.
func (s *ConversationService) suggest(ctx context.Context, text string) []match.Suggestion {
	budget := s.SuggestBudget
	if budget <= 0 {
		budget = 750 * time.Millisecond
	}
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	sugs, err := s.Suggester.Suggest(cctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("symptom scoring exceeded its budget; no suggestions for this turn")
		return nil
	}
	return sugs
}

func (s *ConversationService) maxMessageRunes() int {
	if s.MaxMessageRunes > 0 {
		return s.MaxMessageRunes
	}
	return 1000
}

func (s *ConversationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// generateTopic derives a concise topic label from the first user message.
func (s *ConversationService) generateTopic(text string) string {
	toks := topicWordRE.FindAllString(strings.ToLower(text), -1)
	if len(toks) == 0 {
		return ""
	}

	locale := s.TopicLocale
	if locale == language.Und {
		locale = language.English
	}
	caser := cases.Title(locale)

	out := make([]string, 0, 6)
	for _, w := range toks {
		if _, skip := topicStopWords[w]; skip {
			continue
		}
		out = append(out, caser.String(w))
		if len(out) >= 6 {
			break
		}
	}
	if len(out) == 0 {
		return ""
	}
	topic := strings.Join(out, " ")

	max := s.TopicMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(topic) > max {
		topic = string([]rune(topic)[:max])
	}
	return topic
}

// topicWordRE extracts Unicode letters with optional trailing numbers.
var topicWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact topics.
var topicStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "i": {},
	"have": {}, "my": {}, "am": {}, "feel": {}, "feeling": {},
}

// parseWhen parses the scheduling phrase of a booking command. It accepts
// RFC3339, "2006-01-02 15:04" (and the T variant), a bare date, and relative
// forms like "tomorrow 10am" or "today 14:30".
func parseWhen(now time.Time, s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, true
		}
	}

	m := relWhenRE.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return time.Time{}, false
	}
	day := now
	if m[1] == "tomorrow" {
		day = now.AddDate(0, 0, 1)
	}
	hour, _ := strconv.Atoi(m[2])
	minute := 0
	if m[3] != "" {
		minute, _ = strconv.Atoi(m[3])
	}
	switch m[4] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), true
}

var relWhenRE = regexp.MustCompile(`^(today|tomorrow)(?:\s+at)?\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
