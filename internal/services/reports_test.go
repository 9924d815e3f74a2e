package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/healthlab/go-lab-backend/internal/domain"
	"github.com/healthlab/go-lab-backend/internal/repo"
)

// reportFixture creates a completed booking and a gate service over the same
// database, with a controllable clock.
func reportFixture(t *testing.T) (*ReportService, *domain.Booking, *time.Time) {
	t.Helper()
	db := newServiceDB(t)
	cat := DefaultCatalog()

	bookings := NewBookingService(db, cat)
	bookings.Now = fixedNow

	ctx := context.Background()
	b, err := bookings.Create(ctx, "u-rep", "CBC", fixedNow().Add(time.Hour), "")
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	for _, next := range []string{domain.StatusConfirmed, domain.StatusCompleted} {
		if err := bookings.UpdateStatus(ctx, b.ID, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	clock := fixedNow()
	svc := NewReportService(db, &SummaryReportStore{Catalog: cat})
	svc.Now = func() time.Time { return clock }
	return svc, b, &clock
}

func wrongPinFor(b *domain.Booking) string {
	if b.PIN == "0000" {
		return "0001"
	}
	return "0000"
}

func TestVerifyAndFetch_Success(t *testing.T) {
	svc, b, _ := reportFixture(t)

	rep, err := svc.VerifyAndFetch(context.Background(), b.ID, b.PIN)
	if err != nil {
		t.Fatalf("VerifyAndFetch: %v", err)
	}
	if rep.BookingID != b.ID || rep.TestCode != "CBC" || rep.TestName != "Complete Blood Count" {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Summary == "" || rep.Status != "final" {
		t.Fatalf("unexpected report content: %+v", rep)
	}
}

func TestVerifyAndFetch_UnknownBooking(t *testing.T) {
	svc, _, _ := reportFixture(t)
	ctx := context.Background()
	const ghost = "123e4567-e89b-12d3-a456-426614174000"

	_, err := svc.VerifyAndFetch(ctx, ghost, "1234")
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
	// Ids that were never issued must not accumulate attempt rows.
	rec, err := repo.GetAttempt(ctx, svc.DB, ghost)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if rec != nil {
		t.Fatalf("unknown booking created an attempt row: %+v", rec)
	}
}

func TestVerifyAndFetch_WrongPinCountsFailures(t *testing.T) {
	svc, b, _ := reportFixture(t)
	ctx := context.Background()

	for i := 0; i < svc.MaxAttempts-1; i++ {
		if _, err := svc.VerifyAndFetch(ctx, b.ID, wrongPinFor(b)); !errors.Is(err, ErrInvalidPin) {
			t.Fatalf("attempt %d: expected ErrInvalidPin, got %v", i+1, err)
		}
	}
	// Below the threshold the correct PIN still works.
	if _, err := svc.VerifyAndFetch(ctx, b.ID, b.PIN); err != nil {
		t.Fatalf("correct PIN below threshold must succeed, got %v", err)
	}
}

func TestVerifyAndFetch_LockoutTripsAndExpires(t *testing.T) {
	svc, b, clock := reportFixture(t)
	ctx := context.Background()

	for i := 0; i < svc.MaxAttempts; i++ {
		if _, err := svc.VerifyAndFetch(ctx, b.ID, wrongPinFor(b)); !errors.Is(err, ErrInvalidPin) {
			t.Fatalf("attempt %d: expected ErrInvalidPin, got %v", i+1, err)
		}
	}

	// Locked: even the correct PIN is refused, with the window exposed.
	_, err := svc.VerifyAndFetch(ctx, b.ID, b.PIN)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	var le *LockoutError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LockoutError, got %T", err)
	}
	if !le.Until.After(*clock) {
		t.Fatalf("lockout window must extend past now: %v <= %v", le.Until, clock)
	}

	// After the window passes, the correct PIN works again.
	*clock = clock.Add(svc.LockoutWindow + time.Second)
	if _, err := svc.VerifyAndFetch(ctx, b.ID, b.PIN); err != nil {
		t.Fatalf("post-lockout verification failed: %v", err)
	}
}

func TestVerifyAndFetch_ConcurrentGuessesCannotExceedThreshold(t *testing.T) {
	svc, b, _ := reportFixture(t)
	ctx := context.Background()

	// A parallel burst of wrong guesses. Verification is serialized per
	// booking id, so exactly MaxAttempts PINs get compared; the rest must
	// land on the lockout.
	const burst = 12
	errs := make(chan error, burst)
	var wg sync.WaitGroup
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyAndFetch(ctx, b.ID, wrongPinFor(b))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var invalid, locked int
	for err := range errs {
		switch {
		case errors.Is(err, ErrLocked):
			locked++
		case errors.Is(err, ErrInvalidPin):
			invalid++
		default:
			t.Fatalf("unexpected error in burst: %v", err)
		}
	}
	if invalid != svc.MaxAttempts {
		t.Fatalf("compared %d PINs, want exactly %d (locked: %d)", invalid, svc.MaxAttempts, locked)
	}
	if locked != burst-svc.MaxAttempts {
		t.Fatalf("locked %d of %d, want %d", locked, burst, burst-svc.MaxAttempts)
	}
	// The window is active, so even the correct PIN is refused.
	if _, err := svc.VerifyAndFetch(ctx, b.ID, b.PIN); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked after the burst, got %v", err)
	}
}

func TestVerifyAndFetch_SuccessResetsCounter(t *testing.T) {
	svc, b, _ := reportFixture(t)
	ctx := context.Background()

	for i := 0; i < svc.MaxAttempts-1; i++ {
		_, _ = svc.VerifyAndFetch(ctx, b.ID, wrongPinFor(b))
	}
	if _, err := svc.VerifyAndFetch(ctx, b.ID, b.PIN); err != nil {
		t.Fatalf("success: %v", err)
	}

	// The counter was cleared, so a full fresh budget is available.
	for i := 0; i < svc.MaxAttempts-1; i++ {
		if _, err := svc.VerifyAndFetch(ctx, b.ID, wrongPinFor(b)); !errors.Is(err, ErrInvalidPin) {
			t.Fatalf("fresh attempt %d: expected ErrInvalidPin, got %v", i+1, err)
		}
	}
	if _, err := svc.VerifyAndFetch(ctx, b.ID, b.PIN); err != nil {
		t.Fatalf("correct PIN after reset must succeed, got %v", err)
	}
}

func TestVerifyAndFetch_ReportNotReady(t *testing.T) {
	db := newServiceDB(t)
	cat := DefaultCatalog()

	bookings := NewBookingService(db, cat)
	bookings.Now = fixedNow
	b, err := bookings.Create(context.Background(), "u-nr", "TSH", fixedNow().Add(time.Hour), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	svc := NewReportService(db, &SummaryReportStore{Catalog: cat})
	svc.Now = fixedNow

	_, err = svc.VerifyAndFetch(context.Background(), b.ID, b.PIN)
	if !errors.Is(err, ErrReportNotReady) {
		t.Fatalf("pending booking: expected ErrReportNotReady, got %v", err)
	}
}

func TestLockoutError_MatchesErrLocked(t *testing.T) {
	err := error(&LockoutError{Until: fixedNow()})
	if !errors.Is(err, ErrLocked) {
		t.Fatal("LockoutError must match ErrLocked via errors.Is")
	}
	var le *LockoutError
	if !errors.As(err, &le) || !le.Until.Equal(fixedNow()) {
		t.Fatalf("errors.As failed: %v", err)
	}
}
