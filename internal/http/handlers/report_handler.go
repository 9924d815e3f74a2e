// Report access handler.
//
// POST /api/reports/view gates report retrieval behind the booking's 4-digit
// PIN. To avoid leaking which booking ids exist, an unknown booking id and a
// wrong PIN produce the same 404 response body.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/healthlab/go-lab-backend/internal/services"
)

// ViewReportRequest is the JSON payload for POST /api/reports/view.
type ViewReportRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
	PIN       string `json:"pin" binding:"required"`
}

// ReportPayload is the JSON projection of a released report.
type ReportPayload struct {
	BookingID   string    `json:"booking_id"`
	TestCode    string    `json:"test_code"`
	TestName    string    `json:"test_name"`
	Status      string    `json:"status"`
	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ViewReportResponse wraps the released report.
type ViewReportResponse struct {
	Report ReportPayload `json:"report"`
}

// ViewReport handles POST /api/reports/view.
func (h *Handlers) ViewReport(c *gin.Context) {
	var req ViewReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: booking_id and pin required")
		return
	}
	pin := strings.TrimSpace(req.PIN)
	id := strings.TrimSpace(req.BookingID)
	if len(pin) != 4 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "pin must be 4 digits")
		return
	}
	if _, err := uuid.Parse(id); err != nil {
		// Same body as a wrong PIN so malformed ids cannot be used to probe.
		fail(c, http.StatusNotFound, ErrCodeNotFound, "invalid booking id or PIN")
		return
	}

	rep, err := h.reportSvc.VerifyAndFetch(c.Request.Context(), id, pin)
	if err != nil {
		var le *services.LockoutError
		switch {
		case errors.As(err, &le):
			fail(c, http.StatusLocked, ErrCodeReportLocked,
				fmt.Sprintf("too many failed attempts, try again in %s", remainingLockout(le.Until)))
		case errors.Is(err, services.ErrLocked):
			fail(c, http.StatusLocked, ErrCodeReportLocked, "too many failed attempts, try again later")
		case errors.Is(err, services.ErrReportNotReady):
			fail(c, http.StatusConflict, ErrCodeReportNotReady, "report is not ready yet")
		case errors.Is(err, services.ErrBookingNotFound), errors.Is(err, services.ErrInvalidPin):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "invalid booking id or PIN")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not fetch report")
		}
		return
	}

	ok(c, http.StatusOK, ViewReportResponse{Report: ReportPayload{
		BookingID:   rep.BookingID,
		TestCode:    rep.TestCode,
		TestName:    rep.TestName,
		Status:      rep.Status,
		Summary:     rep.Summary,
		GeneratedAt: rep.GeneratedAt,
	}})
}

// remainingLockout renders a human-friendly duration until the lockout lifts,
// rounded up to the nearest minute so it never reads as zero.
func remainingLockout(until time.Time) string {
	d := time.Until(until)
	if d <= 0 {
		return "a moment"
	}
	mins := int(d.Minutes()) + 1
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}
