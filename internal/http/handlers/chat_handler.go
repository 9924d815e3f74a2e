// Chat HTTP handlers.
//
// This file exposes the conversational endpoints:
//   - POST /api/chat          (one conversation turn)
//   - GET  /api/chat/history  (stored turns, paginated)
//
// Handlers are transport-thin: they validate input, call the conversation
// service, and translate results into HTTP responses.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/healthlab/go-lab-backend/internal/domain"
	"github.com/healthlab/go-lab-backend/internal/services"
	"github.com/healthlab/go-lab-backend/internal/utils"
)

// ChatRequest is the JSON payload for one conversation turn.
type ChatRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text" binding:"required"`
}

// ChatHistoryResponse wraps a page of turns and pagination information.
type ChatHistoryResponse struct {
	Turns      []domain.Turn `json:"turns"`
	Pagination Pagination    `json:"pagination"`
}

// Chat handles POST /api/chat. Every message is routed through the
// conversation state machine; the reply shape depends on the classified
// intent (plain message, suggestions, or an action_required PIN challenge).
func (h *Handlers) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: user_id and text required")
		return
	}
	uid := resolveUserID(c, req.UserID)
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}

	resp, err := h.convSvc.HandleMessage(c.Request.Context(), uid, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text must not be empty")
		case errors.Is(err, services.ErrMessageTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text too long")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeChatFailed, "could not process message")
		}
		return
	}
	ok(c, http.StatusOK, resp)
}

// ChatHistory handles GET /api/chat/history. Turns are returned oldest first;
// page defaults keep responses bounded.
func (h *Handlers) ChatHistory(c *gin.Context) {
	uid := resolveUserID(c, c.Query("user_id"))
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}

	turns, err := h.convSvc.History(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load history")
		return
	}

	page, pageSize := clampPagination(c)
	total := int64(len(turns))
	start := (page - 1) * pageSize
	if start > len(turns) {
		start = len(turns)
	}
	end := start + pageSize
	if end > len(turns) {
		end = len(turns)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ChatHistoryResponse{
		Turns: turns[start:end],
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
