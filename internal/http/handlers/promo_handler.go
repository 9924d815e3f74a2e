package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ApplyPromoRequest is the JSON payload for POST /api/promos/apply.
type ApplyPromoRequest struct {
	Code  string  `json:"code" binding:"required"`
	Price float64 `json:"price"`
}

// ApplyPromoResponse echoes the evaluated discount for the given base price.
type ApplyPromoResponse struct {
	Code     string  `json:"code"`
	Price    float64 `json:"price"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
	Message  string  `json:"message"`
}

// ApplyPromo handles POST /api/promos/apply. Promo evaluation is a pure
// pricing computation; rejected codes still return 200 with the reason in
// the message and a zero discount.
func (h *Handlers) ApplyPromo(c *gin.Context) {
	var req ApplyPromoRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: code is required")
		return
	}
	if req.Price < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "price must not be negative")
		return
	}

	res := h.promoSvc.Apply(req.Code, req.Price)
	ok(c, http.StatusOK, ApplyPromoResponse{
		Code:     strings.ToUpper(strings.TrimSpace(req.Code)),
		Price:    req.Price,
		Discount: res.Discount,
		Total:    res.Total,
		Message:  res.Message,
	})
}
