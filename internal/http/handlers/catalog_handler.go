// Catalog HTTP handlers.
//
// GET /api/tests returns the test catalog. The catalog is immutable reference
// data, so this endpoint is safe for unbounded concurrent reads and trivially
// cacheable by clients.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TestItem is the public projection of a catalog test. Matching keywords are
// internal and never exposed.
type TestItem struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Preparation string  `json:"preparation"`
}

// ListTestsResponse wraps the catalog listing.
type ListTestsResponse struct {
	Items []TestItem `json:"items"`
}

// ListTests handles GET /api/tests.
func (h *Handlers) ListTests(c *gin.Context) {
	tests := h.catalog.List()
	items := make([]TestItem, 0, len(tests))
	for _, t := range tests {
		items = append(items, TestItem{
			Code:        t.Code,
			Name:        t.Name,
			Category:    t.Category,
			Price:       t.Price,
			Preparation: t.Preparation,
		})
	}
	ok(c, http.StatusOK, ListTestsResponse{Items: items})
}
