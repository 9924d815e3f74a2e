// Package services – Promo engine
//
// This file implements promotional discount evaluation: a pure, deterministic
// function over (code, base price) with no side effects. Rules are evaluated
// in a fixed order and the first match wins, so the same inputs always yield
// the same output.
package services

import (
	"math"
	"time"

	"github.com/healthlab/go-lab-backend/internal/domain"
)

// PromoResult is the outcome of applying a promo code to a base price.
type PromoResult struct {
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
	Message  string  `json:"message"`
}

// PromoService evaluates promo codes against the catalog's reference rules.
type PromoService struct {
	// Catalog supplies promo code lookups.
	Catalog *Catalog

	// Now allows tests to pin the clock; defaults to time.Now.
	Now func() time.Time
}

// NewPromoService constructs a PromoService over the given catalog.
func NewPromoService(cat *Catalog) *PromoService {
	return &PromoService{Catalog: cat, Now: time.Now}
}

// Apply evaluates code against basePrice.
//
// Rules, in order, first match wins:
//  1. unknown code      → no discount, "Invalid code"
//  2. expired code      → no discount, "Code expired"
//  3. below min price   → no discount, "Minimum order not met"
//  4. percentage        → discount = round2(basePrice × value / 100)
//     flat amount       → discount = min(value, basePrice)
//  5. total = basePrice − discount, floored at 0
func (s *PromoService) Apply(code string, basePrice float64) PromoResult {
	if basePrice < 0 {
		basePrice = 0
	}

	p, ok := s.Catalog.Promo(code)
	if !ok {
		return PromoResult{Discount: 0, Total: basePrice, Message: "Invalid code"}
	}
	if p.ExpiresAt != nil && s.now().After(*p.ExpiresAt) {
		return PromoResult{Discount: 0, Total: basePrice, Message: "Code expired"}
	}
	if p.MinPrice > 0 && basePrice < p.MinPrice {
		return PromoResult{Discount: 0, Total: basePrice, Message: "Minimum order not met"}
	}

	var discount float64
	switch p.Kind {
	case domain.PromoPercentage:
		discount = round2(basePrice * p.Value / 100)
	case domain.PromoFlatAmount:
		discount = math.Min(p.Value, basePrice)
	default:
		return PromoResult{Discount: 0, Total: basePrice, Message: "Invalid code"}
	}
	if discount < 0 {
		discount = 0
	}

	total := basePrice - discount
	if total < 0 {
		total = 0
	}
	return PromoResult{Discount: discount, Total: round2(total), Message: "Code applied"}
}

func (s *PromoService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// round2 rounds to two decimal places (currency precision).
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
