// Package services – Catalog
//
// This file implements the test catalog: an immutable, in-memory set of lab
// tests and promo codes loaded once at startup. Lookups are read-only and
// safe for unbounded concurrent use. A built-in default data set is used when
// no catalog file is configured, which keeps dev and test bootstrap trivial.
package services

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/healthlab/go-lab-backend/internal/domain"
)

// Catalog holds the reference data the orchestrator works against. It is
// constructed once and never mutated afterwards.
type Catalog struct {
	tests  []domain.Test
	byCode map[string]domain.Test
	promos map[string]domain.PromoCode
}

// catalogFile is the on-disk JSON shape accepted by LoadCatalog.
type catalogFile struct {
	Tests  []domain.Test      `json:"tests"`
	Promos []domain.PromoCode `json:"promos"`
}

// NewCatalog builds a Catalog from the given tests and promos. Tests are kept
// in stable order by code; duplicate codes keep the first occurrence.
func NewCatalog(tests []domain.Test, promos []domain.PromoCode) *Catalog {
	c := &Catalog{
		byCode: make(map[string]domain.Test, len(tests)),
		promos: make(map[string]domain.PromoCode, len(promos)),
	}
	for _, t := range tests {
		key := strings.ToUpper(strings.TrimSpace(t.Code))
		if key == "" {
			continue
		}
		if _, dup := c.byCode[key]; dup {
			continue
		}
		t.Code = key
		c.byCode[key] = t
		c.tests = append(c.tests, t)
	}
	sort.Slice(c.tests, func(i, j int) bool { return c.tests[i].Code < c.tests[j].Code })
	for _, p := range promos {
		key := strings.ToUpper(strings.TrimSpace(p.Code))
		if key == "" {
			continue
		}
		p.Code = key
		c.promos[key] = p
	}
	return c
}

// LoadCatalog reads a JSON catalog from path. When path is empty or the file
// does not exist, the built-in default catalog is returned instead so the
// service can start without provisioning.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCatalog(), nil
		}
		return nil, err
	}
	var f catalogFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return NewCatalog(f.Tests, f.Promos), nil
}

// List returns all tests in stable order by code. The returned slice is a
// copy; callers may not mutate catalog state through it.
func (c *Catalog) List() []domain.Test {
	out := make([]domain.Test, len(c.tests))
	copy(out, c.tests)
	return out
}

// Get returns the test for code (case-insensitive) and whether it exists.
func (c *Catalog) Get(code string) (domain.Test, bool) {
	t, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return t, ok
}

// Promo returns the promo rule for code (case-insensitive) and whether it
// exists.
func (c *Catalog) Promo(code string) (domain.PromoCode, bool) {
	p, ok := c.promos[strings.ToUpper(strings.TrimSpace(code))]
	return p, ok
}

// DefaultCatalog returns the built-in reference data used when no catalog
// file is configured.
func DefaultCatalog() *Catalog {
	tests := []domain.Test{
		{
			Code: "CBC", Name: "Complete Blood Count", Category: "Hematology", Price: 50,
			Preparation: "No special preparation required.",
			Keywords:    []string{"fever", "chills", "fatigue", "weakness", "infection", "anemia", "pale", "bruising"},
		},
		{
			Code: "CRP", Name: "C-Reactive Protein", Category: "Immunology", Price: 40,
			Preparation: "No special preparation required.",
			Keywords:    []string{"fever", "inflammation", "pain", "swelling", "joint"},
		},
		{
			Code: "HBA1C", Name: "Glycated Hemoglobin", Category: "Biochemistry", Price: 45,
			Preparation: "No fasting required.",
			Keywords:    []string{"thirst", "urination", "sugar", "diabetes", "blurred", "vision", "hunger"},
		},
		{
			Code: "KFT", Name: "Kidney Function Test", Category: "Biochemistry", Price: 55,
			Preparation: "Avoid heavy meals before sample collection.",
			Keywords:    []string{"swelling", "urine", "kidney", "back", "pressure", "puffy"},
		},
		{
			Code: "LFT", Name: "Liver Function Test", Category: "Biochemistry", Price: 60,
			Preparation: "Fast for 8 hours before sample collection.",
			Keywords:    []string{"jaundice", "yellow", "nausea", "vomiting", "abdominal", "appetite", "liver"},
		},
		{
			Code: "LIPID", Name: "Lipid Profile", Category: "Biochemistry", Price: 65,
			Preparation: "Fast for 10-12 hours before sample collection.",
			Keywords:    []string{"chest", "cholesterol", "heart", "obesity", "breathless"},
		},
		{
			Code: "TSH", Name: "Thyroid Stimulating Hormone", Category: "Endocrinology", Price: 35,
			Preparation: "Sample best collected in the morning.",
			Keywords:    []string{"fatigue", "weight", "hair", "cold", "thyroid", "neck", "mood"},
		},
		{
			Code: "URINE", Name: "Urine Routine Examination", Category: "Pathology", Price: 25,
			Preparation: "Collect the first morning sample if possible.",
			Keywords:    []string{"burning", "urination", "urine", "smell", "cloudy", "frequency"},
		},
	}
	promos := []domain.PromoCode{
		{Code: "NEWUSER10", Kind: domain.PromoPercentage, Value: 10},
		{Code: "HEALTH20", Kind: domain.PromoPercentage, Value: 20, MinPrice: 100},
		{Code: "FLAT15", Kind: domain.PromoFlatAmount, Value: 15, MinPrice: 40},
	}
	return NewCatalog(tests, promos)
}
