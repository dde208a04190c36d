package detector

import (
	"fmt"
	"log/slog"
	"strings"

	dErrors "piiguard/pkg/domain-errors"
)

// Category classifies the kind of sensitive data found.
type Category string

// Supported categories. The order of the list is the order used when
// categories are reported to users.
const (
	CategoryName        Category = "name"
	CategoryAddress     Category = "address"
	CategoryPhone       Category = "phone"
	CategoryEmail       Category = "email"
	CategoryAmount      Category = "amount"
	CategoryPolicyID    Category = "policy_id"
	CategoryDateOfBirth Category = "date_of_birth"
	CategoryNationalID  Category = "national_id"
	CategoryBankDetails Category = "bank_details"
)

type categoryInfo struct {
	label       string
	description string
}

var categoryOrder = []Category{
	CategoryName,
	CategoryAddress,
	CategoryPhone,
	CategoryEmail,
	CategoryAmount,
	CategoryPolicyID,
	CategoryDateOfBirth,
	CategoryNationalID,
	CategoryBankDetails,
}

var categories = map[Category]categoryInfo{
	CategoryName:        {"NAME", "Your name or the names of other people in the document"},
	CategoryAddress:     {"ADDRESS", "Postal addresses and postcodes"},
	CategoryPhone:       {"PHONE", "Telephone numbers"},
	CategoryEmail:       {"EMAIL", "Email addresses"},
	CategoryAmount:      {"AMOUNT", "Monetary amounts such as premiums or claim values"},
	CategoryPolicyID:    {"POLICY", "Policy, account, member or claim reference numbers"},
	CategoryDateOfBirth: {"DOB", "Dates of birth and other personal dates"},
	CategoryNationalID:  {"NATIONAL_ID", "National health, insurance or tax identifiers"},
	CategoryBankDetails: {"BANK", "Bank account, card, IBAN and sort code details"},
}

// Categories returns every supported category in reporting order.
func Categories() []Category {
	return append([]Category(nil), categoryOrder...)
}

// ParseCategory constructs a Category from external input.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown category: "+s)
	}
	return c, nil
}

// IsValid reports whether c is a supported category.
func (c Category) IsValid() bool {
	_, ok := categories[c]
	return ok
}

// TokenLabel is the upper-case label used inside replacement tokens.
func (c Category) TokenLabel() string {
	if info, ok := categories[c]; ok {
		return info.label
	}
	return "PII"
}

// Description is a user-facing explanation of the category.
func (c Category) Description() string {
	if info, ok := categories[c]; ok {
		return info.description
	}
	return "Other personal data"
}

// Rank orders categories for reporting; unknown categories sort last.
func (c Category) Rank() int {
	for i, cat := range categoryOrder {
		if cat == c {
			return i
		}
	}
	return len(categoryOrder)
}

func (c Category) String() string {
	return string(c)
}

// Token formats the n-th replacement token of category c, e.g. [EMAIL_1].
func Token(c Category, n int) string {
	return fmt.Sprintf("[%s_%d]", c.TokenLabel(), n)
}

// Item is one detected sensitive span. Start and End are byte offsets into the
// original text; End is exclusive.
type Item struct {
	Category   Category `json:"category"`
	RawValue   string   `json:"raw_value"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Confidence float64  `json:"confidence"`
	Token      string   `json:"token"`
}

// LogValue keeps raw values out of structured logs.
func (i Item) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("category", string(i.Category)),
		slog.String("token", i.Token),
		slog.Float64("confidence", i.Confidence),
	)
}

// Result is the outcome of one detection pass.
type Result struct {
	Items             []Item
	AnonymizedText    string
	OverallConfidence float64
}

// HasPII reports whether any item was found.
func (r *Result) HasPII() bool {
	return len(r.Items) > 0
}

// Categories returns the distinct categories found, in reporting order.
func (r *Result) Categories() []Category {
	return CategoriesOf(r.Items)
}

// CategoriesOf returns the distinct categories of items, in reporting order.
func CategoriesOf(items []Item) []Category {
	seen := make(map[Category]bool, len(items))
	for _, it := range items {
		seen[it.Category] = true
	}
	out := make([]Category, 0, len(seen))
	for _, c := range categoryOrder {
		if seen[c] {
			out = append(out, c)
			delete(seen, c)
		}
	}
	for c := range seen {
		out = append(out, c)
	}
	return out
}

func overallConfidence(items []Item) float64 {
	if len(items) == 0 {
		return 1.0
	}
	var sum float64
	for _, it := range items {
		sum += it.Confidence
	}
	return sum / float64(len(items))
}
