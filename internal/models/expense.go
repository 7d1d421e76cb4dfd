package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and storage format of an expense date.
const DateLayout = "2006-01-02"

// UncategorizedLabel groups expenses that have no category.
const UncategorizedLabel = "Uncategorized"

// Expense represents a single bookkeeping record.
// Optional text fields are nil when absent, never empty strings.
type Expense struct {
	ID         string          `json:"id"`
	Date       time.Time       `json:"date"`
	Vendor     *string         `json:"vendor,omitempty"`
	Category   *string         `json:"category,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Notes      *string         `json:"notes,omitempty"`
	ReceiptRef *string         `json:"receipt_ref,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

// CategoryLabel returns the category used for grouping.
func (e Expense) CategoryLabel() string {
	if e.Category == nil || *e.Category == "" {
		return UncategorizedLabel
	}
	return *e.Category
}

// VendorText returns the vendor or an empty string.
func (e Expense) VendorText() string { return deref(e.Vendor) }

// CategoryText returns the category or an empty string.
func (e Expense) CategoryText() string { return deref(e.Category) }

// NotesText returns the notes or an empty string.
func (e Expense) NotesText() string { return deref(e.Notes) }

// ReceiptText returns the receipt reference or an empty string.
func (e Expense) ReceiptText() string { return deref(e.ReceiptRef) }

// HasReceipt reports whether a receipt is attached.
func (e Expense) HasReceipt() bool { return e.ReceiptRef != nil }

// DateText formats the date using DateLayout.
func (e Expense) DateText() string { return e.Date.Format(DateLayout) }

// Receipt is an uploaded file attached to an expense.
type Receipt struct {
	Ref         string
	Filename    string
	ContentType string
	Data        []byte
}

// CategoryTotal is the summed amount of one category bucket.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int
}

// ParseDate parses a calendar date in DateLayout and returns it at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// DateOf truncates t to its calendar date at UTC midnight, keeping the
// year, month and day as seen in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OptionalText returns nil for blank input and a pointer to the trimmed text otherwise.
func OptionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
