package expense

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"bookkeeper/internal/models"
)

// Filter is the storage-agnostic predicate over expenses.
// Nil fields impose no constraint; present fields are combined with AND.
// The same Filter value drives the list view, the totals and the CSV export.
type Filter struct {
	// Start is the first included date.
	Start *time.Time
	// End is the last included date, inclusive through the end of that day.
	End      *time.Time
	Category *string
	// Search matches vendor or notes as a case-insensitive substring.
	Search *string
}

// ParseFilter builds a Filter from the start, end, category and search
// query parameters. Blank parameters are treated as absent.
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter

	if v := strings.TrimSpace(q.Get("start")); v != "" {
		d, err := models.ParseDate(v)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: start %q", ErrInvalidDate, v)
		}
		f.Start = &d
	}
	if v := strings.TrimSpace(q.Get("end")); v != "" {
		d, err := models.ParseDate(v)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: end %q", ErrInvalidDate, v)
		}
		f.End = &d
	}
	if v := q.Get("category"); strings.TrimSpace(v) != "" {
		// Categories are matched exactly as stored.
		f.Category = &v
	}
	if v := q.Get("search"); strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		f.Search = &v
	}

	return f, nil
}

// IsEmpty reports whether the filter matches every expense.
func (f Filter) IsEmpty() bool {
	return f.Start == nil && f.End == nil && f.Category == nil && f.Search == nil
}

// EndExclusive returns the first date after the inclusive end date.
func (f Filter) EndExclusive() (time.Time, bool) {
	if f.End == nil {
		return time.Time{}, false
	}
	return models.DateOf(*f.End).AddDate(0, 0, 1), true
}

// Match reports whether e satisfies every present condition.
func (f Filter) Match(e models.Expense) bool {
	date := models.DateOf(e.Date)
	if f.Start != nil && date.Before(models.DateOf(*f.Start)) {
		return false
	}
	if end, ok := f.EndExclusive(); ok && !date.Before(end) {
		return false
	}
	if f.Category != nil && (e.Category == nil || *e.Category != *f.Category) {
		return false
	}
	if f.Search != nil {
		needle := strings.ToLower(*f.Search)
		if !strings.Contains(strings.ToLower(e.VendorText()), needle) &&
			!strings.Contains(strings.ToLower(e.NotesText()), needle) {
			return false
		}
	}
	return true
}

// Values encodes the filter back into query parameters.
func (f Filter) Values() url.Values {
	q := url.Values{}
	if f.Start != nil {
		q.Set("start", f.Start.Format(models.DateLayout))
	}
	if f.End != nil {
		q.Set("end", f.End.Format(models.DateLayout))
	}
	if f.Category != nil {
		q.Set("category", *f.Category)
	}
	if f.Search != nil {
		q.Set("search", *f.Search)
	}
	return q
}
