package expense

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bookkeeper/internal/models"
)

// Dashboard sizes.
const (
	DashboardTopCategories = 6
	DashboardRecent        = 6
)

// Aggregator computes totals and summaries over a Store.
type Aggregator struct {
	store Store
}

// NewAggregator creates an Aggregator reading from s.
func NewAggregator(s Store) *Aggregator {
	return &Aggregator{store: s}
}

// Total sums the amounts of every expense matching f.
func (a *Aggregator) Total(ctx context.Context, f Filter) (decimal.Decimal, error) {
	total := decimal.Zero
	for e, err := range a.store.Find(ctx, f) {
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(e.Amount)
	}
	return total, nil
}

// Count returns the number of expenses matching f.
func (a *Aggregator) Count(ctx context.Context, f Filter) (int, error) {
	n := 0
	for _, err := range a.store.Find(ctx, f) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// TotalForPeriod sums expenses dated in [periodStart, now).
func (a *Aggregator) TotalForPeriod(ctx context.Context, periodStart, now time.Time) (decimal.Decimal, error) {
	f, ok := periodFilter(periodStart, now)
	if !ok {
		return decimal.Zero, nil
	}
	return a.Total(ctx, f)
}

// periodFilter converts the half-open instant range into whole dates.
// Dates carry no time of day, so a record dated on now's calendar day is
// inside the range unless now is exactly midnight.
func periodFilter(periodStart, now time.Time) (Filter, bool) {
	start := models.DateOf(periodStart)
	last := models.DateOf(now)
	if y, m, d := now.Date(); now.Equal(time.Date(y, m, d, 0, 0, 0, 0, now.Location())) {
		last = last.AddDate(0, 0, -1)
	}
	if last.Before(start) {
		return Filter{}, false
	}
	return Filter{Start: &start, End: &last}, true
}

// GroupByCategory partitions matching expenses by category label.
// Buckets are sorted by total descending, then label ascending.
func (a *Aggregator) GroupByCategory(ctx context.Context, f Filter) ([]models.CategoryTotal, error) {
	index := make(map[string]int)
	var groups []models.CategoryTotal
	for e, err := range a.store.Find(ctx, f) {
		if err != nil {
			return nil, err
		}
		label := e.CategoryLabel()
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, models.CategoryTotal{Category: label, Total: decimal.Zero})
		}
		groups[i].Total = groups[i].Total.Add(e.Amount)
		groups[i].Count++
	}

	slices.SortFunc(groups, func(x, y models.CategoryTotal) int {
		if c := y.Total.Cmp(x.Total); c != 0 {
			return c
		}
		return cmp.Compare(x.Category, y.Category)
	})
	return groups, nil
}

// TopN returns the first n buckets of GroupByCategory.
func (a *Aggregator) TopN(ctx context.Context, f Filter, n int) ([]models.CategoryTotal, error) {
	if n <= 0 {
		return []models.CategoryTotal{}, nil
	}
	groups, err := a.GroupByCategory(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(groups) > n {
		groups = groups[:n]
	}
	return groups, nil
}

// Recent returns up to n newest expenses matching f.
func (a *Aggregator) Recent(ctx context.Context, f Filter, n int) ([]models.Expense, error) {
	out := []models.Expense{}
	if n <= 0 {
		return out, nil
	}
	for e, err := range Ordered(a.store.Find(ctx, f)) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// Summary is the dashboard view model.
type Summary struct {
	TotalAll      decimal.Decimal
	TotalMonth    decimal.Decimal
	Count         int
	TopCategories []models.CategoryTotal
	Recent        []models.Expense
}

// Dashboard computes the home page summary as of now.
// The month total covers the calendar month of now up to now.
func (a *Aggregator) Dashboard(ctx context.Context, now time.Time) (Summary, error) {
	var s Summary
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.TotalAll, err = a.Total(ctx, Filter{})
		return err
	})
	g.Go(func() (err error) {
		s.TotalMonth, err = a.TotalForPeriod(ctx, monthStart, now)
		return err
	})
	g.Go(func() (err error) {
		s.Count, err = a.Count(ctx, Filter{})
		return err
	})
	g.Go(func() (err error) {
		s.TopCategories, err = a.TopN(ctx, Filter{}, DashboardTopCategories)
		return err
	})
	g.Go(func() (err error) {
		s.Recent, err = a.Recent(ctx, Filter{}, DashboardRecent)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return s, nil
}
