package expense

import (
	"context"
	"iter"

	"bookkeeper/internal/models"
)

// Store persists expenses.
//
// Find yields matching records newest first. Ordering is the store's
// obligation and Newer is its definition; Recent and the exporter verify it
// through Ordered instead of re-sorting. The sequence is
// lazy and single-pass; breaking out of the loop releases the underlying
// rows or cursor. A store failure is yielded once as a non-nil error wrapping
// ErrStorageUnavailable, after which iteration stops.
type Store interface {
	Find(ctx context.Context, f Filter) iter.Seq2[models.Expense, error]
	Get(ctx context.Context, id string) (models.Expense, error)
	Insert(ctx context.Context, e models.Expense) (string, error)
	Update(ctx context.Context, id string, e models.Expense) error
	Delete(ctx context.Context, id string) error
	DistinctCategories(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// ReceiptStore persists receipt files.
type ReceiptStore interface {
	Put(ctx context.Context, data []byte, filename, contentType string) (string, error)
	Get(ctx context.Context, ref string) (models.Receipt, error)
	Delete(ctx context.Context, ref string) error
}

// Collect drains a Find sequence into a slice.
func Collect(seq iter.Seq2[models.Expense, error]) ([]models.Expense, error) {
	var out []models.Expense
	for e, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
