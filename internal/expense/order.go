package expense

import (
	"fmt"
	"iter"

	"bookkeeper/internal/models"
)

// Newer reports whether a sorts before b in listing order:
// date descending, then id descending.
//
// Store ids are either decimal integers or fixed-width hex object ids,
// so comparing by length first and then lexically orders both correctly.
func Newer(a, b models.Expense) bool {
	da, db := models.DateOf(a.Date), models.DateOf(b.Date)
	if !da.Equal(db) {
		return da.After(db)
	}
	if len(a.ID) != len(b.ID) {
		return len(a.ID) > len(b.ID)
	}
	return a.ID > b.ID
}

// Ordered passes seq through and checks that each record sorts after the
// previous one under Newer. A store that breaks the order ends the sequence
// with an error wrapping ErrStorageUnavailable.
func Ordered(seq iter.Seq2[models.Expense, error]) iter.Seq2[models.Expense, error] {
	return func(yield func(models.Expense, error) bool) {
		var prev models.Expense
		first := true
		for e, err := range seq {
			if err != nil {
				yield(models.Expense{}, err)
				return
			}
			if !first && !Newer(prev, e) {
				yield(models.Expense{}, fmt.Errorf("%w: %s listed after %s out of order", ErrStorageUnavailable, e.ID, prev.ID))
				return
			}
			if !yield(e, nil) {
				return
			}
			prev, first = e, false
		}
	}
}
