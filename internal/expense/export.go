package expense

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"bookkeeper/internal/models"
)

// ExportHeader is the first row of every export.
var ExportHeader = []string{"date", "vendor", "category", "amount", "notes", "receipt_reference", "created_at"}

// ExportFilename is the suggested download name.
const ExportFilename = "expenses_export.csv"

// Exporter streams filtered expenses as CSV rows.
type Exporter struct {
	store Store
}

// NewExporter creates an Exporter reading from s.
func NewExporter(s Store) *Exporter {
	return &Exporter{store: s}
}

// Rows yields the header and then one encoded line per matching expense,
// newest first, without line terminators. The sequence is single-pass and
// pulls from the store as it is consumed. A store failure is yielded once
// and ends the sequence.
func (x *Exporter) Rows(ctx context.Context, f Filter) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !yield(encodeRow(ExportHeader), nil) {
			return
		}
		for e, err := range Ordered(x.store.Find(ctx, f)) {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(encodeRow(exportFields(e)), nil) {
				return
			}
		}
	}
}

// WriteCSV writes every row to w and returns the number of expense rows written.
func (x *Exporter) WriteCSV(ctx context.Context, w io.Writer, f Filter) (int, error) {
	n := -1
	for row, err := range x.Rows(ctx, f) {
		if err != nil {
			return max(n, 0), err
		}
		if _, err := io.WriteString(w, row+"\n"); err != nil {
			return max(n, 0), fmt.Errorf("write export: %w", err)
		}
		n++
	}
	return n, nil
}

func exportFields(e models.Expense) []string {
	return []string{
		e.DateText(),
		e.VendorText(),
		e.CategoryText(),
		FormatAmount(e.Amount),
		flattenNotes(e.NotesText()),
		e.ReceiptText(),
		e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

var notesReplacer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ", ",", "")

// flattenNotes keeps notes on one line and free of commas.
func flattenNotes(s string) string {
	return notesReplacer.Replace(s)
}

func encodeRow(fields []string) string {
	var b strings.Builder
	cw := csv.NewWriter(&b)
	// Writing to a strings.Builder cannot fail.
	_ = cw.Write(fields)
	cw.Flush()
	return strings.TrimSuffix(b.String(), "\n")
}
