// Package sqlite stores expenses in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"bookkeeper/internal/expense"
	"bookkeeper/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

var columns = []string{"id", "date", "vendor", "category", "amount", "notes", "receipt_ref", "created_at"}

// DB is the relational expense.Store.
type DB struct {
	conn *sql.DB
}

var _ expense.Store = (*DB)(nil)

// NewDB opens the database at path and runs migrations.
// Use ":memory:" for a throwaway database.
func NewDB(path string) (*DB, error) {
	dsn := path
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		if !strings.Contains(path, "?") {
			dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if path == memoryPath {
		// Every connection to :memory: is a separate database.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

// Find yields matching expenses ordered by date and id, both descending.
func (db *DB) Find(ctx context.Context, f expense.Filter) iter.Seq2[models.Expense, error] {
	return func(yield func(models.Expense, error) bool) {
		query, args, err := applyFilter(squirrel.Select(columns...).From("expenses"), f).
			OrderBy("date DESC", "id DESC").
			ToSql()
		if err != nil {
			yield(models.Expense{}, fmt.Errorf("build query: %w", err))
			return
		}

		rows, err := db.conn.QueryContext(ctx, query, args...)
		if err != nil {
			yield(models.Expense{}, mapError(err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanExpense(rows)
			if err != nil {
				yield(models.Expense{}, mapError(err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Expense{}, mapError(err))
		}
	}
}

// applyFilter translates f into WHERE conditions joined by AND.
func applyFilter(b squirrel.SelectBuilder, f expense.Filter) squirrel.SelectBuilder {
	if f.Start != nil {
		b = b.Where(squirrel.GtOrEq{"date": f.Start.Format(models.DateLayout)})
	}
	if f.End != nil {
		// Dates are stored without a time of day, so <= covers the whole end day.
		b = b.Where(squirrel.LtOrEq{"date": f.End.Format(models.DateLayout)})
	}
	if f.Category != nil {
		b = b.Where(squirrel.Eq{"category": *f.Category})
	}
	if f.Search != nil {
		pattern := "%" + escapeLike(*f.Search) + "%"
		b = b.Where(squirrel.Or{
			squirrel.Expr(foldFunc+`(vendor) LIKE `+foldFunc+`(?) ESCAPE '\'`, pattern),
			squirrel.Expr(foldFunc+`(notes) LIKE `+foldFunc+`(?) ESCAPE '\'`, pattern),
		})
	}
	return b
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Get retrieves a single expense by ID.
func (db *DB) Get(ctx context.Context, id string) (models.Expense, error) {
	key, ok := parseID(id)
	if !ok {
		return models.Expense{}, expense.ErrNotFound
	}

	query, args, err := squirrel.Select(columns...).From("expenses").Where(squirrel.Eq{"id": key}).ToSql()
	if err != nil {
		return models.Expense{}, fmt.Errorf("build query: %w", err)
	}

	e, err := scanExpense(db.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		return models.Expense{}, mapError(err)
	}
	return e, nil
}

// Insert stores e and returns its new ID.
func (db *DB) Insert(ctx context.Context, e models.Expense) (string, error) {
	query, args, err := squirrel.Insert("expenses").
		Columns(columns[1:]...).
		Values(
			e.Date.Format(models.DateLayout),
			nullString(e.Vendor),
			nullString(e.Category),
			e.Amount.String(),
			nullString(e.Notes),
			nullString(e.ReceiptRef),
			e.CreatedAt.UTC().Format(time.RFC3339),
		).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build insert: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return "", mapError(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return "", mapError(err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Update replaces every mutable field of the expense.
func (db *DB) Update(ctx context.Context, id string, e models.Expense) error {
	key, ok := parseID(id)
	if !ok {
		return expense.ErrNotFound
	}

	query, args, err := squirrel.Update("expenses").
		Set("date", e.Date.Format(models.DateLayout)).
		Set("vendor", nullString(e.Vendor)).
		Set("category", nullString(e.Category)).
		Set("amount", e.Amount.String()).
		Set("notes", nullString(e.Notes)).
		Set("receipt_ref", nullString(e.ReceiptRef)).
		Where(squirrel.Eq{"id": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	return db.execOne(ctx, query, args...)
}

// Delete removes the expense.
func (db *DB) Delete(ctx context.Context, id string) error {
	key, ok := parseID(id)
	if !ok {
		return expense.ErrNotFound
	}

	query, args, err := squirrel.Delete("expenses").Where(squirrel.Eq{"id": key}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	return db.execOne(ctx, query, args...)
}

func (db *DB) execOne(ctx context.Context, query string, args ...any) error {
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return expense.ErrNotFound
	}
	return nil
}

// DistinctCategories returns the non-empty categories in use, sorted.
func (db *DB) DistinctCategories(ctx context.Context) ([]string, error) {
	query, args, err := squirrel.Select("DISTINCT category").
		From("expenses").
		Where("category IS NOT NULL AND category <> ''").
		OrderBy("category").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, mapError(err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return categories, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (models.Expense, error) {
	var (
		id                               int64
		date, amount, createdAt          string
		vendor, category, notes, receipt sql.NullString
	)
	if err := s.Scan(&id, &date, &vendor, &category, &amount, &notes, &receipt, &createdAt); err != nil {
		return models.Expense{}, err
	}

	e := models.Expense{
		ID:         strconv.FormatInt(id, 10),
		Vendor:     stringPtr(vendor),
		Category:   stringPtr(category),
		Notes:      stringPtr(notes),
		ReceiptRef: stringPtr(receipt),
	}

	var err error
	if e.Date, err = models.ParseDate(date); err != nil {
		return models.Expense{}, fmt.Errorf("expense %d: parse date %q: %w", id, date, err)
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return models.Expense{}, fmt.Errorf("expense %d: parse amount %q: %w", id, amount, err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return models.Expense{}, fmt.Errorf("expense %d: parse created_at %q: %w", id, createdAt, err)
	}
	return e, nil
}

func parseID(id string) (int64, bool) {
	key, err := strconv.ParseInt(id, 10, 64)
	return key, err == nil && key > 0
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// mapError translates driver errors into expense sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return expense.ErrNotFound
	}
	return fmt.Errorf("%w: %w", expense.ErrStorageUnavailable, err)
}
