package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"bookkeeper/internal/expense"
	"bookkeeper/internal/models"
)

// DBTestSuite provides a test suite for database operations
type DBTestSuite struct {
	suite.Suite
	db  *DB
	ctx context.Context
}

// SetupTest runs before each test
func (suite *DBTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.ctx = context.Background()
}

// TearDownTest runs after each test
func (suite *DBTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func ptr(s string) *string { return &s }

func (suite *DBTestSuite) insert(date, vendor, category, amount string) string {
	d, err := models.ParseDate(date)
	require.NoError(suite.T(), err)
	e := models.Expense{
		Date:      d,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if vendor != "" {
		e.Vendor = ptr(vendor)
	}
	if category != "" {
		e.Category = ptr(category)
	}
	id, err := suite.db.Insert(suite.ctx, e)
	require.NoError(suite.T(), err)
	return id
}

func (suite *DBTestSuite) find(f expense.Filter) []models.Expense {
	result, err := expense.Collect(suite.db.Find(suite.ctx, f))
	require.NoError(suite.T(), err)
	return result
}

func (suite *DBTestSuite) TestInsertAndGet() {
	d, _ := models.ParseDate("2024-01-05")
	created := time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)
	id, err := suite.db.Insert(suite.ctx, models.Expense{
		Date:       d,
		Vendor:     ptr("Acme"),
		Category:   ptr("Travel"),
		Amount:     decimal.RequireFromString("120.50"),
		Notes:      ptr("train, return"),
		ReceiptRef: ptr("abc_ticket.pdf"),
		CreatedAt:  created,
	})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "1", id)

	got, err := suite.db.Get(suite.ctx, id)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), id, got.ID)
	assert.Equal(suite.T(), d, got.Date)
	assert.Equal(suite.T(), "Acme", got.VendorText())
	assert.Equal(suite.T(), "Travel", got.CategoryText())
	assert.True(suite.T(), decimal.RequireFromString("120.5").Equal(got.Amount))
	assert.Equal(suite.T(), "train, return", got.NotesText())
	assert.Equal(suite.T(), "abc_ticket.pdf", got.ReceiptText())
	assert.True(suite.T(), created.Equal(got.CreatedAt))
	assert.Nil(suite.T(), got.UpdatedAt)
}

func (suite *DBTestSuite) TestOptionalFieldsStayNil() {
	id := suite.insert("2024-01-05", "", "", "1")

	got, err := suite.db.Get(suite.ctx, id)
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), got.Vendor)
	assert.Nil(suite.T(), got.Category)
	assert.Nil(suite.T(), got.Notes)
	assert.Nil(suite.T(), got.ReceiptRef)
}

func (suite *DBTestSuite) TestGetNotFound() {
	for _, id := range []string{"999", "abc", "", "-1"} {
		_, err := suite.db.Get(suite.ctx, id)
		assert.ErrorIs(suite.T(), err, expense.ErrNotFound, "id %q", id)
	}
}

func (suite *DBTestSuite) TestUpdate() {
	id := suite.insert("2024-01-05", "Acme", "Travel", "10")
	before, err := suite.db.Get(suite.ctx, id)
	require.NoError(suite.T(), err)

	changed := before
	changed.Vendor = nil
	changed.Category = ptr("Meals")
	changed.Amount = decimal.RequireFromString("-4.25")
	changed.Date = before.Date.AddDate(0, 0, 1)
	require.NoError(suite.T(), suite.db.Update(suite.ctx, id, changed))

	got, err := suite.db.Get(suite.ctx, id)
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), got.Vendor)
	assert.Equal(suite.T(), "Meals", got.CategoryText())
	assert.Equal(suite.T(), "-4.25", got.Amount.StringFixed(2))
	assert.Equal(suite.T(), "2024-01-06", got.DateText())
	assert.True(suite.T(), before.CreatedAt.Equal(got.CreatedAt))
}

func (suite *DBTestSuite) TestUpdateAndDeleteNotFound() {
	assert.ErrorIs(suite.T(), suite.db.Update(suite.ctx, "42", models.Expense{}), expense.ErrNotFound)
	assert.ErrorIs(suite.T(), suite.db.Delete(suite.ctx, "42"), expense.ErrNotFound)
}

func (suite *DBTestSuite) TestDelete() {
	id := suite.insert("2024-01-05", "Acme", "Travel", "10")
	require.NoError(suite.T(), suite.db.Delete(suite.ctx, id))

	_, err := suite.db.Get(suite.ctx, id)
	assert.ErrorIs(suite.T(), err, expense.ErrNotFound)
	assert.ErrorIs(suite.T(), suite.db.Delete(suite.ctx, id), expense.ErrNotFound)
}

func (suite *DBTestSuite) TestFindOrdersNewestFirst() {
	a := suite.insert("2024-01-05", "A", "", "1")
	b := suite.insert("2024-02-01", "B", "", "1")
	c := suite.insert("2024-01-05", "C", "", "1")

	result := suite.find(expense.Filter{})
	require.Len(suite.T(), result, 3)
	assert.Equal(suite.T(), []string{b, c, a}, []string{result[0].ID, result[1].ID, result[2].ID})

	for i := 1; i < len(result); i++ {
		assert.True(suite.T(), expense.Newer(result[i-1], result[i]))
	}
}

func (suite *DBTestSuite) TestFindDateRangeInclusive() {
	suite.insert("2024-01-09", "Before", "", "1")
	suite.insert("2024-01-10", "Start", "", "2")
	suite.insert("2024-01-31", "End", "", "3")
	suite.insert("2024-02-01", "After", "", "4")

	start, _ := models.ParseDate("2024-01-10")
	end, _ := models.ParseDate("2024-01-31")
	result := suite.find(expense.Filter{Start: &start, End: &end})

	require.Len(suite.T(), result, 2)
	assert.Equal(suite.T(), "End", result[0].VendorText())
	assert.Equal(suite.T(), "Start", result[1].VendorText())
}

func (suite *DBTestSuite) TestFindCategoryExact() {
	suite.insert("2024-01-05", "A", "Travel", "1")
	suite.insert("2024-01-05", "B", "travel", "1")
	suite.insert("2024-01-05", "C", "", "1")

	result := suite.find(expense.Filter{Category: ptr("Travel")})
	require.Len(suite.T(), result, 1)
	assert.Equal(suite.T(), "A", result[0].VendorText())
}

func (suite *DBTestSuite) TestFindSearch() {
	suite.insert("2024-01-05", "ACME Corp", "", "1")
	id := suite.insert("2024-01-06", "Other", "", "1")
	e, err := suite.db.Get(suite.ctx, id)
	require.NoError(suite.T(), err)
	e.Notes = ptr("paid acme invoice")
	require.NoError(suite.T(), suite.db.Update(suite.ctx, id, e))
	suite.insert("2024-01-07", "Nothing", "", "1")

	result := suite.find(expense.Filter{Search: ptr("acme")})
	assert.Len(suite.T(), result, 2)
}

func (suite *DBTestSuite) TestFindSearchFoldsUnicode() {
	suite.insert("2024-01-05", "Café Zürich", "", "1")
	suite.insert("2024-01-06", "ÖBB Ticket", "", "1")
	suite.insert("2024-01-07", "Cafe Plain", "", "1")

	result := suite.find(expense.Filter{Search: ptr("CAFÉ")})
	require.Len(suite.T(), result, 1)
	assert.Equal(suite.T(), "Café Zürich", result[0].VendorText())

	assert.Len(suite.T(), suite.find(expense.Filter{Search: ptr("öbb")}), 1)
	assert.Len(suite.T(), suite.find(expense.Filter{Search: ptr("ZÜRICH")}), 1)
}

func (suite *DBTestSuite) TestFindSearchEscapesWildcards() {
	suite.insert("2024-01-05", "100% Cotton", "", "1")
	suite.insert("2024-01-06", "1000 Cotton", "", "1")
	suite.insert("2024-01-07", "a_b", "", "1")
	suite.insert("2024-01-08", "axb", "", "1")

	assert.Len(suite.T(), suite.find(expense.Filter{Search: ptr("100%")}), 1)
	assert.Len(suite.T(), suite.find(expense.Filter{Search: ptr("a_b")}), 1)
}

func (suite *DBTestSuite) TestFindMatchesReferencePredicate() {
	suite.insert("2024-01-05", "Acme", "Travel", "120.00")
	suite.insert("2024-01-20", "Acme", "Meals", "30.00")
	suite.insert("2024-02-01", "Beta", "Travel", "50.00")
	suite.insert("2024-02-03", "", "", "7")
	suite.insert("2024-02-04", "Café Zürich", "Meals", "12.40")

	all := suite.find(expense.Filter{})
	start, _ := models.ParseDate("2024-01-10")
	end, _ := models.ParseDate("2024-02-01")
	filters := []expense.Filter{
		{},
		{Category: ptr("Travel")},
		{Search: ptr("acm")},
		{Search: ptr("CAFÉ")},
		{Search: ptr("zürich")},
		{Start: &start},
		{End: &end},
		{Start: &start, End: &end, Category: ptr("Travel")},
	}
	for _, f := range filters {
		var want []string
		for _, e := range all {
			if f.Match(e) {
				want = append(want, e.ID)
			}
		}
		var got []string
		for _, e := range suite.find(f) {
			got = append(got, e.ID)
		}
		assert.Equal(suite.T(), want, got, "filter %v", f.Values())
	}
}

func (suite *DBTestSuite) TestFindEarlyBreakReleasesConnection() {
	for i := 0; i < 5; i++ {
		suite.insert("2024-01-05", "A", "", "1")
	}
	for _, err := range suite.db.Find(suite.ctx, expense.Filter{}) {
		require.NoError(suite.T(), err)
		break
	}

	// A leaked rows handle would block the single in-memory connection.
	ctx, cancel := context.WithTimeout(suite.ctx, 2*time.Second)
	defer cancel()
	_, err := suite.db.DistinctCategories(ctx)
	assert.NoError(suite.T(), err)
}

func (suite *DBTestSuite) TestFindCanceledContext() {
	suite.insert("2024-01-05", "A", "", "1")
	ctx, cancel := context.WithCancel(suite.ctx)
	cancel()

	_, err := expense.Collect(suite.db.Find(ctx, expense.Filter{}))
	assert.ErrorIs(suite.T(), err, expense.ErrStorageUnavailable)
}

func (suite *DBTestSuite) TestDistinctCategories() {
	suite.insert("2024-01-05", "A", "Travel", "1")
	suite.insert("2024-01-05", "B", "Meals", "1")
	suite.insert("2024-01-05", "C", "Travel", "1")
	suite.insert("2024-01-05", "D", "", "1")

	categories, err := suite.db.DistinctCategories(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"Meals", "Travel"}, categories)
}

func (suite *DBTestSuite) TestPing() {
	assert.NoError(suite.T(), suite.db.Ping(suite.ctx))
}

// TestDBTestSuite runs the test suite
func TestDBTestSuite(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}

func TestNewDBFileReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "expenses.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	d, _ := models.ParseDate("2024-01-05")
	id, err := db.Insert(context.Background(), models.Expense{Date: d, Amount: decimal.NewFromInt(3), CreatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Migrations are idempotent across restarts.
	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "3.00", got.Amount.StringFixed(2))
}
