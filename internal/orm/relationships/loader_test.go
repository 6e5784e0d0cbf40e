package relationships

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/querykit/internal/orm/query"
	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// QueryCounter wraps a DB connection and counts queries
type QueryCounter struct {
	*sql.DB
	count int
}

func (qc *QueryCounter) QueryContext(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	qc.count++
	return qc.DB.QueryContext(ctx, q, args...)
}

func setupTestRegistry(t *testing.T) *schema.Registry {
	customer := schema.NewSchema("Customer")
	customer.MustAttribute(&schema.Attribute{Name: "id", Kind: schema.KindInteger}).
		MustAttribute(&schema.Attribute{Name: "name", Kind: schema.KindString}).
		MustAssociation(&schema.Association{Name: "invoices", Target: "Invoice", Kind: schema.HasMany, Serializable: true}).
		MustAssociation(&schema.Association{Name: "profile", Target: "Profile", Kind: schema.HasOne, Serializable: true})

	profile := schema.NewSchema("Profile")
	profile.MustAttribute(&schema.Attribute{Name: "id", Kind: schema.KindInteger}).
		MustAttribute(&schema.Attribute{Name: "bio", Kind: schema.KindString}).
		MustAssociation(&schema.Association{Name: "customer", Target: "Customer", Kind: schema.BelongsTo})

	invoice := schema.NewSchema("Invoice")
	invoice.MustAttribute(&schema.Attribute{Name: "id", Kind: schema.KindInteger}).
		MustAttribute(&schema.Attribute{Name: "status", Kind: schema.KindString}).
		MustAssociation(&schema.Association{Name: "customer", Target: "Customer", Kind: schema.BelongsTo, Serializable: true}).
		MustAssociation(&schema.Association{Name: "items", Target: "LineItem", Kind: schema.HasMany, Serializable: true})

	item := schema.NewSchema("LineItem")
	item.MustAttribute(&schema.Attribute{Name: "id", Kind: schema.KindInteger}).
		MustAttribute(&schema.Attribute{Name: "description", Kind: schema.KindString})

	registry := schema.NewRegistry()
	for _, s := range []*schema.Schema{customer, profile, invoice, item} {
		require.NoError(t, registry.Register(s))
	}
	require.NoError(t, registry.Seal())
	return registry
}

func setupSQLite(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	statements := []string{
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE profiles (id INTEGER PRIMARY KEY, customer_id INTEGER NOT NULL, bio TEXT)`,
		`CREATE TABLE invoices (id INTEGER PRIMARY KEY, status TEXT NOT NULL, customer_id INTEGER)`,
		`CREATE TABLE line_items (id INTEGER PRIMARY KEY, invoice_id INTEGER NOT NULL, description TEXT)`,
		`INSERT INTO customers (id, name) VALUES (1, 'Acme'), (2, 'Globex'), (3, 'Initech')`,
		`INSERT INTO profiles (id, customer_id, bio) VALUES (1, 1, 'big')`,
		`INSERT INTO invoices (id, status, customer_id) VALUES (1, 'draft', 1), (2, 'sent', 1), (3, 'paid', 2), (4, 'draft', NULL)`,
		`INSERT INTO line_items (id, invoice_id, description) VALUES (1, 1, 'a'), (2, 1, 'b'), (3, 3, 'c')`,
	}
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "Failed to execute: %s", stmt)
	}
	return db
}

func loadInvoices(t *testing.T, db *sql.DB) []query.Record {
	rows, err := db.Query("SELECT * FROM invoices ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	records, err := query.ScanRows(rows)
	require.NoError(t, err)
	require.Len(t, records, 4)
	return records
}

func TestLoadNestedTree(t *testing.T) {
	registry := setupTestRegistry(t)
	db := setupSQLite(t)
	invoices := loadInvoices(t, db)

	counter := &QueryCounter{DB: db}
	loader := NewLoader(counter, query.SQLite)

	invoice, _ := registry.Get("Invoice")
	tree := query.IncludeTree{
		"customer": {"profile": {}},
		"items":    {},
	}
	require.NoError(t, loader.Load(context.Background(), invoice, invoices, tree))

	// One query per association and level
	assert.Equal(t, 3, counter.count)

	customer, ok := invoices[0]["customer"].(query.Record)
	require.True(t, ok)
	assert.Equal(t, "Acme", customer["name"])
	profile, ok := customer["profile"].(query.Record)
	require.True(t, ok)
	assert.Equal(t, "big", profile["bio"])

	globex := invoices[2]["customer"].(query.Record)
	assert.Equal(t, "Globex", globex["name"])
	assert.Nil(t, globex["profile"])

	assert.Nil(t, invoices[3]["customer"])

	items := invoices[0]["items"].([]query.Record)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0]["description"])
	assert.Equal(t, []query.Record{}, invoices[1]["items"])
}

func TestLoadSharesBelongsToRecords(t *testing.T) {
	registry := setupTestRegistry(t)
	db := setupSQLite(t)
	invoices := loadInvoices(t, db)

	invoice, _ := registry.Get("Invoice")
	loader := NewLoader(db, query.SQLite)
	require.NoError(t, loader.Load(context.Background(), invoice, invoices, query.IncludeTree{"customer": {}}))

	first := invoices[0]["customer"].(query.Record)
	second := invoices[1]["customer"].(query.Record)
	first["marker"] = true
	assert.Equal(t, true, second["marker"])
}

func TestLoadHasManyThenBack(t *testing.T) {
	registry := setupTestRegistry(t)
	db := setupSQLite(t)

	rows, err := db.Query("SELECT * FROM customers ORDER BY id")
	require.NoError(t, err)
	customers, err := query.ScanRows(rows)
	rows.Close()
	require.NoError(t, err)

	customer, _ := registry.Get("Customer")
	loader := NewLoader(db, query.SQLite)
	tree := query.IncludeTree{"invoices": {"customer": {}}}
	require.NoError(t, loader.Load(context.Background(), customer, customers, tree))

	acme := customers[0]["invoices"].([]query.Record)
	require.Len(t, acme, 2)
	assert.Equal(t, "Acme", acme[1]["customer"].(query.Record)["name"])
	assert.Equal(t, []query.Record{}, customers[2]["invoices"])
}

func TestLoadCyclicTreeHitsDepthLimit(t *testing.T) {
	registry := setupTestRegistry(t)
	db := setupSQLite(t)
	invoices := loadInvoices(t, db)

	tree := query.IncludeTree{}
	back := query.IncludeTree{"invoices": tree}
	tree["customer"] = back

	invoice, _ := registry.Get("Invoice")
	loader := NewLoader(db, query.SQLite).WithMaxDepth(4)
	err := loader.Load(context.Background(), invoice, invoices, tree)
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestLoadUnknownRelationship(t *testing.T) {
	registry := setupTestRegistry(t)
	invoice, _ := registry.Get("Invoice")

	loader := NewLoader(nil, query.SQLite)
	records := []query.Record{{"id": int64(1)}}
	err := loader.Load(context.Background(), invoice, records, query.IncludeTree{"payments": {}})
	assert.ErrorIs(t, err, ErrUnknownRelationship)
}

func TestLoadEmptyRecords(t *testing.T) {
	registry := setupTestRegistry(t)
	invoice, _ := registry.Get("Invoice")

	loader := NewLoader(nil, query.SQLite)
	assert.NoError(t, loader.Load(context.Background(), invoice, nil, query.IncludeTree{"customer": {}}))
}

func TestLoadBelongsToPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	registry := setupTestRegistry(t)
	invoice, _ := registry.Get("Invoice")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM customers WHERE id = ANY($1) ORDER BY id")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "Acme"))

	records := []query.Record{
		{"id": int64(1), "customer_id": int64(7)},
		{"id": int64(2), "customer_id": int64(7)},
	}
	loader := NewLoader(db, query.Postgres)
	require.NoError(t, loader.Load(context.Background(), invoice, records, query.IncludeTree{"customer": {}}))

	assert.Equal(t, "Acme", records[1]["customer"].(query.Record)["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	registry := setupTestRegistry(t)
	invoice, _ := registry.Get("Invoice")

	mock.ExpectQuery("SELECT \\* FROM line_items").WillReturnError(sql.ErrConnDone)

	loader := NewLoader(db, query.Postgres)
	err = loader.Load(context.Background(), invoice, []query.Record{{"id": int64(1)}}, query.IncludeTree{"items": {}})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "failed to load relationship items")
}

func TestIDToString(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{int64(7), "7"},
		{7, "7"},
		{"abc", "abc"},
		{[]byte("xyz"), "xyz"},
	}
	for _, tt := range tests {
		got, err := idToString(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := idToString(3.5)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
