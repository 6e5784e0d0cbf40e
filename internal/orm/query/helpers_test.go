package query

import (
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// newTestRegistry builds Customer, Invoice, LineItem and Product
func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	customer := schema.NewSchema("Customer")
	customer.MustAttribute(&schema.Attribute{Name: "id", Kind: schema.KindInteger, Filterable: schema.FilterAlways, Sortable: true}).
		MustAttribute(&schema.Attribute{Name: "name", Kind: schema.KindString, Filterable: schema.FilterAlways, Sortable: true}).
		MustAttribute(&schema.Attribute{Name: "credit_note", Kind: schema.KindString, Nullable: true, Filterable: schema.FilterIf(func(rc schema.RequestContext) bool {
			return rc.HasRole("admin")
		})}).
		MustAssociation(&schema.Association{Name: "invoices", Target: "Invoice", Kind: schema.HasMany, Filterable: true, Sortable: true, Serializable: true})

	invoice := schema.NewSchema("Invoice")
	invoice.Pagination = schema.Pagination{Strategy: schema.PaginateOffset, DefaultSize: 10, MaxSize: 50}
	invoice.MustAttribute(&schema.Attribute{Name: "id", Kind: schema.KindInteger, Filterable: schema.FilterAlways, Sortable: true}).
		MustAttribute(&schema.Attribute{Name: "status", Kind: schema.KindString, EnumValues: []string{"draft", "sent", "paid"}, Filterable: schema.FilterAlways, Sortable: true}).
		MustAttribute(&schema.Attribute{Name: "sent", Kind: schema.KindBoolean, Filterable: schema.FilterAlways}).
		MustAttribute(&schema.Attribute{Name: "due_on", Kind: schema.KindDate, Nullable: true, Filterable: schema.FilterAlways, Sortable: true}).
		MustAttribute(&schema.Attribute{Name: "total", Kind: schema.KindDecimal, Filterable: schema.FilterAlways, Sortable: true}).
		MustAttribute(&schema.Attribute{Name: "reference", Kind: schema.KindUUID, Nullable: true, Filterable: schema.FilterAlways}).
		MustAttribute(&schema.Attribute{Name: "issued_at", Kind: schema.KindDateTime, Nullable: true, Filterable: schema.FilterAlways, Sortable: true}).
		MustAttribute(&schema.Attribute{Name: "notes", Kind: schema.KindString, Nullable: true}).
		MustAssociation(&schema.Association{Name: "customer", Target: "Customer", Kind: schema.BelongsTo, Filterable: true, Sortable: true, AlwaysIncluded: true, Serializable: true}).
		MustAssociation(&schema.Association{Name: "items", Target: "LineItem", Kind: schema.HasMany, Filterable: true, Sortable: true, Serializable: true})

	item := schema.NewSchema("LineItem")
	item.Pagination = schema.Pagination{Strategy: schema.PaginateCursor, DefaultSize: 2, MaxSize: 10}
	item.MustAttribute(&schema.Attribute{Name: "id", Kind: schema.KindInteger, Filterable: schema.FilterAlways, Sortable: true}).
		MustAttribute(&schema.Attribute{Name: "description", Kind: schema.KindString, Filterable: schema.FilterAlways}).
		MustAttribute(&schema.Attribute{Name: "quantity", Kind: schema.KindInteger, Filterable: schema.FilterAlways, Sortable: true}).
		MustAssociation(&schema.Association{Name: "invoice", Target: "Invoice", Kind: schema.BelongsTo, Filterable: true}).
		MustAssociation(&schema.Association{Name: "product", Target: "Product", Kind: schema.BelongsTo, Filterable: true, Sortable: true, Serializable: true})

	product := schema.NewSchema("Product")
	product.MustAttribute(&schema.Attribute{Name: "id", Kind: schema.KindInteger, Filterable: schema.FilterAlways, Sortable: true}).
		MustAttribute(&schema.Attribute{Name: "name", Kind: schema.KindString, Filterable: schema.FilterAlways, Sortable: true})

	registry := schema.NewRegistry()
	for _, s := range []*schema.Schema{customer, invoice, item, product} {
		require.NoError(t, registry.Register(s))
	}
	require.NoError(t, registry.Seal())
	return registry
}

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	return NewCompiler(newTestRegistry(t), DefaultOptions(), nil)
}

func mustSchema(t *testing.T, c *Compiler, name string) *schema.Schema {
	t.Helper()
	s, err := c.Registry().Lookup(name)
	require.NoError(t, err)
	return s
}

// pred builds an expected predicate
func pred(path []string, column string, kind schema.ValueKind, op Operator, value interface{}) *Predicate {
	if path == nil {
		path = []string{}
	}
	return &Predicate{Path: path, Column: column, Kind: kind, Operator: op, Value: value}
}

// setupSQLite creates the invoice tables in a private in-memory database
func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	statements := []string{
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, credit_note TEXT)`,
		`CREATE TABLE invoices (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER,
			status TEXT NOT NULL,
			sent INTEGER NOT NULL,
			due_on TEXT,
			total REAL NOT NULL DEFAULT 0,
			reference TEXT,
			issued_at TEXT,
			notes TEXT
		)`,
		`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE line_items (
			id INTEGER PRIMARY KEY,
			invoice_id INTEGER NOT NULL,
			product_id INTEGER,
			description TEXT,
			quantity INTEGER NOT NULL DEFAULT 1
		)`,
	}
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "Failed to execute: %s", stmt)
	}
	return db
}

func exec(t *testing.T, db *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "Failed to execute: %s", stmt)
	}
}

// seedInvoices inserts n invoices; status cycles draft/sent/paid and even ids are sent
func seedInvoices(t *testing.T, db *sql.DB, n int) {
	t.Helper()
	statuses := []string{"draft", "sent", "paid"}
	for i := 1; i <= n; i++ {
		sent := 0
		if i%2 == 0 {
			sent = 1
		}
		exec(t, db, fmt.Sprintf(
			`INSERT INTO invoices (id, customer_id, status, sent, due_on, total) VALUES (%d, %d, '%s', %d, '2024-01-%02d', %d)`,
			i, i%2+1, statuses[(i-1)%3], sent, (i-1)%28+1, i*10,
		))
	}
}

func recordIDs(records []Record) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r["id"].(int64)
	}
	return ids
}
