package query

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

func TestRenderGolden(t *testing.T) {
	c := newTestCompiler(t)

	after, err := EncodeCursor(int64(5))
	require.NoError(t, err)

	tests := []struct {
		name      string
		resource  string
		dialect   Dialect
		params    Params
		withCount bool
	}{
		{
			name:     "postgres_scalar",
			resource: "Invoice",
			dialect:  Postgres,
			params: Params{
				Filter: MapOf("status", "draft", "total", MapOf("gte", 100)),
				Sort:   MapOf("due_on", "desc"),
				Page:   MapOf("number", 2, "size", 5),
			},
			withCount: true,
		},
		{
			name:     "postgres_joins",
			resource: "Invoice",
			dialect:  Postgres,
			params: Params{
				Filter: MapOf(
					"customer", MapOf("name", MapOf("starts_with", "Ac")),
					"items", MapOf("quantity", MapOf("in", []interface{}{1, 2})),
				),
				Sort: MapOf("customer", MapOf("name", "asc")),
			},
			withCount: true,
		},
		{
			name:     "postgres_logic",
			resource: "Invoice",
			dialect:  Postgres,
			params: Params{
				Filter: MapOf(
					"_or", []interface{}{
						MapOf("status", "draft"),
						MapOf("_not", MapOf("sent", true)),
					},
					"due_on", MapOf("between", MapOf("from", "2024-01-01", "to", "2024-01-31")),
				),
			},
		},
		{
			name:     "sqlite_logic",
			resource: "Invoice",
			dialect:  SQLite,
			params: Params{
				Filter: MapOf(
					"_or", []interface{}{
						MapOf("status", "draft"),
						MapOf("_not", MapOf("sent", true)),
					},
					"due_on", MapOf("between", MapOf("from", "2024-01-01", "to", "2024-01-31")),
				),
			},
		},
		{
			name:     "sqlite_in",
			resource: "Invoice",
			dialect:  SQLite,
			params: Params{
				Filter: MapOf("status", []interface{}{"draft", "paid"}),
			},
		},
		{
			name:     "postgres_cursor",
			resource: "LineItem",
			dialect:  Postgres,
			params: Params{
				Filter: MapOf("quantity", MapOf("gt", 1)),
				Page:   MapOf("after", after, "size", 2),
			},
		},
		{
			name:     "postgres_nested_sort",
			resource: "Invoice",
			dialect:  Postgres,
			params: Params{
				Sort: "-items.product.name,status",
			},
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, issues, err := c.Compile(tt.resource, tt.params, schema.RequestContext{})
			require.NoError(t, err)
			require.Empty(t, issues)

			stmt, err := tt.dialect.Select(q)
			require.NoError(t, err)
			g.Assert(t, tt.name, []byte(stmt.String()+"\n"))

			if tt.withCount {
				count, err := tt.dialect.Count(q)
				require.NoError(t, err)
				g.Assert(t, tt.name+"_count", []byte(count.String()+"\n"))
			}
		})
	}
}

func TestRenderEmptyIn(t *testing.T) {
	c := newTestCompiler(t)
	q, issues, err := c.Compile("Invoice", Params{Filter: MapOf("total", MapOf("in", []interface{}{}))}, schema.RequestContext{})
	require.NoError(t, err)
	require.Empty(t, issues)

	for _, d := range []Dialect{Postgres, SQLite} {
		stmt, err := d.Select(q)
		require.NoError(t, err)
		assert.Contains(t, stmt.SQL, "WHERE FALSE ORDER BY")
		assert.Empty(t, stmt.Args)
	}
}

func TestRenderEscapesLike(t *testing.T) {
	c := newTestCompiler(t)
	q, issues, err := c.Compile("LineItem", Params{Filter: MapOf("description", MapOf("contains", `50%_off\`))}, schema.RequestContext{})
	require.NoError(t, err)
	require.Empty(t, issues)

	stmt, err := SQLite.Select(q)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `line_items.description LIKE ? ESCAPE '\'`)
	assert.Equal(t, []interface{}{`%50\%\_off\\%`}, stmt.Args)
}

func TestRenderSQLiteTemporalArgs(t *testing.T) {
	c := newTestCompiler(t)
	q, issues, err := c.Compile("Invoice", Params{
		Filter: MapOf("issued_at", MapOf("gte", "2024-03-01T10:30:00Z")),
	}, schema.RequestContext{})
	require.NoError(t, err)
	require.Empty(t, issues)

	stmt, err := SQLite.Select(q)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "strftime('%Y-%m-%d %H:%M:%f', invoices.issued_at) >= ?")
	assert.Equal(t, []interface{}{"2024-03-01 10:30:00.000"}, stmt.Args)

	q, issues, err = c.Compile("Invoice", Params{
		Filter: MapOf("issued_at", MapOf("between", MapOf("from", "2024-03-01", "to", "2024-03-01"))),
	}, schema.RequestContext{})
	require.NoError(t, err)
	require.Empty(t, issues)

	stmt, err = SQLite.Select(q)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"2024-03-01 00:00:00.000", "2024-03-01 23:59:59.999"}, stmt.Args)

	q, issues, err = c.Compile("Invoice", Params{
		Filter: MapOf("issued_at", MapOf("null", true)),
	}, schema.RequestContext{})
	require.NoError(t, err)
	require.Empty(t, issues)

	stmt, err = SQLite.Select(q)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "invoices.issued_at IS NULL")
}

func TestSelectIn(t *testing.T) {
	stmt := Postgres.SelectIn("customers", "id", "id", []interface{}{int64(1), int64(2)})
	assert.Equal(t, "SELECT * FROM customers WHERE id = ANY($1) ORDER BY id", stmt.SQL)
	assert.Equal(t, "SELECT * FROM customers WHERE id = ANY($1) ORDER BY id\n-- $1 = {1,2}", stmt.String())

	stmt = SQLite.SelectIn("line_items", "invoice_id", "id", []interface{}{int64(1), int64(3)})
	assert.Equal(t, "SELECT * FROM line_items WHERE invoice_id IN (?, ?) ORDER BY id", stmt.SQL)
	assert.Equal(t, []interface{}{int64(1), int64(3)}, stmt.Args)

	stmt = SQLite.SelectIn("line_items", "invoice_id", "", nil)
	assert.Equal(t, "SELECT * FROM line_items WHERE FALSE", stmt.SQL)
}

func TestDialectForDriver(t *testing.T) {
	tests := []struct {
		driver string
		want   Dialect
	}{
		{"pgx", Postgres},
		{"postgres", Postgres},
		{"sqlite3", SQLite},
		{"SQLite", SQLite},
	}
	for _, tt := range tests {
		got, err := DialectForDriver(tt.driver)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := DialectForDriver("mysql")
	assert.ErrorIs(t, err, ErrUnknownDialect)
}
