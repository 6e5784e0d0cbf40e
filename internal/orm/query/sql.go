package query

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// ErrUnknownDialect is returned for drivers without a SQL dialect
var ErrUnknownDialect = errors.New("unknown SQL dialect")

// Dialect renders compiled queries for one SQL database
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// String returns the dialect name
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// DialectForDriver maps a database/sql driver name to its dialect
func DialectForDriver(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownDialect, name)
	}
}

// Placeholder returns the bind placeholder of the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Statement is rendered SQL with its arguments
type Statement struct {
	SQL  string
	Args []interface{}
}

// String renders the statement for logs and golden files
func (s Statement) String() string {
	var b strings.Builder
	b.WriteString(s.SQL)
	for i, arg := range s.Args {
		fmt.Fprintf(&b, "\n-- $%d = %s", i+1, describeArg(arg))
	}
	return b.String()
}

func describeArg(arg interface{}) string {
	switch v := arg.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case driver.Valuer:
		value, err := v.Value()
		if err != nil {
			return fmt.Sprintf("<%v>", err)
		}
		return fmt.Sprintf("%v", value)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Select renders the row query of q
func (d Dialect) Select(q *Query) (Statement, error) {
	r := &renderer{dialect: d, root: q.Schema}
	root := q.Schema.Table
	pk := root + "." + q.Schema.PrimaryKey

	var where []string
	if !q.FilterJoins.Empty() {
		joins, err := r.joins(q.FilterJoins)
		if err != nil {
			return Statement{}, err
		}
		inner := fmt.Sprintf("SELECT DISTINCT %s FROM %s%s", pk, root, joins)
		if q.Condition != nil {
			cond, err := r.expr(q.Condition)
			if err != nil {
				return Statement{}, err
			}
			inner += " WHERE " + cond
		}
		where = append(where, fmt.Sprintf("%s IN (%s)", pk, inner))
	} else if q.Condition != nil {
		cond, err := r.expr(q.Condition)
		if err != nil {
			return Statement{}, err
		}
		where = append(where, cond)
	}

	if q.Page.Strategy == schema.PaginateCursor {
		pkKind := schema.KindInteger
		if attr, err := q.Schema.PrimaryKeyAttribute(); err == nil {
			pkKind = attr.Kind
		}
		switch {
		case q.Page.After != nil:
			where = append(where, fmt.Sprintf("%s > %s", pk, r.bind(q.Page.After, pkKind)))
		case q.Page.Before != nil:
			where = append(where, fmt.Sprintf("%s < %s", pk, r.bind(q.Page.Before, pkKind)))
		}
	}

	var sql strings.Builder
	fmt.Fprintf(&sql, "SELECT %s.* FROM %s", root, root)
	if len(where) > 0 {
		sql.WriteString(" WHERE ")
		sql.WriteString(strings.Join(where, " AND "))
	}

	orderBy, err := r.orderBy(q)
	if err != nil {
		return Statement{}, err
	}
	sql.WriteString(" ORDER BY ")
	sql.WriteString(orderBy)

	fmt.Fprintf(&sql, " LIMIT %d", q.Page.Limit())
	if q.Page.Strategy == schema.PaginateOffset && q.Page.Offset > 0 {
		fmt.Fprintf(&sql, " OFFSET %d", q.Page.Offset)
	}

	return Statement{SQL: sql.String(), Args: r.args}, nil
}

// Count renders the count query of q. Joined counts are distinct on the primary key.
func (d Dialect) Count(q *Query) (Statement, error) {
	r := &renderer{dialect: d, root: q.Schema}
	root := q.Schema.Table

	var sql strings.Builder
	if q.FilterJoins.Empty() {
		fmt.Fprintf(&sql, "SELECT COUNT(*) FROM %s", root)
	} else {
		joins, err := r.joins(q.FilterJoins)
		if err != nil {
			return Statement{}, err
		}
		fmt.Fprintf(&sql, "SELECT COUNT(DISTINCT %s.%s) FROM %s%s", root, q.Schema.PrimaryKey, root, joins)
	}

	if q.Condition != nil {
		cond, err := r.expr(q.Condition)
		if err != nil {
			return Statement{}, err
		}
		sql.WriteString(" WHERE ")
		sql.WriteString(cond)
	}
	return Statement{SQL: sql.String(), Args: r.args}, nil
}

// SelectIn renders SELECT * FROM table WHERE column IN values ORDER BY orderBy, as used
// by batched eager loading
func (d Dialect) SelectIn(table, column, orderBy string, values []interface{}) Statement {
	r := &renderer{dialect: d}
	var cond string
	switch {
	case len(values) == 0:
		cond = "FALSE"
	case d == Postgres:
		r.args = append(r.args, inferArray(values))
		cond = fmt.Sprintf("%s = ANY(%s)", column, d.Placeholder(len(r.args)))
	default:
		placeholders := make([]string, len(values))
		for i, v := range values {
			r.args = append(r.args, v)
			placeholders[i] = d.Placeholder(len(r.args))
		}
		cond = fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
	}

	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s", table, cond)
	if orderBy != "" {
		sql += " ORDER BY " + orderBy
	}
	return Statement{SQL: sql, Args: r.args}
}

// renderer accumulates bind arguments while rendering one statement
type renderer struct {
	dialect Dialect
	root    *schema.Schema
	args    []interface{}
}

func (r *renderer) bind(v interface{}, kind schema.ValueKind) string {
	r.args = append(r.args, r.dialect.value(v, kind))
	return r.dialect.Placeholder(len(r.args))
}

// sqliteTimeLayout matches strftime('%Y-%m-%d %H:%M:%f') so bound timestamps compare
// as text against normalized columns
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

// value adapts a bound value to the driver. SQLite stores dates and timestamps as text.
func (d Dialect) value(v interface{}, kind schema.ValueKind) interface{} {
	t, ok := v.(time.Time)
	if !ok || d != SQLite {
		return v
	}
	if kind == schema.KindDate {
		return t.UTC().Format(dateLayout)
	}
	return t.UTC().Format(sqliteTimeLayout)
}

// column renders a predicate column for comparison. SQLite keeps temporal values as
// text in whatever form the writer chose ("2024-01-01 10:00:00+00:00" from the driver,
// "2024-01-01T10:00:00Z" from hand-written SQL), so they are normalized to UTC first.
func (d Dialect) column(col string, kind schema.ValueKind) string {
	if d != SQLite {
		return col
	}
	switch kind {
	case schema.KindDate:
		return "date(" + col + ")"
	case schema.KindDateTime:
		return "strftime('%Y-%m-%d %H:%M:%f', " + col + ")"
	default:
		return col
	}
}

// alias returns the table alias of an association path
func (r *renderer) alias(path []string) string {
	if len(path) == 0 {
		return r.root.Table
	}
	return strings.Join(path, "__")
}

// schemaAt walks an association path from the root schema
func (r *renderer) schemaAt(path []string) (*schema.Schema, error) {
	current := r.root
	for _, name := range path {
		assoc, ok := current.Association(name)
		if !ok || assoc.TargetSchema() == nil {
			return nil, fmt.Errorf("%s has no resolved association %s", current.Name, name)
		}
		current = assoc.TargetSchema()
	}
	return current, nil
}

// hop renders the join of the last association of path to its parent
func (r *renderer) hop(path []string) (table, alias, on string, err error) {
	parentPath := path[:len(path)-1]
	parent, err := r.schemaAt(parentPath)
	if err != nil {
		return "", "", "", err
	}
	name := path[len(path)-1]
	assoc, ok := parent.Association(name)
	if !ok || assoc.TargetSchema() == nil {
		return "", "", "", fmt.Errorf("%s has no resolved association %s", parent.Name, name)
	}
	target := assoc.TargetSchema()
	source := r.alias(parentPath)
	alias = r.alias(path)

	if assoc.Kind == schema.BelongsTo {
		on = fmt.Sprintf("%s.%s = %s.%s", alias, target.PrimaryKey, source, assoc.ForeignKey)
	} else {
		on = fmt.Sprintf("%s.%s = %s.%s", alias, assoc.ForeignKey, source, parent.PrimaryKey)
	}
	return target.Table, alias, on, nil
}

// joins renders LEFT JOINs for every path of the join spec, parents first
func (r *renderer) joins(spec JoinSpec) (string, error) {
	var b strings.Builder
	for _, path := range spec.Paths() {
		table, alias, on, err := r.hop(path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " LEFT JOIN %s AS %s ON %s", table, alias, on)
	}
	return b.String(), nil
}

func (r *renderer) expr(e Expr) (string, error) {
	switch n := e.(type) {
	case *Predicate:
		return r.predicate(n)
	case *And:
		return r.group(n.Children, " AND ")
	case *Or:
		return r.group(n.Children, " OR ")
	case *Not:
		inner, err := r.expr(n.Child)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	default:
		return "", fmt.Errorf("unsupported expression %T", e)
	}
}

func (r *renderer) group(children []Expr, sep string) (string, error) {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		part, err := r.expr(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (r *renderer) predicate(p *Predicate) (string, error) {
	col := r.alias(p.Path) + "." + p.Column
	if p.Operator != OpIsNull && p.Operator != OpIsNotNull {
		col = r.dialect.column(col, p.Kind)
	}

	switch p.Operator {
	case OpEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		return fmt.Sprintf("%s %s %s", col, p.Operator, r.bind(p.Value, p.Kind)), nil
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", col, p.Operator), nil
	case OpLike:
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, col, r.bind(p.Value, p.Kind)), nil
	case OpBetween:
		bounds, ok := p.Value.([]interface{})
		if !ok || len(bounds) != 2 {
			return "", fmt.Errorf("between on %s needs two bounds", col)
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, r.bind(bounds[0], p.Kind), r.bind(bounds[1], p.Kind)), nil
	case OpIn:
		values, ok := p.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("in on %s needs a list", col)
		}
		if len(values) == 0 {
			return "FALSE", nil
		}
		if r.dialect == Postgres {
			r.args = append(r.args, pgArray(values, p.Kind))
			return fmt.Sprintf("%s = ANY(%s)", col, r.dialect.Placeholder(len(r.args))), nil
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = r.bind(v, p.Kind)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), nil
	default:
		return "", fmt.Errorf("unsupported operator %s", p.Operator)
	}
}

// orderBy renders the ORDER BY list. Orders through associations become correlated
// scalar subqueries (MIN for asc, MAX for desc) so they never multiply root rows.
// The primary key is appended as a tie breaker.
func (r *renderer) orderBy(q *Query) (string, error) {
	root := q.Schema.Table
	pk := root + "." + q.Schema.PrimaryKey

	if q.Page.Strategy == schema.PaginateCursor {
		if q.Page.Backward() {
			return pk + " DESC", nil
		}
		return pk + " ASC", nil
	}

	var parts []string
	hasPK := false
	for _, o := range q.Orders {
		dir := strings.ToUpper(string(o.Direction))
		if len(o.Path) == 0 {
			parts = append(parts, fmt.Sprintf("%s.%s %s", root, o.Column, dir))
			if o.Column == q.Schema.PrimaryKey {
				hasPK = true
			}
			continue
		}
		sub, err := r.orderSubquery(o)
		if err != nil {
			return "", err
		}
		parts = append(parts, sub+" "+dir)
	}
	if !hasPK {
		parts = append(parts, pk+" ASC")
	}
	return strings.Join(parts, ", "), nil
}

func (r *renderer) orderSubquery(o Order) (string, error) {
	agg := "MIN"
	if o.Direction == Desc {
		agg = "MAX"
	}

	table, alias, correlation, err := r.hop(o.Path[:1])
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "(SELECT %s(%s.%s) FROM %s AS %s", agg, r.alias(o.Path), o.Column, table, alias)
	for i := 2; i <= len(o.Path); i++ {
		table, alias, on, err := r.hop(o.Path[:i])
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " LEFT JOIN %s AS %s ON %s", table, alias, on)
	}
	fmt.Fprintf(&b, " WHERE %s)", correlation)
	return b.String(), nil
}

// pgArray builds a typed array argument for col = ANY($n)
func pgArray(values []interface{}, kind schema.ValueKind) interface{} {
	switch kind {
	case schema.KindInteger:
		out := make([]int64, 0, len(values))
		for _, v := range values {
			if n, ok := v.(int64); ok {
				out = append(out, n)
			}
		}
		return pq.Array(out)
	case schema.KindDecimal:
		out := make([]float64, 0, len(values))
		for _, v := range values {
			if f, ok := v.(float64); ok {
				out = append(out, f)
			}
		}
		return pq.Array(out)
	case schema.KindBoolean:
		out := make([]bool, 0, len(values))
		for _, v := range values {
			if b, ok := v.(bool); ok {
				out = append(out, b)
			}
		}
		return pq.Array(out)
	case schema.KindDate, schema.KindDateTime:
		out := make([]string, 0, len(values))
		for _, v := range values {
			if t, ok := v.(time.Time); ok {
				if kind == schema.KindDate {
					out = append(out, t.Format(dateLayout))
				} else {
					out = append(out, t.Format(time.RFC3339Nano))
				}
			}
		}
		return pq.Array(out)
	default:
		out := make([]string, 0, len(values))
		for _, v := range values {
			out = append(out, fmt.Sprint(v))
		}
		return pq.Array(out)
	}
}

// inferArray builds an array argument from driver values of unknown kind
func inferArray(values []interface{}) interface{} {
	ints := make([]int64, 0, len(values))
	strs := make([]string, 0, len(values))
	for _, v := range values {
		switch t := v.(type) {
		case int64:
			ints = append(ints, t)
		case int:
			ints = append(ints, int64(t))
		case string:
			strs = append(strs, t)
		case []byte:
			strs = append(strs, string(t))
		default:
			strs = append(strs, fmt.Sprint(t))
		}
	}
	if len(ints) == len(values) {
		return pq.Array(ints)
	}
	if len(strs) == len(values) {
		return pq.Array(strs)
	}
	return pq.Array(values)
}
