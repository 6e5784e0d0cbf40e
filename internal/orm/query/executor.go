package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// Record is one row keyed by column name. Eager-loaded associations are attached under
// the association name as a Record, a []Record or nil.
type Record map[string]interface{}

// Querier is an interface for executing SQL queries, allowing for testing and instrumentation
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// RelationshipLoader eager-loads an include tree into records
type RelationshipLoader interface {
	Load(ctx context.Context, s *schema.Schema, records []Record, tree IncludeTree) error
}

// CountCache caches row counts by count statement
type CountCache interface {
	Lookup(ctx context.Context, stmt Statement) (int64, bool)
	Store(ctx context.Context, stmt Statement, count int64)
}

// Result is one executed page
type Result struct {
	Records  []Record    `json:"data"`
	Page     PageMeta    `json:"page"`
	Includes IncludeTree `json:"-"`
}

// Executor runs compiled queries against a SQL database
type Executor struct {
	db       Querier
	dialect  Dialect
	loader   RelationshipLoader
	counts   CountCache
	logger   *zap.Logger
	observer Observer
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithLoader eager-loads include trees with the given loader
func WithLoader(loader RelationshipLoader) ExecutorOption {
	return func(e *Executor) { e.loader = loader }
}

// WithCountCache caches offset pagination counts
func WithCountCache(cache CountCache) ExecutorOption {
	return func(e *Executor) { e.counts = cache }
}

// WithLogger sets the executor logger
func WithLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver reports executions to o
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewExecutor creates an executor for db rendering SQL in the given dialect
func NewExecutor(db Querier, dialect Dialect, opts ...ExecutorOption) *Executor {
	e := &Executor{
		db:       db,
		dialect:  dialect,
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dialect returns the SQL dialect of the executor
func (e *Executor) Dialect() Dialect {
	return e.dialect
}

// Execute runs q and returns the page of records with its metadata
func (e *Executor) Execute(ctx context.Context, q *Query) (*Result, error) {
	start := time.Now()
	strategy := StrategyFor(q.Schema)

	result, err := e.execute(ctx, q, strategy)

	elapsed := time.Since(start)
	e.observer.ObserveExecute(q.Resource, strategy.Kind().String(), elapsed, err)
	if err != nil {
		e.logger.Error("query failed",
			zap.String("resource", q.Resource),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}
	e.logger.Debug("query executed",
		zap.String("resource", q.Resource),
		zap.String("strategy", strategy.Kind().String()),
		zap.Int("records", len(result.Records)),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (e *Executor) execute(ctx context.Context, q *Query, strategy Strategy) (*Result, error) {
	records := []Record{}
	if !q.Page.Empty {
		stmt, err := e.dialect.Select(q)
		if err != nil {
			return nil, fmt.Errorf("failed to render query for %s: %w", q.Resource, err)
		}
		e.logger.Debug("executing query", zap.String("sql", stmt.SQL), zap.Int("args", len(stmt.Args)))

		rows, err := e.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", q.Resource, err)
		}
		defer rows.Close()

		records, err = scanRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", q.Resource, err)
		}
	}

	var count int64
	if strategy.Kind() == schema.PaginateOffset {
		var err error
		count, err = e.Count(ctx, q)
		if err != nil {
			return nil, err
		}
	}

	records, meta, err := strategy.Finish(q.Schema, q.Page, records, count)
	if err != nil {
		return nil, fmt.Errorf("failed to paginate %s: %w", q.Resource, err)
	}

	if e.loader != nil && len(q.Includes) > 0 && len(records) > 0 {
		if err := e.loader.Load(ctx, q.Schema, records, q.Includes); err != nil {
			return nil, fmt.Errorf("failed to load includes of %s: %w", q.Resource, err)
		}
	}

	return &Result{Records: records, Page: meta, Includes: q.Includes}, nil
}

// Count returns the number of rows matching the query condition, ignoring pagination
func (e *Executor) Count(ctx context.Context, q *Query) (int64, error) {
	stmt, err := e.dialect.Count(q)
	if err != nil {
		return 0, fmt.Errorf("failed to render count for %s: %w", q.Resource, err)
	}

	if e.counts != nil {
		if n, ok := e.counts.Lookup(ctx, stmt); ok {
			return n, nil
		}
	}

	var count int64
	if err := e.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.Resource, err)
	}

	if e.counts != nil {
		e.counts.Store(ctx, stmt, count)
	}
	return count, nil
}

// ScanRows scans every row into a Record
func ScanRows(rows *sql.Rows) ([]Record, error) {
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []Record{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		record := make(Record, len(columns))
		for i, col := range columns {
			// Handle []byte conversion to string for text fields
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		results = append(results, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
