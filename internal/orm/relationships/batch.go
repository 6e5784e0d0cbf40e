package relationships

import (
	"context"
	"fmt"
	"strconv"

	"github.com/conduit-lang/querykit/internal/orm/query"
	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// loadBelongsTo loads belongs-to associations using a batched IN query
// Example: Invoice belongs_to Customer
//   - Collect all unique customer_ids from invoices
//   - Single query: SELECT * FROM customers WHERE id = ANY($1)
//   - Map customers back to invoices
func (l *Loader) loadBelongsTo(
	ctx context.Context,
	target *schema.Schema,
	assoc *schema.Association,
	records []query.Record,
	lc *LoadContext,
) error {
	ids, err := uniqueValues(records, assoc.ForeignKey)
	if err != nil {
		return fmt.Errorf("invalid foreign key %s: %w", assoc.ForeignKey, err)
	}
	if len(ids) == 0 {
		for _, record := range records {
			record[assoc.Name] = nil
		}
		return nil
	}

	results, err := l.fetch(ctx, target, target.PrimaryKey, ids, lc)
	if err != nil {
		return err
	}

	related := make(map[string]query.Record, len(results))
	for _, result := range results {
		key, err := idToString(result[target.PrimaryKey])
		if err != nil {
			return fmt.Errorf("invalid ID type in results: %w", err)
		}
		related[key] = result
	}

	for _, record := range records {
		record[assoc.Name] = nil
		if record[assoc.ForeignKey] == nil {
			continue
		}
		key, err := idToString(record[assoc.ForeignKey])
		if err != nil {
			return fmt.Errorf("invalid foreign key value: %w", err)
		}
		if match, ok := related[key]; ok {
			record[assoc.Name] = match
		}
	}
	return nil
}

// loadHasMany loads has-many associations using a batched IN query
// Example: Invoice has_many LineItem
//   - Collect all invoice IDs
//   - Single query: SELECT * FROM line_items WHERE invoice_id = ANY($1) ORDER BY id
//   - Group line items by invoice_id and attach them
func (l *Loader) loadHasMany(
	ctx context.Context,
	owner, target *schema.Schema,
	assoc *schema.Association,
	records []query.Record,
	lc *LoadContext,
) error {
	grouped, err := l.fetchChildren(ctx, owner, target, assoc, records, lc)
	if err != nil {
		return err
	}

	// Always attach a slice, never nil
	for _, record := range records {
		key, err := idToString(record[owner.PrimaryKey])
		if err != nil {
			return fmt.Errorf("invalid parent record ID: %w", err)
		}
		if children, ok := grouped[key]; ok {
			record[assoc.Name] = children
		} else {
			record[assoc.Name] = []query.Record{}
		}
	}
	return nil
}

// loadHasOne loads has-one associations; the child with the lowest primary key wins
func (l *Loader) loadHasOne(
	ctx context.Context,
	owner, target *schema.Schema,
	assoc *schema.Association,
	records []query.Record,
	lc *LoadContext,
) error {
	grouped, err := l.fetchChildren(ctx, owner, target, assoc, records, lc)
	if err != nil {
		return err
	}

	for _, record := range records {
		record[assoc.Name] = nil
		key, err := idToString(record[owner.PrimaryKey])
		if err != nil {
			return fmt.Errorf("invalid parent record ID: %w", err)
		}
		if children := grouped[key]; len(children) > 0 {
			record[assoc.Name] = children[0]
		}
	}
	return nil
}

// fetchChildren loads the rows pointing at records through the association foreign key,
// grouped by parent key
func (l *Loader) fetchChildren(
	ctx context.Context,
	owner, target *schema.Schema,
	assoc *schema.Association,
	records []query.Record,
	lc *LoadContext,
) (map[string][]query.Record, error) {
	parentIDs, err := uniqueValues(records, owner.PrimaryKey)
	if err != nil {
		return nil, fmt.Errorf("invalid parent ID type: %w", err)
	}
	grouped := make(map[string][]query.Record)
	if len(parentIDs) == 0 {
		return grouped, nil
	}

	results, err := l.fetch(ctx, target, assoc.ForeignKey, parentIDs, lc)
	if err != nil {
		return nil, err
	}
	for _, result := range results {
		key, err := idToString(result[assoc.ForeignKey])
		if err != nil {
			return nil, fmt.Errorf("invalid parent ID in results: %w", err)
		}
		grouped[key] = append(grouped[key], result)
	}
	return grouped, nil
}

// fetch runs one batched SELECT against the target table
func (l *Loader) fetch(ctx context.Context, target *schema.Schema, column string, values []interface{}, lc *LoadContext) ([]query.Record, error) {
	stmt := l.dialect.SelectIn(target.Table, column, target.PrimaryKey, values)
	lc.queries++

	rows, err := l.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", target.Table, err)
	}
	defer rows.Close()

	results, err := query.ScanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", target.Table, err)
	}
	return results, nil
}

// uniqueValues collects the distinct non-nil values of column, in first-seen order
func uniqueValues(records []query.Record, column string) ([]interface{}, error) {
	var values []interface{}
	seen := make(map[string]bool)
	for _, record := range records {
		value := record[column]
		if value == nil {
			continue
		}
		key, err := idToString(value)
		if err != nil {
			return nil, err
		}
		if !seen[key] {
			seen[key] = true
			values = append(values, value)
		}
	}
	return values, nil
}

// idToString normalizes key values so int64 7 from one table matches int64 7 from another
func idToString(id interface{}) (string, error) {
	switch v := id.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrInvalidKey, id)
	}
}
