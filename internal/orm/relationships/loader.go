package relationships

import (
	"context"
	"fmt"

	"github.com/conduit-lang/querykit/internal/orm/query"
	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// Load eager-loads tree into records. It implements query.RelationshipLoader.
func (l *Loader) Load(ctx context.Context, s *schema.Schema, records []query.Record, tree query.IncludeTree) error {
	if len(records) == 0 || len(tree) == 0 {
		return nil
	}
	return l.LoadWithContext(ctx, s, records, tree, NewLoadContext(l.maxDepth))
}

// LoadWithContext loads tree level by level, tracking depth in lc
func (l *Loader) LoadWithContext(
	ctx context.Context,
	s *schema.Schema,
	records []query.Record,
	tree query.IncludeTree,
	lc *LoadContext,
) error {
	if len(records) == 0 || len(tree) == 0 {
		return nil
	}

	if err := lc.IncrementDepth(); err != nil {
		return err
	}
	defer lc.DecrementDepth()

	for _, name := range tree.Names() {
		assoc, ok := s.Association(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, s.Name, name)
		}
		target := assoc.TargetSchema()
		if target == nil {
			return fmt.Errorf("%w: %s.%s", ErrUnresolvedTarget, s.Name, name)
		}

		if err := l.loadAssociation(ctx, s, target, assoc, records, lc); err != nil {
			return fmt.Errorf("failed to load relationship %s: %w", name, err)
		}

		nested := tree[name]
		if len(nested) == 0 {
			continue
		}
		children := extractNestedRecords(records, assoc, target)
		if err := l.LoadWithContext(ctx, target, children, nested, lc); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) loadAssociation(
	ctx context.Context,
	owner, target *schema.Schema,
	assoc *schema.Association,
	records []query.Record,
	lc *LoadContext,
) error {
	switch assoc.Kind {
	case schema.BelongsTo:
		return l.loadBelongsTo(ctx, target, assoc, records, lc)
	case schema.HasOne:
		return l.loadHasOne(ctx, owner, target, assoc, records, lc)
	case schema.HasMany:
		return l.loadHasMany(ctx, owner, target, assoc, records, lc)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownRelationship, assoc.Kind)
	}
}

// extractNestedRecords collects the loaded children of every record, once per primary key
func extractNestedRecords(records []query.Record, assoc *schema.Association, target *schema.Schema) []query.Record {
	var nested []query.Record
	seen := make(map[string]bool)

	add := func(child query.Record) {
		key, err := idToString(child[target.PrimaryKey])
		if err != nil || seen[key] {
			return
		}
		seen[key] = true
		nested = append(nested, child)
	}

	for _, record := range records {
		switch data := record[assoc.Name].(type) {
		case query.Record:
			add(data)
		case []query.Record:
			for _, child := range data {
				add(child)
			}
		}
	}
	return nested
}
