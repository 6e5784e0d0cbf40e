package query

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// DefaultMaxDepth bounds how many associations a filter, sort or include may traverse
const DefaultMaxDepth = 8

// Options configure the compiler
type Options struct {
	// StrictNull omits IS NULL conditions on non-nullable attributes instead of keeping them
	StrictNull bool
	// MaxDepth bounds association traversal; zero means DefaultMaxDepth
	MaxDepth int
	// OperatorAliases maps alternative operator spellings to canonical operators
	OperatorAliases map[string]string
}

// DefaultOptions returns permissive null handling, DefaultMaxDepth and the default aliases
func DefaultOptions() Options {
	aliases := make(map[string]string, len(DefaultOperatorAliases))
	for k, v := range DefaultOperatorAliases {
		aliases[k] = v
	}
	return Options{MaxDepth: DefaultMaxDepth, OperatorAliases: aliases}
}

// Observer receives compile and execute events, e.g. for metrics
type Observer interface {
	ObserveCompile(resource string, issues Issues, elapsed time.Duration)
	ObserveExecute(resource, strategy string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveCompile(string, Issues, time.Duration)        {}
func (nopObserver) ObserveExecute(string, string, time.Duration, error) {}

// Query is the compiled, validated description of one request, ready for an executor
type Query struct {
	Resource string
	Schema   *schema.Schema

	Condition   Expr
	FilterJoins JoinSpec
	SortJoins   JoinSpec
	Orders      []Order

	// Distinct is set when filter joins may multiply root rows
	Distinct bool

	Includes IncludeTree
	Page     Window
}

// Joins returns every join the query needs
func (q *Query) Joins() JoinSpec {
	return q.FilterJoins.Merge(q.SortJoins)
}

// Compiler compiles request parameters against a sealed schema registry.
// A Compiler holds no per-request state and is safe for concurrent use.
type Compiler struct {
	registry *schema.Registry
	opts     Options
	logger   *zap.Logger
	observer Observer
}

// NewCompiler creates a compiler. A nil logger disables logging.
func NewCompiler(registry *schema.Registry, opts Options, logger *zap.Logger) *Compiler {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{
		registry: registry,
		opts:     opts,
		logger:   logger,
		observer: nopObserver{},
	}
}

// SetObserver installs an observer for compile events
func (c *Compiler) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	c.observer = o
}

// Options returns the compiler options
func (c *Compiler) Options() Options {
	return c.opts
}

// Registry returns the schema registry the compiler reads
func (c *Compiler) Registry() *schema.Registry {
	return c.registry
}

// Compile compiles params for the named resource. The error is reserved for
// infrastructure problems (unknown resource, unsealed registry); validation problems are
// returned as Issues next to a best-effort query.
func (c *Compiler) Compile(resource string, params Params, rc schema.RequestContext) (*Query, Issues, error) {
	s, err := c.registry.Lookup(resource)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile query: %w", err)
	}
	q, issues := c.CompileSchema(s, params, rc)
	return q, issues, nil
}

// CompileSchema compiles params against s
func (c *Compiler) CompileSchema(s *schema.Schema, params Params, rc schema.RequestContext) (*Query, Issues) {
	start := time.Now()
	issues := NewCollector()

	condition, filterJoins := c.CompileFilter(s, params.Filter, rc, issues)
	orders, sortJoins := c.CompileSort(s, params.Sort, issues)

	strategy := StrategyFor(s)
	window := strategy.Window(s, params.Page, issues)

	sortSpec := params.Sort
	if strategy.Kind() == schema.PaginateCursor && params.Sort != nil {
		issues.Addf(CodeSortNotSupported, Path{"sort"}, map[string]interface{}{"strategy": "cursor"},
			"%s uses cursor pagination and is always ordered by %s", s.Name, s.PrimaryKey)
		orders, sortJoins, sortSpec = nil, JoinSpec{}, nil
	}

	includes := c.ResolveIncludes(s, params.Filter, sortSpec, params.Include, issues)

	q := &Query{
		Resource:    s.Name,
		Schema:      s,
		Condition:   condition,
		FilterJoins: filterJoins,
		SortJoins:   sortJoins,
		Orders:      orders,
		Distinct:    !filterJoins.Empty(),
		Includes:    includes,
		Page:        window,
	}

	result := issues.Issues()
	elapsed := time.Since(start)
	c.observer.ObserveCompile(s.Name, result, elapsed)
	c.logger.Debug("compiled query",
		zap.String("resource", s.Name),
		zap.String("joins", q.Joins().String()),
		zap.String("includes", includes.String()),
		zap.Int("orders", len(orders)),
		zap.Int("issues", len(result)),
		zap.Duration("elapsed", elapsed),
	)
	return q, result
}

// canonicalOperator resolves configured aliases
func (c *Compiler) canonicalOperator(name string) FilterOp {
	if canonical, ok := c.opts.OperatorAliases[name]; ok && canonical != "" {
		return FilterOp(canonical)
	}
	return FilterOp(name)
}
