package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// FilterOp is an operator name as written by the client
type FilterOp string

const (
	FilterEq         FilterOp = "eq"
	FilterGt         FilterOp = "gt"
	FilterGte        FilterOp = "gte"
	FilterLt         FilterOp = "lt"
	FilterLte        FilterOp = "lte"
	FilterBetween    FilterOp = "between"
	FilterIn         FilterOp = "in"
	FilterContains   FilterOp = "contains"
	FilterStartsWith FilterOp = "starts_with"
	FilterEndsWith   FilterOp = "ends_with"
	FilterNull       FilterOp = "null"
)

var (
	stringOperators  = []FilterOp{FilterEq, FilterIn, FilterContains, FilterStartsWith, FilterEndsWith, FilterNull}
	orderedOperators = []FilterOp{FilterEq, FilterGt, FilterGte, FilterLt, FilterLte, FilterBetween, FilterIn, FilterNull}
	booleanOperators = []FilterOp{FilterEq}
	uuidOperators    = []FilterOp{FilterEq, FilterIn, FilterNull}
)

// grammar maps every supported value kind to the operators it accepts
var grammar = map[schema.ValueKind][]FilterOp{
	schema.KindString:   stringOperators,
	schema.KindInteger:  orderedOperators,
	schema.KindDecimal:  orderedOperators,
	schema.KindDate:     orderedOperators,
	schema.KindDateTime: orderedOperators,
	schema.KindBoolean:  booleanOperators,
	schema.KindUUID:     uuidOperators,
}

// AllowedOperators returns the operators a value kind accepts. The second result is
// false for kinds outside the closed set.
func AllowedOperators(kind schema.ValueKind) ([]FilterOp, bool) {
	ops, ok := grammar[kind]
	if !ok {
		return nil, false
	}
	out := make([]FilterOp, len(ops))
	copy(out, ops)
	return out, true
}

// Allows reports whether op is part of the kind's grammar
func Allows(kind schema.ValueKind, op FilterOp) bool {
	for _, allowed := range grammar[kind] {
		if allowed == op {
			return true
		}
	}
	return false
}

func operatorNames(ops []FilterOp) []string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = string(op)
	}
	sort.Strings(names)
	return names
}

// DefaultOperatorAliases are the alternative operator spellings accepted out of the box
var DefaultOperatorAliases = map[string]string{
	"equals":       "eq",
	"greater_than": "gt",
	"less_than":    "lt",
	"like":         "contains",
	"prefix":       "starts_with",
	"suffix":       "ends_with",
	"is_null":      "null",
}

const (
	dateLayout = "2006-01-02"
)

var (
	errNotString  = errors.New("expected a string")
	errNotNumber  = errors.New("expected a number")
	errNotInteger = errors.New("expected an integer")
	errNotBoolean = errors.New("expected a boolean")
	errNotScalar  = errors.New("expected a scalar value")
)

// parseOperand converts a client literal into the Go value bound for the kind.
// Dates and datetimes become time.Time in UTC; uuids are canonicalized.
func parseOperand(kind schema.ValueKind, raw interface{}) (interface{}, error) {
	switch kind {
	case schema.KindString:
		return parseString(raw)
	case schema.KindInteger:
		return parseInteger(raw)
	case schema.KindDecimal:
		return parseDecimal(raw)
	case schema.KindBoolean:
		return parseBoolean(raw)
	case schema.KindDate:
		t, _, err := parseTemporal(raw)
		if err != nil {
			return nil, err
		}
		return startOfDay(t), nil
	case schema.KindDateTime:
		t, _, err := parseTemporal(raw)
		return t, err
	case schema.KindUUID:
		s, ok := raw.(string)
		if !ok {
			return nil, errNotString
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	default:
		return nil, fmt.Errorf("unsupported value kind %s", kind)
	}
}

func parseString(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case int, int64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", errNotString
	}
}

func parseInteger(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, errNotInteger
		}
		return n, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errNotInteger
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errNotInteger
		}
		return n, nil
	default:
		return 0, errNotInteger
	}
}

func parseDecimal(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, errNotNumber
		}
		return f, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errNotNumber
		}
		return f, nil
	default:
		return 0, errNotNumber
	}
}

func parseBoolean(raw interface{}) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "1":
			return true, nil
		case "false", "f", "0":
			return false, nil
		}
	case json.Number:
		switch v.String() {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	}
	return false, errNotBoolean
}

// parseTemporal accepts RFC 3339 timestamps, "2006-01-02 15:04:05" and plain dates.
// dateOnly is true when the literal carried no time of day.
func parseTemporal(raw interface{}) (t time.Time, dateOnly bool, err error) {
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false, errNotString
	}
	s = strings.TrimSpace(s)

	if parsed, perr := time.Parse(dateLayout, s); perr == nil {
		return parsed.UTC(), true, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if parsed, perr := time.Parse(layout, s); perr == nil {
			return parsed.UTC(), false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%q is not a date or timestamp", s)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

// parseNullFlag reads the operand of the null operator
func parseNullFlag(raw interface{}) (bool, error) {
	if raw == nil {
		return true, nil
	}
	return parseBoolean(raw)
}

// isScalar reports whether a literal is a JSON scalar
func isScalar(v interface{}) bool {
	switch v.(type) {
	case string, json.Number, bool, int, int64, float64:
		return true
	default:
		return false
	}
}

// escapeLike escapes the LIKE metacharacters; patterns are rendered with ESCAPE '\'
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
