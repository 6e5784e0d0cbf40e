package query

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/querykit/internal/orm/schema"
)

// ErrInvalidCursor is returned when a cursor token cannot be decoded
var ErrInvalidCursor = errors.New("invalid cursor")

// Window is the compiled pagination of one request
type Window struct {
	Strategy schema.PaginationStrategy
	Size     int

	// offset strategy
	Number int
	Offset int

	// cursor strategy; a boundary is the primary key value decoded from a token
	After  interface{}
	Before interface{}

	// Empty is set when the page can match no rows, e.g. after a bad cursor
	Empty bool
}

// HasBoundary reports whether a cursor boundary was supplied
func (w Window) HasBoundary() bool {
	return w.After != nil || w.Before != nil
}

// Backward reports whether the page is fetched before a boundary
func (w Window) Backward() bool {
	return w.Before != nil
}

// Limit returns the number of rows the executor should fetch
func (w Window) Limit() int {
	if w.Strategy == schema.PaginateCursor {
		return w.Size + 1
	}
	return w.Size
}

// PageMeta is the pagination metadata returned with a page of results
type PageMeta struct {
	Strategy schema.PaginationStrategy

	Current int
	Next    *int
	Prev    *int
	Total   int   // pages
	Items   int64 // rows

	NextCursor *string
	PrevCursor *string
}

type offsetMetaJSON struct {
	Current int   `json:"current"`
	Next    *int  `json:"next"`
	Prev    *int  `json:"prev"`
	Total   int   `json:"total"`
	Items   int64 `json:"items"`
}

type cursorMetaJSON struct {
	NextCursor *string `json:"next_cursor"`
	PrevCursor *string `json:"prev_cursor"`
}

// MarshalJSON renders the strategy specific shape
func (m PageMeta) MarshalJSON() ([]byte, error) {
	if m.Strategy == schema.PaginateCursor {
		return json.Marshal(cursorMetaJSON{NextCursor: m.NextCursor, PrevCursor: m.PrevCursor})
	}
	return json.Marshal(offsetMetaJSON{
		Current: m.Current,
		Next:    m.Next,
		Prev:    m.Prev,
		Total:   m.Total,
		Items:   m.Items,
	})
}

// Strategy is a pagination implementation. Filter, sort and include compilation do not
// depend on which strategy is active.
type Strategy interface {
	// Kind returns the strategy identifier
	Kind() schema.PaginationStrategy
	// Window validates the page parameter
	Window(s *schema.Schema, page interface{}, issues *Collector) Window
	// Finish trims the fetched rows and builds the page metadata. count is the total
	// number of matching rows and is only used by strategies that need it.
	Finish(s *schema.Schema, w Window, records []Record, count int64) ([]Record, PageMeta, error)
}

// StrategyFor returns the strategy configured on the schema
func StrategyFor(s *schema.Schema) Strategy {
	if s.Pagination.Strategy == schema.PaginateCursor {
		return CursorStrategy{}
	}
	return OffsetStrategy{}
}

// OffsetStrategy paginates with page number and size
type OffsetStrategy struct{}

// Kind implements Strategy
func (OffsetStrategy) Kind() schema.PaginationStrategy { return schema.PaginateOffset }

// Window implements Strategy
func (OffsetStrategy) Window(s *schema.Schema, page interface{}, issues *Collector) Window {
	w := Window{Strategy: schema.PaginateOffset, Number: 1, Size: defaultSize(s)}

	m, ok := pageObject(page, issues)
	if !ok {
		return w
	}

	for _, key := range m.Keys() {
		value, _ := m.Get(key)
		switch key {
		case "number":
			if n, ok := pageInteger(value, Path{"page", "number"}, issues); ok {
				w.Number = n
			}
		case "size":
			if n, ok := pageInteger(value, Path{"page", "size"}, issues); ok {
				w.Size = capSize(s, n)
			}
		default:
			issues.Addf(CodeInvalidPage, Path{"page", key}, map[string]interface{}{"allowed": []string{"number", "size"}},
				"%s is not a page parameter of offset pagination", key)
		}
	}

	w.Offset = (w.Number - 1) * w.Size
	return w
}

// Finish implements Strategy
func (OffsetStrategy) Finish(_ *schema.Schema, w Window, records []Record, count int64) ([]Record, PageMeta, error) {
	return records, OffsetMeta(w.Number, w.Size, count), nil
}

// OffsetMeta computes the offset page metadata for a total row count
func OffsetMeta(number, size int, count int64) PageMeta {
	meta := PageMeta{Strategy: schema.PaginateOffset, Current: number, Items: count}
	if size > 0 {
		meta.Total = int((count + int64(size) - 1) / int64(size))
	}
	if number < meta.Total {
		next := number + 1
		meta.Next = &next
	}
	if number > 1 {
		prev := number - 1
		meta.Prev = &prev
	}
	return meta
}

// CursorStrategy paginates by primary key with opaque after/before tokens
type CursorStrategy struct{}

// Kind implements Strategy
func (CursorStrategy) Kind() schema.PaginationStrategy { return schema.PaginateCursor }

// Window implements Strategy
func (CursorStrategy) Window(s *schema.Schema, page interface{}, issues *Collector) Window {
	w := Window{Strategy: schema.PaginateCursor, Size: defaultSize(s)}

	m, ok := pageObject(page, issues)
	if !ok {
		return w
	}

	var after, before interface{}
	for _, key := range m.Keys() {
		value, _ := m.Get(key)
		switch key {
		case "size":
			if n, ok := pageInteger(value, Path{"page", "size"}, issues); ok {
				w.Size = capSize(s, n)
			}
		case "after":
			after = value
		case "before":
			before = value
		default:
			issues.Addf(CodeInvalidPage, Path{"page", key}, map[string]interface{}{"allowed": []string{"after", "before", "size"}},
				"%s is not a page parameter of cursor pagination", key)
		}
	}

	if after != nil && before != nil {
		issues.Add(CodeInvalidPage, Path{"page"}, "after and before are mutually exclusive", nil)
		return w
	}

	decode := func(key string, token interface{}) interface{} {
		str, ok := token.(string)
		if !ok {
			issues.Addf(CodeInvalidCursor, Path{"page", key}, nil, "cursor must be a string")
			w.Empty = true
			return nil
		}
		boundary, err := DecodeCursor(s, str)
		if err != nil {
			issues.Addf(CodeInvalidCursor, Path{"page", key}, nil, "%v", err)
			w.Empty = true
			return nil
		}
		return boundary
	}

	switch {
	case after != nil:
		w.After = decode("after", after)
	case before != nil:
		w.Before = decode("before", before)
	}
	return w
}

// Finish implements Strategy. records holds up to Size+1 rows in fetch order.
func (CursorStrategy) Finish(s *schema.Schema, w Window, records []Record, _ int64) ([]Record, PageMeta, error) {
	meta := PageMeta{Strategy: schema.PaginateCursor}
	if w.Empty {
		return []Record{}, meta, nil
	}

	hasMore := len(records) > w.Size
	if hasMore {
		records = records[:w.Size]
	}
	if w.Backward() {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	if len(records) == 0 {
		return records, meta, nil
	}

	first, err := EncodeCursor(records[0][s.PrimaryKey])
	if err != nil {
		return nil, meta, err
	}
	last, err := EncodeCursor(records[len(records)-1][s.PrimaryKey])
	if err != nil {
		return nil, meta, err
	}

	if w.Backward() {
		if hasMore {
			meta.PrevCursor = &first
		}
		meta.NextCursor = &last
		return records, meta, nil
	}

	if hasMore {
		meta.NextCursor = &last
	}
	if w.HasBoundary() {
		meta.PrevCursor = &first
	}
	return records, meta, nil
}

type cursorPayload struct {
	ID interface{} `json:"id"`
}

// EncodeCursor encodes a primary key value into an opaque cursor token
func EncodeCursor(pk interface{}) (string, error) {
	if pk == nil {
		return "", fmt.Errorf("%w: row has no primary key value", ErrInvalidCursor)
	}
	payload, err := json.Marshal(cursorPayload{ID: pk})
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeCursor decodes a cursor token into a primary key value of s
func DecodeCursor(s *schema.Schema, token string) (interface{}, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", ErrInvalidCursor)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", ErrInvalidCursor)
	}
	id, ok := payload["id"]
	if !ok || id == nil {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidCursor)
	}

	pk, err := s.PrimaryKeyAttribute()
	if err != nil {
		return nil, err
	}
	value, err := parseOperand(pk.Kind, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return value, nil
}

func defaultSize(s *schema.Schema) int {
	size := s.Pagination.DefaultSize
	if size <= 0 {
		size = schema.DefaultPageSize
	}
	return capSize(s, size)
}

func capSize(s *schema.Schema, size int) int {
	limit := s.Pagination.MaxSize
	if limit <= 0 {
		limit = schema.DefaultMaxPageSize
	}
	if size > limit {
		return limit
	}
	return size
}

func pageObject(page interface{}, issues *Collector) (*Map, bool) {
	if page == nil {
		return nil, false
	}
	m, ok := asMap(page)
	if !ok {
		issues.Addf(CodeInvalidType, Path{"page"}, map[string]interface{}{"got": describe(page)},
			"page must be an object, got %s", describe(page))
		return nil, false
	}
	return m, true
}

// pageInteger reads a positive integer page parameter
func pageInteger(value interface{}, path Path, issues *Collector) (int, bool) {
	n, err := parseInteger(value)
	if err != nil || n < 1 || n > int64(^uint32(0)>>1) {
		issues.Addf(CodeInvalidPage, path, map[string]interface{}{"got": value},
			"%s must be a positive integer", path[len(path)-1])
		return 0, false
	}
	return int(n), true
}
