// Package params reads compiler parameters from a URL query string.
//
// Two forms are accepted: ?q=<json document> or bracketed JSON:API style keys such as
// filter[status]=draft, filter[total][gte]=10, sort=-due_on, include=customer and
// page[number]=2. Numeric bracket segments turn an object into an array, so
// filter[_or][0][status]=draft&filter[_or][1][status]=paid builds an OR list.
package params

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/querykit/internal/orm/query"
)

// listOperators take a comma separated value
var listOperators = map[string]bool{"in": true}

// Parse builds params from a raw query string, keeping the order keys appear in
func Parse(rawQuery string) (query.Params, error) {
	var (
		params  query.Params
		filter  *query.Map
		page    *query.Map
		hasJSON bool
		other   bool
	)

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return query.Params{}, malformed("invalid escape in %q", rawKey)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return query.Params{}, malformed("invalid escape in value of %s", key)
		}

		root, segments, err := splitKey(key)
		if err != nil {
			return query.Params{}, err
		}

		switch root {
		case "q":
			if len(segments) > 0 {
				return query.Params{}, malformed("q takes no brackets")
			}
			decoded, err := query.DecodeParams([]byte(value))
			if err != nil {
				return query.Params{}, err
			}
			params, hasJSON = decoded, true
			continue
		case "filter":
			if len(segments) == 0 {
				return query.Params{}, malformed("filter needs a field, e.g. filter[status]")
			}
			if filter == nil {
				filter = query.NewMap()
			}
			if err := insert(filter, key, segments, leafValue(segments, value)); err != nil {
				return query.Params{}, err
			}
		case "page":
			if len(segments) != 1 {
				return query.Params{}, malformed("page takes one bracket, e.g. page[size]")
			}
			if page == nil {
				page = query.NewMap()
			}
			if err := insert(page, key, segments, value); err != nil {
				return query.Params{}, err
			}
		case "sort", "include":
			if len(segments) > 0 {
				return query.Params{}, malformed("%s takes no brackets", root)
			}
			if root == "sort" {
				params.Sort = value
			} else {
				params.Include = value
			}
		default:
			return query.Params{}, malformed("unknown parameter %q", key)
		}
		other = true
	}

	if hasJSON {
		if other {
			return query.Params{}, malformed("q cannot be combined with other query parameters")
		}
		return params, nil
	}

	if filter != nil {
		params.Filter = arrays(filter)
	}
	if page != nil {
		params.Page = page
	}
	return params, nil
}

// splitKey splits filter[a][b] into filter and [a b]
func splitKey(key string) (string, []string, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, nil, nil
	}

	root, rest := key[:open], key[open:]
	var segments []string
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, malformed("unexpected %q in %s", rest, key)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, malformed("unclosed bracket in %s", key)
		}
		segment := rest[1:end]
		if segment == "" || strings.ContainsAny(segment, "[") {
			return "", nil, malformed("empty or nested bracket in %s", key)
		}
		segments = append(segments, segment)
		rest = rest[end+1:]
	}
	return root, segments, nil
}

func leafValue(segments []string, value string) interface{} {
	if !listOperators[segments[len(segments)-1]] {
		return value
	}
	parts := strings.Split(value, ",")
	list := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	return list
}

func insert(m *query.Map, key string, segments []string, value interface{}) error {
	for _, segment := range segments[:len(segments)-1] {
		next, ok := m.Get(segment)
		if !ok {
			child := query.NewMap()
			m.Set(segment, child)
			m = child
			continue
		}
		child, isMap := next.(*query.Map)
		if !isMap {
			return malformed("%s conflicts with an earlier value", key)
		}
		m = child
	}

	last := segments[len(segments)-1]
	if _, exists := m.Get(last); exists {
		return malformed("%s given more than once", key)
	}
	m.Set(last, value)
	return nil
}

// arrays turns objects keyed 0..n-1 into arrays, recursively
func arrays(value interface{}) interface{} {
	m, ok := value.(*query.Map)
	if !ok {
		return value
	}

	keys := m.Keys()
	indexes := make([]int, 0, len(keys))
	for _, k := range keys {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 || strconv.Itoa(n) != k {
			indexes = nil
			break
		}
		indexes = append(indexes, n)
	}

	if len(indexes) == len(keys) && len(keys) > 0 && dense(indexes) {
		list := make([]interface{}, len(keys))
		for _, k := range keys {
			n, _ := strconv.Atoi(k)
			v, _ := m.Get(k)
			list[n] = arrays(v)
		}
		return list
	}

	out := query.NewMap()
	for _, k := range keys {
		v, _ := m.Get(k)
		out.Set(k, arrays(v))
	}
	return out
}

func dense(indexes []int) bool {
	sorted := append([]int(nil), indexes...)
	sort.Ints(sorted)
	for i, n := range sorted {
		if i != n {
			return false
		}
	}
	return true
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", query.ErrMalformedParams, fmt.Sprintf(format, args...))
}
