package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrMalformedParams is returned when the parameter document is not a JSON object
var ErrMalformedParams = errors.New("malformed query parameters")

// Params holds the raw, undecoded-by-schema query parameters of one request
type Params struct {
	Filter  interface{}
	Sort    interface{}
	Page    interface{}
	Include interface{}
}

// Map is a JSON object that remembers the order of its keys.
// Sort keys are significant in the order the client wrote them.
type Map struct {
	keys   []string
	values map[string]interface{}
}

// NewMap creates an empty Map
func NewMap() *Map {
	return &Map{values: make(map[string]interface{})}
}

// MapOf builds a Map from alternating keys and values, in order
func MapOf(kv ...interface{}) *Map {
	if len(kv)%2 != 0 {
		panic("query.MapOf: odd number of arguments")
	}
	m := NewMap()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("query.MapOf: key %v is not a string", kv[i]))
		}
		m.Set(key, kv[i+1])
	}
	return m
}

// FromMap converts a Go map into a Map with sorted keys, recursively
func FromMap(src map[string]interface{}) *Map {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := NewMap()
	for _, k := range keys {
		m.Set(k, normalize(src[k]))
	}
	return m
}

// Set stores a value; new keys are appended to the key order
func (m *Map) Set(key string, value interface{}) {
	if m.values == nil {
		m.values = make(map[string]interface{})
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key
func (m *Map) Get(key string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Len returns the number of keys
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// MarshalJSON implements json.Marshaler, preserving key order
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order
func (m *Map) UnmarshalJSON(data []byte) error {
	v, err := DecodeValue(data)
	if err != nil {
		return err
	}
	decoded, ok := v.(*Map)
	if !ok {
		return fmt.Errorf("%w: expected an object", ErrMalformedParams)
	}
	*m = *decoded
	return nil
}

// DecodeValue decodes any JSON document. Objects become *Map, arrays []interface{}
// and numbers json.Number.
func DecodeValue(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeNext(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedParams, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedParams)
	}
	return v, nil
}

func decodeNext(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key %v is not a string", keyTok)
				}
				value, err := decodeNext(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			list := make([]interface{}, 0)
			for dec.More() {
				value, err := decodeNext(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return tok, nil
	}
}

// DecodeParams decodes a request document of the form
// {"filter": ..., "sort": ..., "page": ..., "include": ...}.
func DecodeParams(data []byte) (Params, error) {
	var p Params
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}

	v, err := DecodeValue(data)
	if err != nil {
		return p, err
	}
	doc, ok := v.(*Map)
	if !ok {
		return p, fmt.Errorf("%w: expected an object", ErrMalformedParams)
	}

	for _, key := range doc.Keys() {
		value, _ := doc.Get(key)
		switch key {
		case "filter":
			p.Filter = value
		case "sort":
			p.Sort = value
		case "page":
			p.Page = value
		case "include":
			p.Include = value
		default:
			return p, fmt.Errorf("%w: unknown parameter %q", ErrMalformedParams, key)
		}
	}
	return p, nil
}

// asMap accepts the object shapes a caller may hand in
func asMap(v interface{}) (*Map, bool) {
	switch m := v.(type) {
	case *Map:
		if m == nil {
			return NewMap(), true
		}
		return m, true
	case Map:
		return &m, true
	case map[string]interface{}:
		return FromMap(m), true
	case map[string]string:
		converted := make(map[string]interface{}, len(m))
		for k, val := range m {
			converted[k] = val
		}
		return FromMap(converted), true
	case map[string]bool:
		converted := make(map[string]interface{}, len(m))
		for k, val := range m {
			converted[k] = val
		}
		return FromMap(converted), true
	default:
		return nil, false
	}
}

// asSlice accepts the array shapes a caller may hand in
func asSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case []*Map:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []map[string]interface{}:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []string:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []int:
		out := make([]interface{}, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	default:
		return nil, false
	}
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return FromMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	default:
		return v
	}
}
