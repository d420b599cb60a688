package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// record is a decoded JSON object that remembers its key order.
type record struct {
	keys   []string
	values map[string]any
}

func decodeRecord(raw []byte) (record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return record{}, fmt.Errorf("format: read record: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return record{}, errors.New("format: record is not an object")
	}

	r := record{values: map[string]any{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return record{}, fmt.Errorf("format: read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return record{}, errors.New("format: record key is not a string")
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return record{}, fmt.Errorf("format: read value for %q: %w", key, err)
		}
		if _, seen := r.values[key]; !seen {
			r.keys = append(r.keys, key)
		}
		r.values[key] = v
	}
	return r, nil
}

func (r record) get(key string) any {
	return r.values[key]
}

func (r record) has(key string) bool {
	return truthy(r.values[key])
}

func (r record) str(key string) string {
	return scalarString(r.values[key])
}

// truthy mirrors how the CRM payloads are read: null, "", 0 and false count
// as absent.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number:
		return true
	}
	return false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	return ""
}

func intValue(v any) (int, bool) {
	n, ok := v.(json.Number)
	if !ok {
		if s, isStr := v.(string); isStr {
			n = json.Number(s)
		} else {
			return 0, false
		}
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(i), true
}
