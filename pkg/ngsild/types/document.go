package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is a JSON object that remembers the insertion order of its keys.
// NGSI-LD serialization depends on deterministic key ordering (the @context
// relocation on entities is expressed in terms of it), which rules out a
// plain map.
type Document struct {
	keys   []string
	values map[string]any
}

func NewDocument() *Document {
	return &Document{
		keys:   make([]string, 0, 8),
		values: map[string]any{},
	}
}

// Set stores a value under key. Setting an existing key replaces its value
// but keeps the key's original position.
func (d *Document) Set(key string, value any) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

func (d *Document) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

func (d *Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

func (d *Document) Delete(key string) {
	if _, exists := d.values[key]; !exists {
		return
	}

	delete(d.values, key)

	for idx, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:idx], d.keys[idx+1:]...)
			break
		}
	}
}

// Keys returns the document's keys in insertion order.
func (d *Document) Keys() []string {
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	return keys
}

func (d *Document) Len() int {
	return len(d.keys)
}

// Copy returns a deep copy of this document. Nested documents, maps and
// slices are copied recursively so that no structure is shared with the
// original.
func (d *Document) Copy() *Document {
	dup := NewDocument()
	for _, k := range d.keys {
		dup.Set(k, copyValue(d.values[k]))
	}
	return dup
}

// AsMap flattens the document (and any nested documents) into plain maps,
// losing key order.
func (d *Document) AsMap() map[string]any {
	m := make(map[string]any, len(d.keys))
	for _, k := range d.keys {
		m[k] = flattenValue(d.values[k])
	}
	return m
}

func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for idx, k := range d.keys {
		if idx > 0 {
			buf.WriteByte(',')
		}

		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal value of \"%s\": %w", k, err)
		}
		buf.Write(vb)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("document must be a JSON object")
	}

	d.keys = d.keys[:0]
	d.values = map[string]any{}

	return d.decodeMembers(dec)
}

func (d *Document) decodeMembers(dec *json.Decoder) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in object", tok)
		}

		value, err := decodeValue(dec)
		if err != nil {
			return err
		}

		d.Set(key, value)
	}

	// consume the closing brace
	_, err := dec.Token()
	return err
}

// decodeValue reads the next JSON value from the stream, turning objects
// into nested Documents so that their key order survives a round trip.
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		if t == '{' {
			doc := NewDocument()
			err := doc.decodeMembers(dec)
			return doc, err
		}

		if t == '[' {
			arr := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}

			_, err := dec.Token()
			return arr, err
		}

		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		// string, json.Number, bool or nil
		return t, nil
	}
}

func copyValue(value any) any {
	switch v := value.(type) {
	case *Document:
		return v.Copy()
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = copyValue(e)
		}
		return m
	case []any:
		arr := make([]any, len(v))
		for idx, e := range v {
			arr[idx] = copyValue(e)
		}
		return arr
	case []string:
		arr := make([]string, len(v))
		copy(arr, v)
		return arr
	default:
		return v
	}
}

func flattenValue(value any) any {
	switch v := value.(type) {
	case *Document:
		return v.AsMap()
	case []any:
		arr := make([]any, len(v))
		for idx, e := range v {
			arr[idx] = flattenValue(e)
		}
		return arr
	default:
		return v
	}
}
