package voc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindDocument
)

// Value is a tagged union over the JSON-shaped types the VOC service returns.
// Accessors return the zero value when the Value holds a different kind;
// callers that care about presence should check Kind first.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	list []Value
	doc  *Document
}

func Null() Value                     { return Value{kind: KindNull} }
func Bool(b bool) Value               { return Value{kind: KindBool, b: b} }
func Number(n float64) Value          { return Value{kind: KindNumber, num: n} }
func String(s string) Value           { return Value{kind: KindString, str: s} }
func List(items ...Value) Value       { return Value{kind: KindList, list: items} }
func DocumentValue(d *Document) Value { return Value{kind: KindDocument, doc: d} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() bool         { return v.b }
func (v Value) Number() float64    { return v.num }
func (v Value) Text() string       { return v.str }
func (v Value) List() []Value      { return v.list }
func (v Value) Document() *Document {
	return v.doc
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindDocument:
		return json.Marshal(v.doc)
	}
	return nil, fmt.Errorf("invalid value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc := NewDocument()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("invalid object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				doc.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // closing brace
				return Value{}, err
			}
			return DocumentValue(doc), nil
		case '[':
			items := []Value{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil { // closing bracket
				return Value{}, err
			}
			return List(items...), nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %v", t)
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(n), nil
	case string:
		return String(t), nil
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// Document is a mapping from attribute name to Value that remembers the order
// in which keys were first set. Enumeration follows insertion order;
// serialization sorts keys so that output is deterministic.
type Document struct {
	keys   []string
	values map[string]Value
}

func NewDocument() *Document {
	return &Document{values: make(map[string]Value)}
}

func (d *Document) Set(key string, v Value) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

func (d *Document) Get(key string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	v, ok := d.values[key]
	return v, ok
}

func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the attribute names in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	return keys
}

// Merge overwrites d with every entry of other, appending new keys in
// other's order.
func (d *Document) Merge(other *Document) {
	if other == nil {
		return
	}
	for _, key := range other.keys {
		d.Set(key, other.values[key])
	}
}

func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	keys := d.Keys()
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		encodedValue, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(encodedValue)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v.Kind() != KindDocument {
		return fmt.Errorf("expected JSON object, got kind %d", v.Kind())
	}
	*d = *v.Document()
	return nil
}

// Slug converts a camelCase attribute name to snake_case, matching the
// attribute names the service exposes to clients.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimPrefix(b.String(), "_")
}

// slugDocument re-keys d and any nested documents with Slug, recursing
// through lists.
func slugDocument(d *Document) *Document {
	if d == nil {
		return nil
	}
	out := NewDocument()
	for _, key := range d.keys {
		out.Set(Slug(key), slugValue(d.values[key]))
	}
	return out
}

func slugValue(v Value) Value {
	switch v.Kind() {
	case KindDocument:
		return DocumentValue(slugDocument(v.Document()))
	case KindList:
		items := make([]Value, len(v.List()))
		for i, item := range v.List() {
			items[i] = slugValue(item)
		}
		return List(items...)
	}
	return v
}
