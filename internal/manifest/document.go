package manifest

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// ValueKind discriminates the typed leaf variants of a manifest value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged variant over the JSON value types. Numbers keep their
// source literal so a decode/encode round trip never reformats them.
type Value struct {
	Kind ValueKind
	Str  string
	Num  json.Number
	Bool bool
	Arr  []Value
	Obj  *Document
}

func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Number(n json.Number) Value { return Value{Kind: KindNumber, Num: n} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Null() Value                { return Value{Kind: KindNull} }
func Array(items ...Value) Value { return Value{Kind: KindArray, Arr: items} }
func Object(doc *Document) Value { return Value{Kind: KindObject, Obj: doc} }

// Equal reports deep equality of two values.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	case KindArray:
		if len(v.Arr) != len(o.Arr) {
			return false
		}
		for i := range v.Arr {
			if !v.Arr[i].Equal(o.Arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.Obj.Equal(o.Obj)
	default:
		return false
	}
}

// Display renders a value compactly for reason strings and conflict reports.
func (v Value) Display() string {
	data, err := encodeValue(v)
	if err != nil {
		return fmt.Sprintf("<%s>", v.Kind)
	}
	return string(data)
}

// Document is a JSON object that preserves key insertion order, so merges are
// a pure function of their inputs rather than of map iteration order.
type Document struct {
	keys   []string
	values map[string]Value
}

func NewDocument() *Document {
	return &Document{values: make(map[string]Value)}
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
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

// Set inserts or replaces key. New keys append to the order.
func (d *Document) Set(key string, v Value) {
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Delete removes key, preserving the order of the remaining keys.
func (d *Document) Delete(key string) bool {
	if _, ok := d.values[key]; !ok {
		return false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Equal reports deep equality regardless of key order.
func (d *Document) Equal(o *Document) bool {
	if d.Len() != o.Len() {
		return false
	}
	if d == nil || o == nil {
		return d.Len() == o.Len()
	}
	for k, v := range d.values {
		ov, ok := o.values[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := NewDocument()
	for _, k := range d.keys {
		out.Set(k, cloneValue(d.values[k]))
	}
	return out
}

func cloneValue(v Value) Value {
	switch v.Kind {
	case KindArray:
		items := make([]Value, len(v.Arr))
		for i := range v.Arr {
			items[i] = cloneValue(v.Arr[i])
		}
		return Value{Kind: KindArray, Arr: items}
	case KindObject:
		return Value{Kind: KindObject, Obj: v.Obj.Clone()}
	default:
		return v
	}
}

// Parse decodes a JSON object, preserving key order via token streaming.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return nil, fmt.Errorf("parse manifest: top-level value is not an object")
	}

	doc, err := parseObject(dec)
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	// trailing garbage after the closing brace is malformed input
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("parse manifest: unexpected content after document")
	}
	return doc, nil
}

// parseObject consumes tokens after an opening '{' up to its '}'.
func parseObject(dec *json.Decoder) (*Document, error) {
	doc := NewDocument()
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if delim, ok := tok.(json.Delim); ok && delim == '}' {
			return doc, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		val, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		doc.Set(key, val)
	}
}

func parseArray(dec *json.Decoder) ([]Value, error) {
	var items []Value
	for {
		if !dec.More() {
			// consume the closing ']'
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return items, nil
		}
		val, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		items = append(items, val)
	}
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			doc, err := parseObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Object(doc), nil
		case '[':
			items, err := parseArray(dec)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindArray, Arr: items}, nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %v", t)
		}
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return Value{}, fmt.Errorf("unexpected token %v", tok)
	}
}

// Encode renders the document as two-space indented JSON with a trailing
// newline, the conventional package manifest formatting.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeDocument(&buf, d, 0); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func encodeDocument(buf *bytes.Buffer, d *Document, depth int) error {
	if d.Len() == 0 {
		buf.WriteString("{}")
		return nil
	}
	buf.WriteString("{\n")
	for i, k := range d.keys {
		writeIndent(buf, depth+1)
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(keyJSON)
		buf.WriteString(": ")
		if err := encodeValueIndented(buf, d.values[k], depth+1); err != nil {
			return err
		}
		if i < len(d.keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	writeIndent(buf, depth)
	buf.WriteByte('}')
	return nil
}

func encodeValueIndented(buf *bytes.Buffer, v Value, depth int) error {
	switch v.Kind {
	case KindObject:
		return encodeDocument(buf, v.Obj, depth)
	case KindArray:
		if len(v.Arr) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteString("[\n")
		for i, item := range v.Arr {
			writeIndent(buf, depth+1)
			if err := encodeValueIndented(buf, item, depth+1); err != nil {
				return err
			}
			if i < len(v.Arr)-1 {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		writeIndent(buf, depth)
		buf.WriteByte(']')
		return nil
	default:
		data, err := encodeValue(v)
		if err != nil {
			return err
		}
		buf.Write(data)
		return nil
	}
}

// encodeValue renders a value compactly (no indentation).
func encodeValue(v Value) ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		if v.Num == "" {
			return []byte("0"), nil
		}
		return []byte(v.Num), nil
	case KindBool:
		if v.Bool {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.Arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range v.Obj.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			val, _ := v.Obj.Get(k)
			data, err := encodeValue(val)
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}
