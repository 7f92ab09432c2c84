// Package canonical turns arbitrary structured records into an
// order-normalized form with a stable byte serialization, and derives
// content identifiers from it.
//
// Two semantically equal records (same keys and values, any insertion
// order) always canonicalize to byte-identical output: mapping keys are
// sorted by code point at every nesting level, sequences keep their
// original order, and scalars pass through unchanged. Date and decimal
// values are treated as opaque scalars, never expanded into their fields.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Form is the order-normalized representation of a record. It is the sole
// input to identifier derivation; nothing else is ever hashed.
type Form struct {
	value any // nil, bool, json.Number, string, []any or map[string]any
}

// SerializationError reports input that cannot be reduced to canonical
// form: circular structures, channels, funcs, and other values that have
// no JSON representation.
type SerializationError struct {
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("canonical: not serializable: %v", e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// Canonicalize normalizes any JSON-representable Go value into a Form.
// It is pure: repeated calls on equal inputs yield equal forms. The only
// failure mode is non-serializable input, reported as *SerializationError.
func Canonicalize(v any) (Form, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Form{}, &SerializationError{Cause: err}
	}
	return Parse(raw)
}

// Parse normalizes a raw JSON document, typically a wire payload fetched
// from the ledger. Numbers are kept as their textual form rather than
// converted through float64, so re-encoding never reformats them.
func Parse(raw []byte) (Form, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return Form{}, &SerializationError{Cause: err}
	}
	// Reject trailing garbage after the first document.
	if dec.More() {
		return Form{}, &SerializationError{Cause: fmt.Errorf("trailing data after JSON document")}
	}
	return Form{value: tree}, nil
}

// Encode serializes the form to its canonical byte string: compact JSON,
// keys sorted, no insignificant whitespace, no trailing separators. The
// output of Encode is the exact byte sequence identifiers are derived
// from, and the exact payload submitted to the ledger.
func (f Form) Encode() []byte {
	var buf bytes.Buffer
	appendValue(&buf, f.value)
	return buf.Bytes()
}

// Map returns the form's top-level mapping, or ok=false when the form is
// not an object.
func (f Form) Map() (map[string]any, bool) {
	m, ok := f.value.(map[string]any)
	return m, ok
}

func appendValue(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(string(val))
	case string:
		appendString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			appendValue(buf, item)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			appendString(buf, k)
			buf.WriteByte(':')
			appendValue(buf, val[k])
		}
		buf.WriteByte('}')
	default:
		// Unreachable: Parse only produces the types handled above.
		panic(fmt.Sprintf("canonical: unexpected value type %T", v))
	}
}

// appendString writes a JSON string using the standard library's escaping
// rules so canonical output never diverges from encoding/json on strings.
func appendString(buf *bytes.Buffer, s string) {
	b, err := json.Marshal(s)
	if err != nil {
		// json.Marshal cannot fail on a string value.
		panic(err)
	}
	buf.Write(b)
}
