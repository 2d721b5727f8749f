// Package canonical provides deterministic JSON serialization. The output
// bytes are the exact input to manifest hashing and signing, so two calls
// with equal logical data must always produce byte-identical output.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal serializes v into canonical JSON: compact output, object keys
// sorted lexicographically, array order preserved. Numbers are carried
// through json.Number so re-encoding a parsed document is byte-stable.
func Marshal(v any) ([]byte, error) {
	// A first regular marshal rejects unsupported types and cycles and
	// normalizes structs into plain JSON.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: input is not serializable: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("canonical: failed to decode intermediate form: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
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
		buf.WriteString(val.String())
	case string:
		return encodeString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
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
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported intermediate type %T", v)
	}
	return nil
}

// encodeString delegates string escaping to encoding/json so canonical
// output uses the same escaping rules as the rest of the codebase.
func encodeString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("canonical: failed to encode string: %w", err)
	}
	buf.Write(b)
	return nil
}
