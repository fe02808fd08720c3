package model

import (
	"bytes"
	"encoding/json"

	"github.com/Velocidex/ordereddict"
)

// MarshalJSON renders v as compact JSON. Trees keep their key order and
// '&', '<' and '>' are written literally.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case *ordereddict.Dict:
		if t == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range t.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			val, _ := t.Get(k)
			if err := writeJSON(buf, val); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		if t == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	default:
		return writeValue(buf, v)
	}
}

func writeValue(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
