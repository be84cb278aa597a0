// internal/metadata/items.go
//
// Ordered key/value input for Create and Update.
//
// Context
// -------
// Bulk Create stops at the first duplicate key and keeps what it already
// inserted, so the order keys are processed in is observable.  A Go map
// cannot carry that order, so request bodies decode into Items, which keeps
// JSON object member order.  Values stay as compact JSON text all the way to
// the store; nothing below the Service interprets them.
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrNotObject is returned when Items is decoded from anything but a JSON
// object.
var ErrNotObject = errors.New("metadata must be a JSON object")

// Item is one key and its JSON-encoded value.
type Item struct {
	Key   string          `validate:"required,max=255"`
	Value json.RawMessage `validate:"required,max=255"`
}

// Validate checks key and encoded value lengths.
func (it Item) Validate() error {
	return validate.Struct(it)
}

// Items preserves insertion order.  A repeated key keeps its first position
// and takes the last value, matching how a JSON object would be read into a
// map.
type Items []Item

// Encode marshals v into compact JSON.
func Encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// NewItem encodes v for key.
func NewItem(key string, v any) (Item, error) {
	raw, err := Encode(v)
	if err != nil {
		return Item{}, fmt.Errorf("encode %q: %w", key, err)
	}
	return Item{Key: key, Value: raw}, nil
}

// Keys lists the keys in order.
func (its Items) Keys() []string {
	out := make([]string, len(its))
	for i, it := range its {
		out[i] = it.Key
	}
	return out
}

// UnmarshalJSON reads a JSON object member by member.
func (its *Items) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ErrNotObject
	}

	out := Items{}
	pos := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("value of %q: %w", key, err)
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return fmt.Errorf("value of %q: %w", key, err)
		}

		if i, seen := pos[key]; seen {
			out[i].Value = buf.Bytes()
			continue
		}
		pos[key] = len(out)
		out = append(out, Item{Key: key, Value: buf.Bytes()})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*its = out
	return nil
}

// MarshalJSON writes the items back as an object in the same order.
func (its Items) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, it := range its {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(it.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		if len(it.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(it.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
