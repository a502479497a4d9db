package lens

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Pair is a single key and value of an ordered keyed structure.
type Pair struct {
	Key   string
	Value any
}

// Pairs is a keyed structure that keeps insertion order, unlike a Go map.
type Pairs []Pair

var pairsType = reflect.TypeOf(Pairs(nil))

// Get returns the value stored for key.
func (p Pairs) Get(key string) (any, bool) {
	for _, pair := range p {
		if pair.Key == key {
			return pair.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in insertion order.
func (p Pairs) Keys() []string {
	keys := make([]string, len(p))
	for i, pair := range p {
		keys[i] = pair.Key
	}
	return keys
}

// MarshalJSON encodes the pairs as a JSON object with keys in insertion order.
func (p Pairs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pair := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal value of %q failed: %w", pair.Key, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeMsgpack encodes the pairs as a msgpack map with keys in insertion order.
func (p Pairs) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(p)); err != nil {
		return err
	}
	for _, pair := range p {
		if err := enc.EncodeString(pair.Key); err != nil {
			return err
		} else if err := enc.Encode(pair.Value); err != nil {
			return fmt.Errorf("encode value of %q failed: %w", pair.Key, err)
		}
	}
	return nil
}

// DecodeOrdered reads the next JSON value from dec. Objects are decoded into Pairs so key
// order is retained, arrays into []any, and numbers into int64 when integral, else float64.
func DecodeOrdered(dec *json.Decoder) (any, error) {
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	v, err := decodeOrderedToken(dec, tok)
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF // input ended inside a value
	}
	return v, err
}

// DecodeOrderedAll reads every JSON value in r.
func DecodeOrderedAll(r io.Reader) ([]any, error) {
	dec := json.NewDecoder(r)
	var values []any
	for {
		v, err := DecodeOrdered(dec)
		if errors.Is(err, io.EOF) {
			return values, nil
		} else if err != nil {
			return values, fmt.Errorf("decode value %d failed: %w", len(values)+1, err)
		}
		values = append(values, v)
	}
}

func decodeOrderedToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			pairs := Pairs{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				valTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := decodeOrderedToken(dec, valTok)
				if err != nil {
					return nil, err
				}
				pairs = append(pairs, Pair{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // closing '}'
				return nil, err
			}
			return pairs, nil
		case '[':
			values := []any{}
			for dec.More() {
				valTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := decodeOrderedToken(dec, valTok)
				if err != nil {
					return nil, err
				}
				values = append(values, val)
			}
			if _, err := dec.Token(); err != nil { // closing ']'
				return nil, err
			}
			return values, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", rune(t))
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		} else if f, err := t.Float64(); err == nil {
			return f, nil
		}
		return t.String(), nil
	default: // string, bool, nil
		return tok, nil
	}
}
