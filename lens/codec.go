package lens

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// EncodedEnvelope is an envelope serialized for delivery.
type EncodedEnvelope struct {
	Body            []byte `msgpack:"b"`
	ContentType     string `msgpack:"t"`
	ContentEncoding string `msgpack:"e,omitempty"`
}

// EncodeEnvelope serializes env with the codec and compression names from Config.
func EncodeEnvelope(env Envelope, codec, compression string) (EncodedEnvelope, error) {
	var raw []byte
	var contentType string
	switch codec {
	case "", CodecJSON:
		b, err := json.Marshal(env)
		if err != nil {
			return EncodedEnvelope{}, fmt.Errorf("json encode %s envelope failed: %w", env.Type, err)
		}
		raw, contentType = b, ContentTypeJSON
	case CodecMsgpack:
		b, err := marshalMsgpack(env)
		if err != nil {
			return EncodedEnvelope{}, fmt.Errorf("msgpack encode %s envelope failed: %w", env.Type, err)
		}
		raw, contentType = b, ContentTypeMsgpack
	default:
		return EncodedEnvelope{}, fmt.Errorf("unknown codec %q", codec)
	}

	body, contentEncoding, err := compressBody(compression, raw)
	if err != nil {
		return EncodedEnvelope{}, err
	}
	return EncodedEnvelope{Body: body, ContentType: contentType, ContentEncoding: contentEncoding}, nil
}

func marshalMsgpack(v any) ([]byte, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope reverses EncodeEnvelope. The data body is decoded generically (maps and slices).
func DecodeEnvelope(enc EncodedEnvelope) (Envelope, error) {
	raw, err := decompressBody(enc.ContentEncoding, enc.Body)
	if err != nil {
		return Envelope{}, fmt.Errorf("decompress envelope failed: %w", err)
	}

	var env Envelope
	switch enc.ContentType {
	case "", ContentTypeJSON:
		err = json.Unmarshal(raw, &env)
	case ContentTypeMsgpack:
		err = msgpack.Unmarshal(raw, &env)
	default:
		return Envelope{}, fmt.Errorf("unknown content type %q", enc.ContentType)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("decode envelope failed: %w", err)
	}
	return env, nil
}
