package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// typedMsgpackParser reads msgpack whose map keys are text strings.
type typedMsgpackParser struct{}

func (typedMsgpackParser) unmarshal(msg []byte) (any, error) {
	return decodeMsgpack(msg, decodeTypedMap)
}

func (typedMsgpackParser) elements(msg []byte) ([]any, []error, error) {
	return decodeMsgpackArray(msg, decodeTypedMap)
}

func (typedMsgpackParser) envelope(v any) (envelope, bool) {
	m, ok := v.(map[string]any)
	return textEnvelope(m), ok
}

func (typedMsgpackParser) materialize(v any) any {
	return v
}

// rawMsgpackParser reads msgpack whose map keys are byte strings. Keys are
// never converted while looking up envelope fields; only maps handed to the
// event (fields, headers, structured bodies) are materialized with text keys.
type rawMsgpackParser struct{}

func (rawMsgpackParser) unmarshal(msg []byte) (any, error) {
	return decodeMsgpack(msg, decodeRawMap)
}

func (rawMsgpackParser) elements(msg []byte) ([]any, []error, error) {
	return decodeMsgpackArray(msg, decodeRawMap)
}

func (rawMsgpackParser) envelope(v any) (envelope, bool) {
	r, ok := v.(rawEnvelope)
	return r, ok
}

func (rawMsgpackParser) materialize(v any) any {
	switch t := v.(type) {
	case rawEnvelope:
		m := make(map[string]any, len(t))
		for _, p := range t {
			m[string(p.key)] = rawMsgpackParser{}.materialize(p.value)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = rawMsgpackParser{}.materialize(item)
		}
		return out
	default:
		return v
	}
}

func decodeMsgpack(msg []byte, mapDecoder func(*msgpack.Decoder) (any, error)) (any, error) {
	r := bytes.NewReader(msg)
	dec := msgpack.NewDecoder(r)
	dec.SetMapDecoder(mapDecoder)

	// Strict interface decoding keeps bin values as []byte.
	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, fmt.Errorf("decode msgpack: %w", err)
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("decode msgpack: %d trailing bytes", r.Len())
	}
	return v, nil
}

// decodeMsgpackArray reads the array header and then each element as raw
// bytes, parsing every element with its own decoder.
func decodeMsgpackArray(msg []byte, mapDecoder func(*msgpack.Decoder) (any, error)) ([]any, []error, error) {
	r := bytes.NewReader(msg)
	dec := msgpack.NewDecoder(r)

	code, err := dec.PeekCode()
	if err != nil {
		return nil, nil, fmt.Errorf("decode msgpack: %w", err)
	}
	if !msgpcode.IsFixedArray(code) && code != msgpcode.Array16 && code != msgpcode.Array32 {
		v, err := decodeMsgpack(msg, mapDecoder)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, notAnArray(v)
	}

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, nil, fmt.Errorf("decode msgpack: %w", err)
	}
	items := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		raw, err := dec.DecodeRaw()
		if err != nil {
			return nil, nil, fmt.Errorf("decode msgpack: batch element %d: %w", i, err)
		}
		items[i], errs[i] = decodeMsgpack(raw, mapDecoder)
	}
	if r.Len() > 0 {
		return nil, nil, fmt.Errorf("decode msgpack: %d trailing bytes", r.Len())
	}
	return items, errs, nil
}

func decodeTypedMap(d *msgpack.Decoder) (any, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}

	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		code, err := d.PeekCode()
		if err != nil {
			return nil, err
		}
		if !msgpcode.IsString(code) {
			return nil, fmt.Errorf("map key has code 0x%x, want text string", code)
		}
		k, err := d.DecodeString()
		if err != nil {
			return nil, err
		}
		v, err := d.DecodeInterface()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func decodeRawMap(d *msgpack.Decoder) (any, error) {
	n, err := d.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}

	pairs := make(rawEnvelope, 0, n)
	for i := 0; i < n; i++ {
		k, err := d.DecodeBytes()
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		v, err := d.DecodeInterface()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, rawPair{key: k, value: v})
	}
	return pairs, nil
}

func marshalTypedMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode msgpack: %w", err)
	}
	return buf.Bytes(), nil
}

// marshalRawMsgpack writes every map key, at any depth, as a msgpack bin value.
func marshalRawMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := encodeRawKeys(enc, v); err != nil {
		return nil, fmt.Errorf("encode msgpack: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeRawKeys(enc *msgpack.Encoder, v any) error {
	switch t := v.(type) {
	case map[string]any:
		if err := enc.EncodeMapLen(len(t)); err != nil {
			return err
		}
		for _, k := range sortedKeys(t) {
			if err := enc.EncodeBytes([]byte(k)); err != nil {
				return err
			}
			if err := encodeRawKeys(enc, t[k]); err != nil {
				return err
			}
		}
		return nil
	case []any:
		if err := enc.EncodeArrayLen(len(t)); err != nil {
			return err
		}
		for _, item := range t {
			if err := encodeRawKeys(enc, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(v)
	}
}
