// Package codec turns wire messages produced by the invocation host into
// events, and events back into wire messages.
//
// A codec is chosen once per session from a (format, key mode, batching)
// tuple. The returned Decoder carries its strategy with it, so decoding a
// message never re-inspects the session options.
package codec

import (
	"errors"
	"fmt"

	"github.com/lsm/fnsdk/pkg/event"
)

// Format is the wire encoding of a message.
type Format string

const (
	FormatMsgpack Format = "msgpack"
	FormatJSON    Format = "json"
)

// KeyMode says how map keys are represented in a binary message.
type KeyMode string

const (
	// KeysTyped expects text map keys.
	KeysTyped KeyMode = "typed"
	// KeysRaw expects byte-string map keys.
	KeysRaw KeyMode = "raw"
)

// BodyEncoding says how the body field is armored inside the envelope.
type BodyEncoding string

const (
	// BodyRaw bodies arrive as bytes or text and are decoded directly.
	BodyRaw BodyEncoding = "raw"
	// BodyBase64 bodies arrive base64-armored and are unarmored first.
	BodyBase64 BodyEncoding = "base64"
)

// Options select a codec variant.
type Options struct {
	Format       Format
	Keys         KeyMode
	Batch        bool
	BodyEncoding BodyEncoding

	// Diagnostics receives body decode anomalies. Defaults to stderr.
	Diagnostics event.Diagnostics
}

// Result is the outcome of decoding one wire message. Events and Errors have
// the same length; slot i holds either the event or the error of element i.
type Result struct {
	Events []*event.Event
	Errors []error
}

// OK returns the successfully decoded events in wire order.
func (r Result) OK() []*event.Event {
	out := make([]*event.Event, 0, len(r.Events))
	for _, e := range r.Events {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Err joins every per-element error, or returns nil.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Decoder parses a wire message into events. Implementations are immutable
// and safe for concurrent use.
type Decoder interface {
	Decode(msg []byte) (Result, error)
}

// Encoder renders events in a wire format. With batching disabled exactly one
// event must be given.
type Encoder interface {
	Encode(events ...*event.Event) ([]byte, error)
}

func (o Options) withDefaults() Options {
	if o.Keys == "" {
		o.Keys = KeysTyped
	}
	if o.BodyEncoding == "" {
		o.BodyEncoding = BodyRaw
	}
	if o.Diagnostics == nil {
		o.Diagnostics = event.NewDiagnostics(nil)
	}
	return o
}

// New resolves the decoder for the given options. Unknown or unsupported
// combinations fail here rather than per message.
func New(opts Options) (Decoder, error) {
	opts = opts.withDefaults()

	body, err := bodyDecoder(opts)
	if err != nil {
		return nil, err
	}

	var p parser
	switch {
	case opts.Format == FormatMsgpack && opts.Keys == KeysTyped:
		p = typedMsgpackParser{}
	case opts.Format == FormatMsgpack && opts.Keys == KeysRaw:
		p = rawMsgpackParser{}
	case opts.Format == FormatJSON && opts.Keys == KeysTyped:
		p = jsonParser{}
	default:
		return nil, &UnsupportedFormatError{Format: opts.Format, Keys: opts.Keys, Batch: opts.Batch}
	}

	r := reader{parse: p, body: body, diag: opts.Diagnostics}
	if opts.Batch {
		return batchDecoder{r}, nil
	}
	return singleDecoder{r}, nil
}

// NewEncoder resolves the encoder matching a decoder built from the same options.
func NewEncoder(opts Options) (Encoder, error) {
	opts = opts.withDefaults()
	if _, err := bodyDecoder(opts); err != nil {
		return nil, err
	}

	w := writer{armor: opts.BodyEncoding == BodyBase64, batch: opts.Batch}
	switch {
	case opts.Format == FormatMsgpack && opts.Keys == KeysTyped:
		w.marshal = marshalTypedMsgpack
	case opts.Format == FormatMsgpack && opts.Keys == KeysRaw:
		w.marshal = marshalRawMsgpack
	case opts.Format == FormatJSON && opts.Keys == KeysTyped:
		w.marshal = marshalJSON
		w.textBytes = true
	default:
		return nil, &UnsupportedFormatError{Format: opts.Format, Keys: opts.Keys, Batch: opts.Batch}
	}
	return w, nil
}

type bodyFunc func(body any, contentType string, diag event.Diagnostics) any

func bodyDecoder(opts Options) (bodyFunc, error) {
	switch opts.BodyEncoding {
	case BodyRaw:
		return event.DecodeBody, nil
	case BodyBase64:
		return event.DecodeArmoredBody, nil
	default:
		return nil, fmt.Errorf("unsupported body encoding %q", opts.BodyEncoding)
	}
}

type singleDecoder struct {
	reader
}

func (d singleDecoder) Decode(msg []byte) (Result, error) {
	v, err := d.parse.unmarshal(msg)
	if err != nil {
		return Result{}, &EnvelopeError{Index: -1, Err: err}
	}
	e, err := d.event(v, -1)
	if err != nil {
		return Result{}, err
	}
	return Result{Events: []*event.Event{e}, Errors: []error{nil}}, nil
}

type batchDecoder struct {
	reader
}

func (d batchDecoder) Decode(msg []byte) (Result, error) {
	items, parseErrs, err := d.parse.elements(msg)
	if err != nil {
		return Result{}, &EnvelopeError{Index: -1, Err: err}
	}

	res := Result{
		Events: make([]*event.Event, len(items)),
		Errors: make([]error, len(items)),
	}
	for i, item := range items {
		if parseErrs[i] != nil {
			res.Errors[i] = &EnvelopeError{Index: i, Err: parseErrs[i]}
			continue
		}
		e, err := d.event(item, i)
		if err != nil {
			res.Errors[i] = err
			continue
		}
		res.Events[i] = e
	}
	return res, nil
}

func notAnArray(v any) error {
	return fmt.Errorf("batch message must be an array, got %s", typeName(v))
}
