// Package response turns whatever a handler returns into the uniform reply
// shape the invocation host expects.
package response

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/bytedance/sonic"
)

const (
	ContentTypeText = "text/plain"
	ContentTypeJSON = "application/json"

	EncodingText   = "text"
	EncodingBase64 = "base64"
)

// Response is a handler reply.
type Response struct {
	Body         any
	Headers      map[string]any
	ContentType  string
	StatusCode   int
	BodyEncoding string
}

// WithStatus pairs a body with an explicit status code.
type WithStatus struct {
	Code int
	Body any
}

// Empty is the reply for a handler that returned nothing.
func Empty() Response {
	return Response{
		Body:         "",
		Headers:      map[string]any{},
		ContentType:  ContentTypeText,
		StatusCode:   http.StatusOK,
		BodyEncoding: EncodingText,
	}
}

// FromHandlerOutput normalizes a handler return value:
//
//   - string: text body
//   - []byte: base64 body with body encoding "base64"
//   - maps, slices and structs: JSON text with content type application/json
//   - WithStatus: its body encoded as above, with the given status
//   - Response or *Response: used as is, with its body encoded as above
//   - numbers, bools and times: passed through as the body value
//   - nil: Empty()
//
// A value that cannot be rendered as JSON produces a 500 reply carrying the
// error text.
func FromHandlerOutput(output any) Response {
	r := Empty()
	switch o := output.(type) {
	case nil:
		return r
	case WithStatus:
		r = FromHandlerOutput(o.Body)
		r.StatusCode = o.Code
		return r
	case *WithStatus:
		if o == nil {
			return r
		}
		return FromHandlerOutput(*o)
	case Response:
		return fromResponse(o)
	case *Response:
		if o == nil {
			return r
		}
		return fromResponse(*o)
	}
	if err := r.setBody(output); err != nil {
		return failure(err)
	}
	return r
}

func fromResponse(in Response) Response {
	r := Empty()
	if in.Headers != nil {
		r.Headers = in.Headers
	}
	if in.StatusCode != 0 {
		r.StatusCode = in.StatusCode
	}
	if in.ContentType != "" {
		r.ContentType = in.ContentType
	}
	if in.BodyEncoding == EncodingBase64 {
		// already armored by the caller
		r.Body = in.Body
		r.BodyEncoding = EncodingBase64
		return r
	}
	if in.Body == nil {
		return r
	}
	if err := r.setBody(in.Body); err != nil {
		return failure(err)
	}
	// an explicit content type wins over the one inferred from the body
	if in.ContentType != "" {
		r.ContentType = in.ContentType
	}
	return r
}

func (r *Response) setBody(body any) error {
	switch b := body.(type) {
	case string:
		r.Body = b
	case []byte:
		r.Body = base64.StdEncoding.EncodeToString(b)
		r.BodyEncoding = EncodingBase64
	case bool, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		r.Body = b
	default:
		if !isStructured(body) {
			r.Body = fmt.Sprint(body)
			return nil
		}
		text, err := sonic.ConfigStd.MarshalToString(body)
		if err != nil {
			return fmt.Errorf("encode response body: %w", err)
		}
		r.Body = text
		r.ContentType = ContentTypeJSON
	}
	return nil
}

func isStructured(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}

func failure(err error) Response {
	r := Empty()
	r.Body = err.Error()
	r.StatusCode = http.StatusInternalServerError
	return r
}

// Wire returns the reply as generic data for a wire encoder.
func (r Response) Wire() map[string]any {
	headers := r.Headers
	if headers == nil {
		headers = map[string]any{}
	}
	return map[string]any{
		"body":          r.Body,
		"body_encoding": r.BodyEncoding,
		"content_type":  r.ContentType,
		"headers":       headers,
		"status_code":   r.StatusCode,
	}
}
