package response

import (
	"math"
	"net/http"
	"reflect"
	"testing"
	"time"
)

func TestFromHandlerOutput(t *testing.T) {
	now := time.Now()
	type order struct {
		ID int `json:"id"`
	}

	tests := []struct {
		name   string
		output any
		want   Response
	}{
		{"nil", nil, Empty()},
		{"string", "test", with(func(r *Response) { r.Body = "test" })},
		{"int", 2020, with(func(r *Response) { r.Body = 2020 })},
		{"bytes", []byte("test"), with(func(r *Response) {
			r.Body = "dGVzdA=="
			r.BodyEncoding = EncodingBase64
		})},
		{"map", map[string]any{"json": true}, with(func(r *Response) {
			r.Body = `{"json":true}`
			r.ContentType = ContentTypeJSON
		})},
		{"slice", []any{1, 2, 3, true}, with(func(r *Response) {
			r.Body = `[1,2,3,true]`
			r.ContentType = ContentTypeJSON
		})},
		{"struct", order{ID: 7}, with(func(r *Response) {
			r.Body = `{"id":7}`
			r.ContentType = ContentTypeJSON
		})},
		{"time", now, with(func(r *Response) { r.Body = now })},
		{"status and string", WithStatus{Code: 201, Body: "test"}, with(func(r *Response) {
			r.Body = "test"
			r.StatusCode = 201
		})},
		{"status and map", WithStatus{Code: 201, Body: map[string]any{"json": true}}, with(func(r *Response) {
			r.Body = `{"json":true}`
			r.StatusCode = 201
			r.ContentType = ContentTypeJSON
		})},
		{"response string", Response{Body: "test"}, with(func(r *Response) { r.Body = "test" })},
		{"response pointer map", &Response{Body: map[string]any{"json": true}}, with(func(r *Response) {
			r.Body = `{"json":true}`
			r.ContentType = ContentTypeJSON
		})},
		{"response explicit content type", Response{Body: "<p/>", ContentType: "text/html", StatusCode: 404}, with(func(r *Response) {
			r.Body = "<p/>"
			r.ContentType = "text/html"
			r.StatusCode = 404
		})},
		{"response headers", Response{Body: "x", Headers: map[string]any{"X-A": "1"}}, with(func(r *Response) {
			r.Body = "x"
			r.Headers = map[string]any{"X-A": "1"}
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromHandlerOutput(tt.output)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func with(edit func(*Response)) Response {
	r := Empty()
	edit(&r)
	return r
}

func TestFromHandlerOutput_UnencodableBody(t *testing.T) {
	got := FromHandlerOutput(map[string]any{"x": math.NaN()})
	if got.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", got.StatusCode)
	}
	if s, _ := got.Body.(string); s == "" {
		t.Error("expected error text in body")
	}
}

func TestWire(t *testing.T) {
	w := FromHandlerOutput(WithStatus{Code: 202, Body: []byte("hi")}).Wire()
	want := map[string]any{
		"body":          "aGk=",
		"body_encoding": "base64",
		"content_type":  "text/plain",
		"headers":       map[string]any{},
		"status_code":   202,
	}
	if !reflect.DeepEqual(w, want) {
		t.Errorf("expected %v, got %v", want, w)
	}
}
