package session

import (
	"net/http"
	"strings"
)

const (
	HeaderContentType = "Content-Type"
	ContentTypeJSON   = "application/json; charset=utf-8"
)

// Header is one ordered request header.
type Header struct {
	Key   string
	Value string
}

// Request is one logical REST-shaped call carried over the stream.
// It must not be mutated after it is passed to Send.
type Request struct {
	Verb    string
	Path    string
	Headers []Header
	Body    []byte
}

func NewRequest(verb, path string, body []byte) *Request {
	req := &Request{Verb: strings.ToUpper(strings.TrimSpace(verb)), Path: path, Body: body}
	if len(body) > 0 {
		req.SetHeader(HeaderContentType, ContentTypeJSON)
	}
	return req
}

// Header returns the first value for key, compared case-insensitively.
func (r *Request) Header(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// SetHeader replaces the first header named key or appends a new one.
func (r *Request) SetHeader(key, value string) {
	for i, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			r.Headers[i].Value = value
			return
		}
	}
	r.Headers = append(r.Headers, Header{Key: key, Value: value})
}

func (r *Request) ContentType() string {
	return r.Header(HeaderContentType)
}

// Response answers exactly one Request.
type Response struct {
	Status int
	Body   []byte
}

func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Body: body}
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

func (r *Response) String() string {
	if r == nil {
		return "<nil>"
	}
	return http.StatusText(r.Status)
}
