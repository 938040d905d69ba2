package http

import (
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/apicheck/packages/jsonpath"
)

// Response is a fully read HTTP response. It is read-only once returned
// and belongs to a single case.
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration

	parseOnce sync.Once
	doc       jsonpath.Value
	docErr    error
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

// JSON parses the body into a typed document on first use. An empty body,
// as sent with 204 No Content, yields jsonpath.ErrEmptyDocument.
func (r *Response) JSON() (jsonpath.Value, error) {
	r.parseOnce.Do(func() {
		r.doc, r.docErr = jsonpath.Parse(r.Body)
	})
	return r.doc, r.docErr
}

// Header looks a header up case-insensitively.
func (r *Response) Header(key string) string {
	if v, ok := r.Headers[key]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

// HasBody reports whether the body holds anything but whitespace.
func (r *Response) HasBody() bool {
	return len(strings.TrimSpace(string(r.Body))) > 0
}
