package http

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Supported request methods.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodPut    = "PUT"
	MethodPatch  = "PATCH"
	MethodDelete = "DELETE"
)

var supportedMethods = map[string]bool{
	MethodGet:    true,
	MethodPost:   true,
	MethodPut:    true,
	MethodPatch:  true,
	MethodDelete: true,
}

// IsSupportedMethod reports whether method is one of the five verbs the
// client sends. The check is case-insensitive.
func IsSupportedMethod(method string) bool {
	return supportedMethods[strings.ToUpper(method)]
}

type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        []byte
	Timeout     time.Duration
	QueryParams map[string]string
}

// RequestSpec declares a request relative to a base URL. Body is encoded as
// JSON when set; otherwise RawBody is sent verbatim.
type RequestSpec struct {
	Method      string
	Path        string
	Query       map[string]string
	Headers     map[string]string
	ContentType string
	Body        any
	RawBody     string
	Timeout     time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:      method,
		URL:         requestURL,
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// Header returns a request header, matching the name case-insensitively.
func (r *Request) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Request) hasHeader(key string) bool {
	for k := range r.Headers {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

// SetJSONBody encodes v as the request body and defaults the Content-Type
// to application/json.
func (r *Request) SetJSONBody(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &ConfigError{Field: "body", Err: err}
	}
	r.Body = data
	if !r.hasHeader("Content-Type") {
		r.SetHeader("Content-Type", "application/json")
	}
	return nil
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

func (r *Request) SetQueryParam(key, value string) *Request {
	r.QueryParams[key] = value
	return r
}

// BuildURL merges QueryParams into the URL's existing query string.
func (r *Request) BuildURL() string {
	if len(r.QueryParams) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// BodyString returns the request body as text.
func (r *Request) BodyString() string {
	return string(r.Body)
}

// JoinURL appends a relative path, which may carry a query string, to the
// base URL. Any path prefix on the base URL is kept.
func JoinURL(baseURL, path string) (string, error) {
	if err := ValidateURL(baseURL); err != nil {
		return "", &ConfigError{Field: "base URL", Err: err}
	}
	if strings.Contains(path, "://") {
		return "", &ConfigError{Field: "path", Err: fmt.Errorf("%q must be relative to the base URL", path)}
	}

	joined := strings.TrimSuffix(baseURL, "/")
	if path != "" {
		joined += "/" + strings.TrimPrefix(path, "/")
	}

	if _, err := url.Parse(joined); err != nil {
		return "", &ConfigError{Field: "path", Err: err}
	}
	return joined, nil
}

// BuildRequest turns a declarative RequestSpec into a Request aimed at
// baseURL. Every validation happens here so a ConfigError never costs a
// network call.
func BuildRequest(baseURL string, spec RequestSpec) (*Request, error) {
	method := strings.ToUpper(strings.TrimSpace(spec.Method))
	if method == "" {
		method = MethodGet
	}
	if !IsSupportedMethod(method) {
		return nil, &ConfigError{Field: "method", Err: fmt.Errorf("unsupported method %q", spec.Method)}
	}

	target, err := JoinURL(baseURL, spec.Path)
	if err != nil {
		return nil, err
	}

	r := NewRequest(method, target)
	for k, v := range spec.Headers {
		r.SetHeader(k, v)
	}
	if spec.ContentType != "" {
		r.SetHeader("Content-Type", spec.ContentType)
	}
	for k, v := range spec.Query {
		r.SetQueryParam(k, v)
	}

	switch {
	case spec.Body != nil:
		if err := r.SetJSONBody(spec.Body); err != nil {
			return nil, err
		}
	case spec.RawBody != "":
		r.SetBody([]byte(spec.RawBody))
		if !r.hasHeader("Content-Type") && gjson.Valid(spec.RawBody) {
			r.SetHeader("Content-Type", "application/json")
		}
	}

	if spec.Timeout > 0 {
		r.SetTimeout(spec.Timeout)
	}

	r.URL = r.BuildURL()
	r.QueryParams = make(map[string]string)
	return r, nil
}
