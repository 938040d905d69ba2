package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRedirects = 10
	// DefaultUserAgent identifies the harness to the API under test.
	DefaultUserAgent = "apicheck"
)

// Client sends Requests one at a time. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
}

type clientSettings struct {
	timeout   time.Duration
	redirects int // 0 disables following
	insecure  bool
	headers   map[string]string
}

type ClientOption func(*clientSettings)

func NewClient(opts ...ClientOption) *Client {
	s := &clientSettings{
		timeout:   DefaultTimeout,
		redirects: DefaultMaxRedirects,
		headers:   map[string]string{"User-Agent": DefaultUserAgent},
	}
	for _, opt := range opts {
		opt(s)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if s.insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   s.timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= s.redirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		headers: s.headers,
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(s *clientSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithFollowRedirects(false) hands 3xx responses to the assertions as-is.
func WithFollowRedirects(follow bool) ClientOption {
	return func(s *clientSettings) {
		if !follow {
			s.redirects = 0
		} else if s.redirects == 0 {
			s.redirects = DefaultMaxRedirects
		}
	}
}

func WithMaxRedirects(max int) ClientOption {
	return func(s *clientSettings) {
		s.redirects = max
	}
}

// WithDefaultHeaders sets headers sent with every request. A request's own
// headers win.
func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(s *clientSettings) {
		for k, v := range headers {
			s.headers[k] = v
		}
	}
}

func WithValidateSSL(validate bool) ClientOption {
	return func(s *clientSettings) {
		s.insecure = !validate
	}
}

// Do sends req and reads the whole response. It blocks until the body is
// read, the request's own timeout fires, or ctx is done. Failures to reach
// the server come back as *TransportError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	target := httpReq.URL.String()

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: target, Err: fmt.Errorf("reading body: %w", err)}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    make(map[string]string, len(httpResp.Header)),
		Body:       body,
		Duration:   time.Since(start),
	}
	for k := range httpResp.Header {
		resp.Headers[k] = httpResp.Header.Get(k)
	}
	return resp, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	target := req.BuildURL()
	if err := ValidateURL(target); err != nil {
		return nil, &ConfigError{Field: "URL", Err: err}
	}
	if !IsSupportedMethod(req.Method) {
		return nil, &ConfigError{Field: "method", Err: fmt.Errorf("unsupported method %q", req.Method)}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &ConfigError{Field: "URL", Err: err}
	}

	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(rawURL string) error {
	u, err := neturl.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %q (only http and https are allowed)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
