package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/apicheck/packages/jsonpath"
)

// echoServer answers with the method, the x-api-key and User-Agent headers
// and the request body.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Api-Key-Seen", r.Header.Get("x-api-key"))
		w.Header().Set("X-Agent-Seen", r.Header.Get("User-Agent"))
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Do_Methods(t *testing.T) {
	srv := echoServer(t)
	client := NewClient()

	tests := []struct {
		method string
		body   string
		status int
	}{
		{MethodGet, "", 200},
		{MethodPost, `{"name":"NewUser"}`, 200},
		{MethodPut, `{"job":"qa"}`, 200},
		{MethodPatch, `{"job":"qa"}`, 200},
		{MethodDelete, "", 204},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := NewRequest(tt.method, srv.URL+"/api/users/2").SetBody([]byte(tt.body))
			resp, err := client.Do(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.method, resp.Header("x-method"))
			assert.Equal(t, tt.body, resp.BodyString())
			assert.Equal(t, tt.body != "", resp.HasBody())
			assert.Equal(t, DefaultUserAgent, resp.Header("X-Agent-Seen"))
		})
	}
}

func TestClient_DefaultHeaders(t *testing.T) {
	srv := echoServer(t)
	client := NewClient(WithDefaultHeaders(map[string]string{
		"x-api-key":  "reqres-free-v1",
		"User-Agent": "custom-agent",
	}))

	resp, err := client.Do(context.Background(), NewRequest(MethodGet, srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.ContentType())
	assert.Equal(t, "reqres-free-v1", resp.Header("X-Api-Key-Seen"))
	assert.Equal(t, "custom-agent", resp.Header("X-Agent-Seen"))

	req := NewRequest(MethodGet, srv.URL).SetHeader("x-api-key", "per-request")
	resp, err = client.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "per-request", resp.Header("X-Api-Key-Seen"), "request headers win")
}

func slowServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Timeouts(t *testing.T) {
	srv := slowServer(t)

	t.Run("client", func(t *testing.T) {
		_, err := NewClient(WithTimeout(50*time.Millisecond)).Do(context.Background(), NewRequest(MethodGet, srv.URL))
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.True(t, te.Timeout())
		assert.Equal(t, MethodGet, te.Method)
	})

	t.Run("request", func(t *testing.T) {
		req := NewRequest(MethodGet, srv.URL).SetTimeout(50 * time.Millisecond)
		_, err := NewClient().Do(context.Background(), req)
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.True(t, te.Timeout())
	})

	t.Run("context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := NewClient().Do(ctx, NewRequest(MethodGet, srv.URL))
		assert.True(t, IsTransportError(err))
	})
}

func TestClient_ErrorClasses(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	deadURL := closed.URL
	closed.Close()

	tests := []struct {
		name      string
		req       *Request
		transport bool
	}{
		{"connection refused", NewRequest(MethodGet, deadURL), true},
		{"bad scheme", NewRequest(MethodGet, "ftp://example.com"), false},
		{"no host", NewRequest(MethodGet, "http:///api/users"), false},
		{"unsupported method", NewRequest("HEAD", "http://example.com"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient().Do(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.transport, IsTransportError(err))
			assert.Equal(t, !tt.transport, IsConfigError(err))
		})
	}
}

func TestClient_Redirects(t *testing.T) {
	var hops atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/final":
			_, _ = w.Write([]byte("final"))
		case "/loop":
			hops.Add(1)
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			http.Redirect(w, r, "/final", http.StatusFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	resp, err := NewClient().Do(ctx, NewRequest(MethodGet, srv.URL+"/start"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "final", resp.BodyString())

	resp, err = NewClient(WithFollowRedirects(false)).Do(ctx, NewRequest(MethodGet, srv.URL+"/start"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	resp, err = NewClient(WithMaxRedirects(3)).Do(ctx, NewRequest(MethodGet, srv.URL+"/loop"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, int32(3), hops.Load())
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url    string
		errMsg string
	}{
		{"http://example.com/path", ""},
		{"https://reqres.in", ""},
		{"ftp://example.com", "unsupported URL scheme"},
		{"reqres.in/api", "unsupported URL scheme"},
		{"http:///path", "URL must have a host"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestResponse_Header(t *testing.T) {
	resp := &Response{Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"}}
	assert.Equal(t, "application/json; charset=utf-8", resp.Header("content-type"))
	assert.Equal(t, "", resp.Header("X-Missing"))
}

func TestResponse_JSON(t *testing.T) {
	resp := &Response{StatusCode: 200, Body: []byte(`{"data": {"id": 5}}`)}

	doc, err := resp.JSON()
	require.NoError(t, err)
	id, ok := jsonpath.Resolve(doc, "data.id")
	require.True(t, ok)
	assert.True(t, jsonpath.NumberValue(5).Equal(id))

	again, err := resp.JSON()
	require.NoError(t, err)
	assert.True(t, doc.Equal(again))
}

func TestResponse_JSONEmptyBody(t *testing.T) {
	resp := &Response{StatusCode: 204}

	_, err := resp.JSON()
	assert.ErrorIs(t, err, jsonpath.ErrEmptyDocument)
	assert.False(t, resp.HasBody())
}
