package fakeapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) == 0 {
		return resp.StatusCode, nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp.StatusCode, out
}

func TestServer_Users(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	status, body := do(t, srv, http.MethodGet, "/api/users?page=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 12, body["total"])
	assert.EqualValues(t, 2, body["total_pages"])
	data := body["data"].([]any)
	require.Len(t, data, 6)
	first := data[0].(map[string]any)
	assert.Equal(t, "george.bluth@reqres.in", first["email"])
	assert.Equal(t, "https://reqres.in/img/faces/1-image.jpg", first["avatar"])

	status, body = do(t, srv, http.MethodGet, "/api/users?page=2", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Michael", body["data"].([]any)[0].(map[string]any)["first_name"])

	for id := 1; id <= 12; id++ {
		status, body = do(t, srv, http.MethodGet, "/api/users/"+strconv.Itoa(id), "")
		require.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, body["data"].(map[string]any)["email"])
	}

	status, body = do(t, srv, http.MethodGet, "/api/users/5", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "charles.morris@reqres.in", body["data"].(map[string]any)["email"])

	status, body = do(t, srv, http.MethodGet, "/api/users/23", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Empty(t, body)
}

func TestServer_Resources(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	status, body := do(t, srv, http.MethodGet, "/api/unknown", "")
	require.Equal(t, http.StatusOK, status)
	first := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "cerulean", first["name"])
	assert.EqualValues(t, 2000, first["year"])
	assert.Equal(t, "15-4020", first["pantone_value"])

	status, body = do(t, srv, http.MethodGet, "/api/unknown/5", "")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "tigerlily", data["name"])
	assert.Equal(t, "#E2583E", data["color"])
	assert.Equal(t, "17-1456", data["pantone_value"])

	status, _ = do(t, srv, http.MethodGet, "/api/unknown/23", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_Writes(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(New(WithClock(func() time.Time { return fixed })))
	defer srv.Close()

	status, body := do(t, srv, http.MethodPost, "/api/users", `{"name":"NewUser","job":"qa"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "NewUser", body["name"])
	assert.Equal(t, "qa", body["job"])
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "2026-10-19T09:00:00.000Z", body["createdAt"])

	put, putBody := do(t, srv, http.MethodPut, "/api/users/2", `{"name":"NewUser","job":"qa_automated"}`)
	patch, patchBody := do(t, srv, http.MethodPatch, "/api/users/2", `{"name":"NewUser","job":"qa_automated"}`)
	assert.Equal(t, http.StatusOK, put)
	assert.Equal(t, put, patch)
	assert.Equal(t, putBody, patchBody)
	assert.Equal(t, "2026-10-19T09:00:00.000Z", putBody["updatedAt"])

	status, body = do(t, srv, http.MethodDelete, "/api/users/2", "")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Nil(t, body)
}

func TestServer_Auth(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		field  string
		value  any
	}{
		{"login ok", "/api/login", `{"email":"eve.holt@reqres.in","password":"cityslicka"}`, 200, "token", Token},
		{"login no password", "/api/login", `{"email":"eve.holt@reqres.in"}`, 400, "error", "Missing password"},
		{"login no password other email", "/api/login", `{"email":"peter@klaven"}`, 400, "error", "Missing password"},
		{"login no email", "/api/login", `{"password":"x"}`, 400, "error", "Missing email or username"},
		{"login unknown user", "/api/login", `{"email":"a@b.c","password":"x"}`, 400, "error", "user not found"},
		{"register ok", "/api/register", `{"email":"eve.holt@reqres.in","password":"pistol"}`, 200, "id", float64(4)},
		{"register no password", "/api/register", `{"email":"sydney@fife"}`, 400, "error", "Missing password"},
		{"register undefined user", "/api/register", `{"email":"sydney@fife","password":"x"}`, 400, "error", "Note: Only defined users succeed registration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.value, body[tt.field])
		})
	}
}

func TestServer_Delay(t *testing.T) {
	srv := httptest.NewServer(New(WithDelayUnit(20 * time.Millisecond)))
	defer srv.Close()

	start := time.Now()
	status, body := do(t, srv, http.MethodGet, "/api/users?delay=2", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 12, body["total"])
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestServer_DelayCancelled(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/users?delay=3", nil)
	require.NoError(t, err)

	_, err = srv.Client().Do(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServer_APIKeyAndRouting(t *testing.T) {
	api := New(WithAPIKey("reqres-free-v1"))
	srv := httptest.NewServer(api)
	defer srv.Close()

	status, body := do(t, srv, http.MethodGet, "/api/users/2", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Missing API key", body["error"])

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/users/2/", nil)
	req.Header.Set("x-api-key", "reqres-free-v1")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPost, srv.URL+"/api/unknown/2", nil)
	req.Header.Set("x-api-key", "reqres-free-v1")
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	assert.Equal(t, 3, api.Hits())
}

func TestRouter_Match(t *testing.T) {
	r := NewRouter()
	noop := func(http.ResponseWriter, *http.Request, map[string]string) {}
	r.Handle(http.MethodGet, "/api/users/{id}", "getUser", noop)
	r.Handle(http.MethodGet, "/api/users", "listUsers", noop)

	route, params, _ := r.Match("get", "api/users/7")
	require.NotNil(t, route)
	assert.Equal(t, "getUser", route.Name)
	assert.Equal(t, map[string]string{"id": "7"}, params)

	route, _, _ = r.Match(http.MethodGet, "/api/users/")
	require.NotNil(t, route)
	assert.Equal(t, "listUsers", route.Name)

	route, _, known := r.Match(http.MethodGet, "/api/users/7/posts")
	assert.Nil(t, route)
	assert.False(t, known)
}
