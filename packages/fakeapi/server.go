package fakeapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

const maxDelay = 10

// Server is an in-process stand-in for the reqres.in API. It serves the
// same fixture data and error bodies so suites can run without network.
type Server struct {
	router    *Router
	delayUnit time.Duration
	apiKey    string
	logger    *slog.Logger
	now       func() time.Time
	hits      atomic.Int64
}

// Option is a functional option for Server
type Option func(*Server)

// WithDelayUnit sets the duration of one ?delay= step. The real API uses
// seconds; tests usually shrink it.
func WithDelayUnit(d time.Duration) Option {
	return func(s *Server) {
		s.delayUnit = d
	}
}

// WithAPIKey makes every request require a matching x-api-key header.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		router:    NewRouter(),
		delayUnit: time.Second,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Handle(http.MethodGet, "/api/users", "listUsers", s.listUsers)
	s.router.Handle(http.MethodPost, "/api/users", "createUser", s.createUser)
	s.router.Handle(http.MethodGet, "/api/users/{id}", "getUser", s.getUser)
	s.router.Handle(http.MethodPut, "/api/users/{id}", "putUser", s.updateUser)
	s.router.Handle(http.MethodPatch, "/api/users/{id}", "patchUser", s.updateUser)
	s.router.Handle(http.MethodDelete, "/api/users/{id}", "deleteUser", s.deleteUser)
	s.router.Handle(http.MethodGet, "/api/unknown", "listResources", s.listResources)
	s.router.Handle(http.MethodGet, "/api/unknown/{id}", "getResource", s.getResource)
	s.router.Handle(http.MethodPost, "/api/login", "login", s.login)
	s.router.Handle(http.MethodPost, "/api/register", "register", s.register)
	s.router.Handle(http.MethodPost, "/api/logout", "logout", s.logout)
}

// Routes lists the served endpoints.
func (s *Server) Routes() []*Route {
	return s.router.Routes()
}

// Hits is the number of requests served so far.
func (s *Server) Hits() int {
	return int(s.hits.Load())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := s.now()
	s.hits.Add(1)

	if s.apiKey != "" && r.Header.Get("x-api-key") != s.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Missing API key"})
		return
	}

	if !s.wait(r) {
		return
	}

	route, params, pathKnown := s.router.Match(r.Method, r.URL.Path)
	if route == nil {
		status := http.StatusNotFound
		if pathKnown {
			status = http.StatusMethodNotAllowed
		}
		writeJSON(w, status, map[string]any{})
		s.logger.Debug("no route", "method", r.Method, "path", r.URL.Path, "status", status)
		return
	}

	route.Handler(w, r, params)
	s.logger.Debug("served", "route", route.Name, "method", r.Method, "path", r.URL.Path, "duration", s.now().Sub(start))
}

// wait honours ?delay=N, capped like the real API. It reports false when
// the client went away first.
func (s *Server) wait(r *http.Request) bool {
	n, err := strconv.Atoi(r.URL.Query().Get("delay"))
	if err != nil || n <= 0 {
		return true
	}
	if n > maxDelay {
		n = maxDelay
	}
	timer := time.NewTimer(time.Duration(n) * s.delayUnit)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, paginate(users, pageParam(r)))
}

func (s *Server) getUser(w http.ResponseWriter, _ *http.Request, params map[string]string) {
	id, err := strconv.Atoi(params["id"])
	if err != nil || id < 1 || id > len(users) {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, single[user]{Data: users[id-1], Support: defaultSupport})
}

func (s *Server) listResources(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, paginate(resources, pageParam(r)))
}

func (s *Server) getResource(w http.ResponseWriter, _ *http.Request, params map[string]string) {
	id, err := strconv.Atoi(params["id"])
	if err != nil || id < 1 || id > len(resources) {
		writeJSON(w, http.StatusNotFound, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, single[resource]{Data: resources[id-1], Support: defaultSupport})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	body := readObject(r)
	body["id"] = strconv.Itoa(rand.Intn(1000))
	body["createdAt"] = s.timestamp()
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	body := readObject(r)
	body["updatedAt"] = s.timestamp()
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) deleteUser(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	w.WriteHeader(http.StatusNoContent)
}

type credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// checkCredentials mirrors the API's validation order: missing identity,
// then missing password.
func checkCredentials(r *http.Request) (credentials, string) {
	var c credentials
	_ = json.NewDecoder(r.Body).Decode(&c)
	if c.Email == "" && c.Username == "" {
		return c, "Missing email or username"
	}
	if c.Password == "" {
		return c, "Missing password"
	}
	return c, ""
}

func (s *Server) login(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	c, msg := checkCredentials(r)
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	if _, ok := userByEmail(c.Email); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": Token})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	c, msg := checkCredentials(r)
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	u, ok := userByEmail(c.Email)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Note: Only defined users succeed registration"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "token": Token})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

func pageParam(r *http.Request) int {
	p, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return p
}

func readObject(r *http.Request) map[string]any {
	body := make(map[string]any)
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body == nil {
		body = make(map[string]any)
	}
	return body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
