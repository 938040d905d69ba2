package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/apicheck/packages/fakeapi"
	"github.com/abdul-hamid-achik/apicheck/packages/output"
)

// execute runs the root command with args and fresh flag values.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	err := executeContext(t, context.Background(), &stdout, &stderr, args...)
	return stdout.String(), stderr.String(), err
}

func executeContext(t *testing.T, ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	t.Helper()

	resetFlags(rootCmd)
	for _, c := range rootCmd.Commands() {
		resetFlags(c)
	}

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	return rootCmd.ExecuteContext(ctx)
}

// lockedBuffer is written by a running command while the test reads it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func fakeServer(t *testing.T) (*fakeapi.Server, string) {
	t.Helper()
	api := fakeapi.New(fakeapi.WithDelayUnit(time.Millisecond))
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv.URL
}

func writeSuite(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const failingSuite = `name: broken
cases:
  - name: wrongEmail
    path: /api/users/2
    expect:
      status: 200
      body:
        - path: data.email
          equals: nobody@reqres.in
  - name: found
    path: /api/users/3
    expect:
      status: 200
`

func TestRun_BuiltInSuitePasses(t *testing.T) {
	api, baseURL := fakeServer(t)
	report := filepath.Join(t.TempDir(), "report.json")

	_, _, err := execute(t, "run", "--base-url", baseURL, "-o", "json", "--output-file", report)
	require.NoError(t, err)
	assert.Equal(t, 15, api.Hits())

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var out output.JSONOutput
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, output.JSONSummary{Total: 15, Passed: 15}, out.Summary)
	require.Len(t, out.Suites, 1)
	assert.Equal(t, "reqres", out.Suites[0].Name)
}

func TestRun_ExitCodes(t *testing.T) {
	_, baseURL := fakeServer(t)
	dir := t.TempDir()
	failing := writeSuite(t, dir, "broken.yaml", failingSuite)
	invalid := writeSuite(t, dir, "invalid.yaml", "cases:\n  - name: x\n    method: FETCH\n    path: /api/users\n")

	closed := httptest.NewServer(http.NotFoundHandler())
	deadURL := closed.URL
	closed.Close()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"assertion failure", []string{"run", failing, "--base-url", baseURL}, ExitTestFailure},
		{"transport error", []string{"run", "--base-url", deadURL, "--name", "singleUser", "--timeout", "2s"}, ExitNetworkError},
		{"bad base url", []string{"run", "--base-url", "ftp://reqres.in"}, ExitConfigError},
		{"unknown environment", []string{"run", "--env", "nowhere"}, ExitConfigError},
		{"invalid suite", []string{"run", invalid, "--base-url", baseURL}, ExitConfigError},
		{"missing suite", []string{"run", filepath.Join(dir, "missing.yaml")}, ExitConfigError},
		{"bad output", []string{"run", "--base-url", baseURL, "-o", "html"}, ExitConfigError},
		{"unknown flag", []string{"run", "--frobnicate"}, ExitUsageError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.want, exitCode(err))
		})
	}
}

func TestRun_ConsoleReport(t *testing.T) {
	_, baseURL := fakeServer(t)
	failing := writeSuite(t, t.TempDir(), "broken.yaml", failingSuite)

	stdout, _, err := execute(t, "run", failing, "--base-url", baseURL, "--no-color", "--no-fail-fast")
	assert.Equal(t, ExitTestFailure, exitCode(err))
	assert.Contains(t, stdout, "Running: broken")
	assert.Contains(t, stdout, "wrongEmail")
	assert.Contains(t, stdout, "1 passed")
	assert.Contains(t, stdout, "1 failed")
}

func TestRun_FiltersAndBail(t *testing.T) {
	api, baseURL := fakeServer(t)

	_, _, err := execute(t, "run", "--base-url", baseURL, "--tags", "auth", "--parallel")
	require.NoError(t, err)
	assert.Equal(t, 4, api.Hits())

	failing := writeSuite(t, t.TempDir(), "broken.yaml", failingSuite)
	before := api.Hits()
	_, _, err = execute(t, "run", failing, "--base-url", baseURL, "--bail")
	assert.Equal(t, ExitTestFailure, exitCode(err))
	assert.Equal(t, 1, api.Hits()-before, "bail stops after the failing case")
}

func TestRun_EnvFileVariables(t *testing.T) {
	_, baseURL := fakeServer(t)
	dir := t.TempDir()
	suitePath := writeSuite(t, dir, "vars.yaml", `name: vars
cases:
  - name: userFromEnvFile
    path: /api/users/{{userId}}
    expect:
      status: 200
      body:
        - path: data.email
          equals: "{{email}}"
`)
	envFile := writeSuite(t, dir, ".env", "userId=4\nemail=eve.holt@reqres.in\n")

	_, _, err := execute(t, "run", suitePath, "--base-url", baseURL, "--env-file", envFile)
	assert.NoError(t, err)

	_, _, err = execute(t, "run", suitePath, "--base-url", baseURL)
	assert.Equal(t, ExitNetworkError, exitCode(err), "unresolved path variable errors the case")
}

func TestRun_HistoryMetricsAndNotify(t *testing.T) {
	_, baseURL := fakeServer(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "history.db")
	prom := filepath.Join(dir, "apicheck.prom")

	var webhookCalls atomic.Int32
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	args := []string{
		"run", "--base-url", baseURL, "--name", "single*", "-o", "tap", "--output-file", filepath.Join(dir, "out.tap"),
		"--history-db", db, "--metrics-file", prom,
		"--notify", "slack", "--slack-webhook", webhook.URL, "--notify-on", "always",
	}
	for i := 0; i < 2; i++ {
		_, _, err := execute(t, args...)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), webhookCalls.Load())

	metricsText, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), `apicheck_cases_total{outcome="passed",suite="reqres"} 4`)
	assert.Contains(t, string(metricsText), `apicheck_last_run_success{suite="reqres"} 1`)

	stdout, _, err := execute(t, "history", "--history-db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "SUITE")
	assert.Contains(t, stdout, "reqres")

	stdout, _, err = execute(t, "history", "1", "--history-db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "singleUserNotFound")
	assert.Contains(t, stdout, "filtered out")
}

func TestRun_NotifyNeedsWebhook(t *testing.T) {
	_, baseURL := fakeServer(t)
	_, _, err := execute(t, "run", "--base-url", baseURL, "--notify", "slack")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, exitCode(err))
	assert.Contains(t, err.Error(), "--slack-webhook")
}

func TestHistory_NoDatabase(t *testing.T) {
	_, _, err := execute(t, "history")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, exitCode(err))
}

func TestList(t *testing.T) {
	stdout, _, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "reqres (built-in):")
	assert.Contains(t, stdout, "loginSuccessful")
	assert.Contains(t, stdout, "tags: auth, login")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeSuite(t, dir, "good.yaml", failingSuite)
	bad := writeSuite(t, dir, "bad.yaml", `name: bad
cases:
  - name: deleteWithBody
    method: DELETE
    path: /api/users/2
    expect:
      status: 204
      body:
        - path: id
          not_null: true
`)

	stdout, _, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Valid: "+good+" (2 cases)")

	_, stderr, err := execute(t, "validate", good, bad)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, exitCode(err))
	assert.Contains(t, stderr, "Error in "+bad)
}

func TestInit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")

	_, _, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "apicheck.yaml"))
	assert.FileExists(t, filepath.Join(dir, "reqres.yaml"))

	_, _, err = execute(t, "init", dir)
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCode(err))

	_, _, err = execute(t, "init", dir, "--force")
	assert.NoError(t, err)

	_, _, err = execute(t, "validate", filepath.Join(dir, "reqres.yaml"), "--config", filepath.Join(dir, "apicheck.yaml"))
	assert.NoError(t, err)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "apicheck version dev")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitTestFailure, exitCode(errors.New("boom")))
	assert.Equal(t, ExitNetworkError, exitCode(withExitCode(ExitNetworkError, nil)))
	assert.Nil(t, withExitCode(ExitSuccess, nil))

	err := withExitCode(ExitConfigError, errors.New("bad config"))
	assert.Equal(t, "bad config", err.Error())
	assert.Equal(t, "exit status 4", withExitCode(ExitNetworkError, nil).Error())
}

func TestRun_BaseURLOverridesEnvironment(t *testing.T) {
	_, _, err := execute(t, "run", "--base-url", "http://localhost:1", "--env", "local", "--timeout", "1ms", "--name", "nothing")
	assert.NoError(t, err, "no case selected, nothing sent")
}

func TestList_Coverage(t *testing.T) {
	stdout, _, err := execute(t, "list", "--coverage")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Covered: 10/11")
	assert.Contains(t, stdout, "/api/logout")

	stdout, _, err = execute(t, "list", "--coverage", "--json")
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
}

func TestList_CoverageOpenAPI(t *testing.T) {
	dir := t.TempDir()
	doc := writeSuite(t, dir, "openapi.yaml", `openapi: 3.0.0
paths:
  /api/users/{id}:
    get:
      operationId: getUser
  /api/unknown:
    get:
      operationId: listResources
`)
	failing := writeSuite(t, dir, "broken.yaml", failingSuite)

	stdout, _, err := execute(t, "list", failing, "--openapi", doc)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Covered: 1/2")

	_, _, err = execute(t, "list", "--openapi", filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, ExitConfigError, exitCode(err))
}

func TestCompletion(t *testing.T) {
	stdout, _, err := execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, stdout, "apicheck")

	_, _, err = execute(t, "completion", "tcsh")
	assert.Error(t, err)
}

func TestRun_WatchReRunsOnChange(t *testing.T) {
	api, baseURL := fakeServer(t)
	dir := t.TempDir()

	const oneCase = `name: watched
cases:
  - name: firstCase
    path: /api/users/2
    expect:
      status: 200
`
	const twoCases = oneCase + `  - name: addedCase
    path: /api/users/3
    expect:
      status: 200
`
	path := writeSuite(t, dir, "watched.yaml", oneCase)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr lockedBuffer
	done := make(chan error, 1)
	go func() {
		done <- executeContext(t, ctx, &stdout, &stderr, "run", path, "--base-url", baseURL, "--watch")
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "Watching for changes")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, api.Hits())

	// Two quick writes collapse into one re-run.
	writeSuite(t, dir, "watched.yaml", oneCase)
	writeSuite(t, dir, "watched.yaml", twoCases)

	require.Eventually(t, func() bool {
		return api.Hits() == 3
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(2 * WatchDebounceDelay)
	assert.Equal(t, 3, api.Hits())

	out := stdout.String()
	assert.Contains(t, out, "File changed: ")
	assert.Contains(t, out, "addedCase")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after the context was cancelled")
	}
}
