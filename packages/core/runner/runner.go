package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/apicheck/packages/assertions"
	"github.com/abdul-hamid-achik/apicheck/packages/core/env"
	"github.com/abdul-hamid-achik/apicheck/packages/core/suite"
	"github.com/abdul-hamid-achik/apicheck/packages/http"
	"github.com/abdul-hamid-achik/apicheck/packages/jsonpath"
)

const (
	// DefaultConcurrency is the default number of concurrent requests in parallel mode
	DefaultConcurrency = 5
	// DefaultTimeout bounds a single request, including the delayed endpoint.
	DefaultTimeout = 30 * time.Second
)

// Outcome classifies a finished case.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeErrored Outcome = "errored"
	OutcomeSkipped Outcome = "skipped"
)

// Skip reasons set by the runner itself.
const (
	SkipFiltered  = "filtered out"
	SkipBailed    = "bail: an earlier case did not pass"
	SkipCancelled = "cancelled"
)

type Runner struct {
	client   *http.Client
	resolver *env.Resolver
	config   *Config
	limiter  *rate.Limiter
	logger   *slog.Logger
}

type Config struct {
	BaseURL            string
	Headers            map[string]string
	Variables          map[string]string
	Timeout            time.Duration
	FollowRedirect     bool
	NoFailFast         bool // evaluate every assertion instead of stopping at the first failure
	Bail               bool
	NameFilter         string
	TagsFilter         []string
	Parallel           bool
	Concurrency        int
	Rate               float64 // requests per second, 0 means unlimited
	InsecureSkipVerify bool
	Logger             *slog.Logger
}

func NewRunner(cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	clientOpts := []http.ClientOption{
		http.WithTimeout(timeout),
		http.WithFollowRedirects(cfg.FollowRedirect),
		http.WithValidateSSL(!cfg.InsecureSkipVerify),
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &Runner{
		client:   http.NewClient(clientOpts...),
		resolver: env.NewResolver(),
		config:   cfg,
		logger:   logger,
	}
	if cfg.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	r.resolver.SetWarnFunc(func(format string, args ...any) {
		logger.Warn(fmt.Sprintf(format, args...))
	})
	return r
}

type RunResult struct {
	Suite    string
	File     string
	Results  []*CaseResult
	Duration time.Duration
	Passed   int
	Failed   int
	Errored  int
	Skipped  int
	Latency  LatencySummary
}

// Total counts every case, skipped ones included.
func (r *RunResult) Total() int {
	return r.Passed + r.Failed + r.Errored + r.Skipped
}

// OK reports whether no case failed or errored.
func (r *RunResult) OK() bool {
	return r.Failed == 0 && r.Errored == 0
}

func (r *RunResult) add(cr *CaseResult) {
	r.Results = append(r.Results, cr)
	switch cr.Outcome {
	case OutcomePassed:
		r.Passed++
	case OutcomeFailed:
		r.Failed++
	case OutcomeErrored:
		r.Errored++
	case OutcomeSkipped:
		r.Skipped++
	}
}

type CaseResult struct {
	Name       string
	Tags       []string
	Outcome    Outcome
	SkipReason string
	Duration   time.Duration
	Request    *http.Request
	Response   *http.Response
	Assertions []*assertions.Result
	Error      error
}

func (c *CaseResult) Passed() bool  { return c.Outcome == OutcomePassed }
func (c *CaseResult) Skipped() bool { return c.Outcome == OutcomeSkipped }

// FirstFailure returns the first failed assertion, or nil.
func (c *CaseResult) FirstFailure() *assertions.Result {
	for _, a := range c.Assertions {
		if !a.Passed {
			return a
		}
	}
	return nil
}

// RunFile loads a suite from path and runs it.
func (r *Runner) RunFile(ctx context.Context, path string) (*RunResult, error) {
	s, err := suite.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading suite: %w", err)
	}
	return r.Run(ctx, s)
}

// Run executes every selected case of s. Case failures are reported in
// the result; the error is reserved for problems that prevent the run.
func (r *Runner) Run(ctx context.Context, s *suite.Suite) (*RunResult, error) {
	if err := http.ValidateURL(r.config.BaseURL); err != nil {
		return nil, &http.ConfigError{Field: "base URL", Err: err}
	}

	start := time.Now()
	result := &RunResult{
		Suite: s.Name,
		File:  s.Path,
	}

	resolver := r.resolver.Clone()
	resolver.SetAll(s.Variables)
	resolver.SetAll(r.config.Variables)

	latency := NewLatency()

	var selected []*suite.TestCase
	for _, tc := range s.Cases {
		if !r.shouldRun(tc) {
			result.add(skippedCase(tc, SkipFiltered))
			continue
		}
		if tc.Skip != "" {
			result.add(skippedCase(tc, tc.Skip))
			continue
		}
		selected = append(selected, tc)
	}

	if r.config.Parallel {
		for _, cr := range r.runParallel(ctx, resolver, s, selected, latency) {
			result.add(cr)
		}
	} else {
		bailed := false
		for _, tc := range selected {
			switch {
			case bailed:
				result.add(skippedCase(tc, SkipBailed))
			case ctx.Err() != nil:
				result.add(skippedCase(tc, SkipCancelled))
			default:
				cr := r.runCase(ctx, resolver, s, tc, latency)
				result.add(cr)
				bailed = r.shouldBail(cr)
			}
		}
	}

	result.Duration = time.Since(start)
	result.Latency = latency.Summary()
	return result, ctx.Err()
}

func (r *Runner) runParallel(ctx context.Context, resolver *env.Resolver, s *suite.Suite, cases []*suite.TestCase, latency *Latency) []*CaseResult {
	concurrency := r.config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]*CaseResult, len(cases))
	var wg sync.WaitGroup
	var bailed atomic.Bool
	sem := make(chan struct{}, concurrency)

	// With bail, cases already in flight when one fails still finish.
	for i, tc := range cases {
		if bailed.Load() {
			results[i] = skippedCase(tc, SkipBailed)
			continue
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = skippedCase(tc, SkipCancelled)
			continue
		}

		wg.Add(1)
		go func(idx int, tc *suite.TestCase) {
			defer wg.Done()
			defer func() { <-sem }()

			switch {
			case bailed.Load():
				results[idx] = skippedCase(tc, SkipBailed)
			case ctx.Err() != nil:
				results[idx] = skippedCase(tc, SkipCancelled)
			default:
				results[idx] = r.runCase(ctx, resolver, s, tc, latency)
				if r.shouldBail(results[idx]) {
					bailed.Store(true)
				}
			}
		}(i, tc)
	}

	wg.Wait()
	return results
}

func (r *Runner) shouldBail(cr *CaseResult) bool {
	return r.config.Bail && (cr.Outcome == OutcomeFailed || cr.Outcome == OutcomeErrored)
}

func skippedCase(tc *suite.TestCase, reason string) *CaseResult {
	return &CaseResult{Name: tc.Name, Tags: tc.Tags, Outcome: OutcomeSkipped, SkipReason: reason}
}

func (r *Runner) shouldRun(tc *suite.TestCase) bool {
	if r.config.NameFilter != "" {
		if !matchesPattern(tc.Name, r.config.NameFilter) {
			return false
		}
	}

	if len(r.config.TagsFilter) > 0 {
		if !hasAnyTag(tc.Tags, r.config.TagsFilter) {
			return false
		}
	}

	return true
}

func (r *Runner) runCase(ctx context.Context, resolver *env.Resolver, s *suite.Suite, tc *suite.TestCase, latency *Latency) *CaseResult {
	result := &CaseResult{
		Name: tc.Name,
		Tags: tc.Tags,
	}

	req, err := r.buildRequest(resolver, tc)
	if err != nil {
		result.Outcome = OutcomeErrored
		result.Error = err
		r.logger.Warn("case not sent", "case", tc.Name, "error", err)
		return result
	}
	result.Request = req

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			result.Outcome = OutcomeErrored
			result.Error = &http.TransportError{Method: req.Method, URL: req.URL, Err: err}
			return result
		}
	}

	r.logger.Debug("sending request", "case", tc.Name, "method", req.Method, "url", req.URL, "headers", req.Headers)

	start := time.Now()
	resp, err := r.client.Do(ctx, req)
	result.Duration = time.Since(start)

	if err != nil {
		result.Outcome = OutcomeErrored
		result.Error = err
		r.logger.Info("request failed", "case", tc.Name, "method", req.Method, "url", req.URL, "error", err)
		return result
	}
	result.Response = resp
	latency.Record(resp.Duration)

	r.logger.Info("request", "case", tc.Name, "method", req.Method, "url", req.URL,
		"status", resp.StatusCode, "duration", resp.Duration)
	r.logger.Debug("response", "case", tc.Name, "bytes", len(resp.Body), "content_type", resp.ContentType())

	result.Assertions = assertions.EvaluateAll(resp, resolveAssertions(resolver, tc.AllAssertions()),
		assertions.WithBaseDir(s.Dir),
		assertions.WithFailFast(!r.config.NoFailFast),
	)

	if assertions.AllPassed(result.Assertions) {
		result.Outcome = OutcomePassed
	} else {
		result.Outcome = OutcomeFailed
	}
	return result
}

// buildRequest interpolates the case and turns it into a request. Config
// headers apply first so a case can override them.
func (r *Runner) buildRequest(resolver *env.Resolver, tc *suite.TestCase) (*http.Request, error) {
	if missing := resolver.Unresolved(tc.Path); len(missing) > 0 {
		return nil, &http.ConfigError{Field: "path", Err: fmt.Errorf("unresolved variables %v", missing)}
	}

	spec := tc.RequestSpec()
	spec.Path = resolver.Resolve(tc.Path)
	spec.Query = resolver.ResolveAll(tc.Query)
	spec.Headers = resolver.ResolveAll(env.MergeVariables(r.config.Headers, tc.Headers))
	spec.RawBody = resolver.Resolve(tc.RawBody)
	if tc.Body != nil {
		spec.Body = resolver.ResolveValue(tc.Body)
	}

	return http.BuildRequest(r.config.BaseURL, spec)
}

// resolveAssertions interpolates string expectations so a case can compare
// against a configured value, e.g. equals: "{{email}}".
func resolveAssertions(resolver *env.Resolver, list []assertions.Assertion) []assertions.Assertion {
	out := make([]assertions.Assertion, len(list))
	for i, a := range list {
		switch exp := a.Expected.(type) {
		case string:
			if a.Kind != assertions.KindSchema {
				a.Expected = resolver.Resolve(exp)
			}
		case jsonpath.Value:
			if s, ok := exp.Str(); ok {
				a.Expected = jsonpath.StringValue(resolver.Resolve(s))
			}
		}
		out[i] = a
	}
	return out
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	if pattern[0] == '*' && pattern[len(pattern)-1] == '*' && len(pattern) > 1 {
		substr := pattern[1 : len(pattern)-1]
		for i := 0; i <= len(name)-len(substr); i++ {
			if name[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	}

	if pattern[0] == '*' {
		suffix := pattern[1:]
		return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
	}

	if pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}

	return name == pattern
}

func hasAnyTag(tags []string, filters []string) bool {
	for _, filter := range filters {
		for _, tag := range tags {
			if tag == filter {
				return true
			}
		}
	}
	return false
}
