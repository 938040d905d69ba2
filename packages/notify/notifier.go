// Package notify sends run summaries to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/apicheck/packages/core/runner"
)

// Policy specifies when to send notifications
type Policy string

const (
	// Always sends a notification for every run
	Always Policy = "always"
	// OnFailure sends a notification only when a case failed or errored
	OnFailure Policy = "failure"
	// OnSuccess sends a notification only when every case passed
	OnSuccess Policy = "success"
	// OnRecovery sends a notification on failure and on the first passing
	// run after a failing one.
	OnRecovery Policy = "recovery"
)

// ParsePolicy maps a config value to a Policy. Empty means OnFailure.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return OnFailure, nil
	case Always, OnFailure, OnSuccess, OnRecovery:
		return p, nil
	}
	return "", fmt.Errorf("unknown notify policy %q", s)
}

// Summary is what a notifier reports about one suite run.
type Summary struct {
	Suite       string        `json:"suite"`
	Environment string        `json:"environment,omitempty"`
	BaseURL     string        `json:"base_url,omitempty"`
	Total       int           `json:"total"`
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	Errored     int           `json:"errored"`
	Skipped     int           `json:"skipped"`
	Duration    time.Duration `json:"duration"`
	P95         time.Duration `json:"p95"`
	Failures    []Failure     `json:"failures,omitempty"`
	IsRecovery  bool          `json:"is_recovery,omitempty"`
}

// OK reports whether nothing failed or errored.
func (s *Summary) OK() bool {
	return s.Failed == 0 && s.Errored == 0
}

type Failure struct {
	Case    string `json:"case"`
	Message string `json:"message"`
}

// NewSummary condenses a run result.
func NewSummary(result *runner.RunResult, environment, baseURL string) *Summary {
	s := &Summary{
		Suite:       result.Suite,
		Environment: environment,
		BaseURL:     baseURL,
		Total:       result.Total(),
		Passed:      result.Passed,
		Failed:      result.Failed,
		Errored:     result.Errored,
		Skipped:     result.Skipped,
		Duration:    result.Duration,
		P95:         result.Latency.P95,
	}
	for _, cr := range result.Results {
		switch cr.Outcome {
		case runner.OutcomeErrored:
			msg := "errored"
			if cr.Error != nil {
				msg = cr.Error.Error()
			}
			s.Failures = append(s.Failures, Failure{Case: cr.Name, Message: msg})
		case runner.OutcomeFailed:
			msg := "failed"
			if a := cr.FirstFailure(); a != nil {
				msg = a.Message
			}
			s.Failures = append(s.Failures, Failure{Case: cr.Name, Message: msg})
		}
	}
	return s
}

// Notifier is the interface for notification services
type Notifier interface {
	Notify(ctx context.Context, summary *Summary) error
	Name() string
}

// Manager applies a Policy in front of a set of notifiers.
type Manager struct {
	notifiers []Notifier
	policy    Policy
}

func NewManager(policy Policy, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		policy:    policy,
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// ShouldNotify decides whether summary is sent. previousOK is the outcome
// of the prior run of the same suite, nil when there is none. Under
// OnRecovery a passing run after a failing one is flagged as a recovery.
func (m *Manager) ShouldNotify(summary *Summary, previousOK *bool) bool {
	ok := summary.OK()
	switch m.policy {
	case Always:
		return true
	case OnSuccess:
		return ok
	case OnRecovery:
		if !ok {
			return true
		}
		if previousOK != nil && !*previousOK {
			summary.IsRecovery = true
			return true
		}
		return false
	default:
		return !ok
	}
}

// Notify sends summary to every notifier if the policy allows it. All
// notifiers are tried; their errors are joined.
func (m *Manager) Notify(ctx context.Context, summary *Summary, previousOK *bool) (bool, error) {
	if len(m.notifiers) == 0 || !m.ShouldNotify(summary, previousOK) {
		return false, nil
	}

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return true, errors.Join(errs...)
}
