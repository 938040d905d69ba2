package runner

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/apicheck/packages/core/suite"
)

// TestLive runs the built-in suite against the real reqres.in service.
// It only runs with APICHECK_LIVE=1.
func TestLive(t *testing.T) {
	if os.Getenv("APICHECK_LIVE") != "1" {
		t.Skip("set APICHECK_LIVE=1 to run against https://reqres.in")
	}

	baseURL := os.Getenv("APICHECK_BASE_URL")
	if baseURL == "" {
		baseURL = "https://reqres.in"
	}

	r := NewRunner(&Config{
		BaseURL: baseURL,
		Headers: map[string]string{"x-api-key": "reqres-free-v1"},
		Timeout: 20 * time.Second,
	})
	result, err := r.Run(context.Background(), suite.Reqres())
	require.NoError(t, err)

	for _, cr := range result.Results {
		assert.Equal(t, OutcomePassed, cr.Outcome, "case %s: %v %v", cr.Name, cr.Error, cr.FirstFailure())
	}
}
