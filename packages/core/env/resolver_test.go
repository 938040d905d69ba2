package env

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	t.Setenv("APICHECK_TEST_KEY", "reqres-free-v1")

	r := NewResolver()
	r.Set("userId", 2)
	r.Set("page", "2")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "/api/users", "/api/users"},
		{"variable", "/api/users/{{userId}}", "/api/users/2"},
		{"spaces", "/api/users?page={{ page }}", "/api/users?page=2"},
		{"env", "{{$APICHECK_TEST_KEY}}", "reqres-free-v1"},
		{"function", `{{base64("a")}}`, "YQ=="},
		{"unknown stays", "/api/users/{{missing}}", "/api/users/{{missing}}"},
		{"unknown env stays", "{{$APICHECK_TEST_UNSET_VAR}}", "{{$APICHECK_TEST_UNSET_VAR}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Resolve(tt.input))
		})
	}
}

func TestResolver_ResolveFunctionValue(t *testing.T) {
	r := NewResolver()
	out := r.Resolve("{{uuid()}}")
	_, err := uuid.Parse(out)
	assert.NoError(t, err)
}

func TestResolver_Warnings(t *testing.T) {
	r := NewResolver()

	var warnings []string
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	r.Resolve("{{nope}} {{random(9, 1)}} {{unknownFn()}}")

	require.Len(t, warnings, 3)
	assert.Equal(t, "unresolved variable: nope", warnings[0])
	assert.Contains(t, warnings[1], "function call random(9, 1) failed")
	assert.Equal(t, "unresolved function call: unknownFn()", warnings[2])
}

func TestResolver_ResolveValue(t *testing.T) {
	r := NewResolver()
	r.SetAll(map[string]string{"job": "leader", "name": "morpheus"})

	body := map[string]any{
		"name": "{{name}}",
		"job":  "{{job}}",
		"tags": []any{"{{job}}", 3, true},
		"meta": map[string]any{"{{name}}": nil},
	}

	got := r.ResolveValue(body)

	assert.Equal(t, map[string]any{
		"name": "morpheus",
		"job":  "leader",
		"tags": []any{"leader", 3, true},
		"meta": map[string]any{"morpheus": nil},
	}, got)
	assert.Equal(t, "{{name}}", body["name"], "input must not be modified")
}

func TestResolver_Unresolved(t *testing.T) {
	t.Setenv("APICHECK_TEST_PRESENT", "1")

	r := NewResolver()
	r.Set("known", "x")

	input := "{{known}}/{{missing}}/{{$APICHECK_TEST_PRESENT}}/{{$APICHECK_TEST_ABSENT}}/{{uuid()}}/{{nope()}}"
	var warned bool
	r.SetWarnFunc(func(string, ...any) { warned = true })

	assert.Equal(t, []string{"missing", "$APICHECK_TEST_ABSENT", "nope()"}, r.Unresolved(input))
	assert.Empty(t, r.Unresolved("/api/users/{{known}}"))
	assert.False(t, warned)
}

func TestResolver_ResolveAll(t *testing.T) {
	r := NewResolver()
	r.Set("key", "reqres-free-v1")

	assert.Nil(t, r.ResolveAll(nil))
	assert.Equal(t,
		map[string]string{"x-api-key": "reqres-free-v1", "Accept": "application/json"},
		r.ResolveAll(map[string]string{"x-api-key": "{{key}}", "Accept": "application/json"}),
	)
}

func TestResolver_Clone(t *testing.T) {
	r := NewResolver()
	r.Set("a", "1")

	c := r.Clone()
	c.Set("a", "2")
	c.Set("b", "3")

	v, _ := r.Lookup("a")
	assert.Equal(t, "1", v)
	_, ok := r.Lookup("b")
	assert.False(t, ok)
	_, ok = c.Lookup("b")
	assert.True(t, ok)
}

func TestResolver_Concurrent(t *testing.T) {
	r := NewResolver()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("v%d", i)
			r.Set(name, i)
			assert.False(t, strings.Contains(r.Resolve("{{"+name+"}}"), "{{"))
		}(i)
	}
	wg.Wait()
}

func TestMergeVariables(t *testing.T) {
	merged := MergeVariables(
		map[string]string{"a": "1", "b": "1"},
		nil,
		map[string]string{"b": "2", "c": "3"},
	)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, merged)
}
