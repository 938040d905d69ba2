package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/apicheck/packages/builtin"
)

var placeholder = regexp.MustCompile(`\{\{([^}]+)\}\}`)

type WarnFunc func(format string, args ...any)

// Resolver expands {{...}} placeholders. A placeholder names a variable,
// an OS environment variable ({{$HOME}}) or a builtin call ({{uuid()}}).
// Unknown placeholders are left in place and reported through the
// WarnFunc. It is safe for concurrent use.
type Resolver struct {
	mu       sync.RWMutex
	vars     map[string]any
	funcs    *builtin.Registry
	warnFunc WarnFunc
}

func NewResolver() *Resolver {
	return &Resolver{
		vars:  make(map[string]any),
		funcs: builtin.NewRegistry(),
	}
}

func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) Set(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vars[name] = value
}

// SetAll adds the string variables that config and .env files produce.
func (r *Resolver) SetAll(vars map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.vars[k] = v
	}
}

func (r *Resolver) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[name]
	return v, ok
}

// eval resolves one placeholder expression. problem explains a failure.
func (r *Resolver) eval(expr string) (value string, ok bool, problem string) {
	switch {
	case strings.HasPrefix(expr, "$"):
		if v, ok := os.LookupEnv(expr[1:]); ok {
			return v, true, ""
		}
		return "", false, "unresolved environment variable: " + expr

	case strings.Contains(expr, "("):
		result, ok, err := r.funcs.Call(expr)
		if err != nil {
			return "", false, fmt.Sprintf("function call %s failed: %v", expr, err)
		}
		if !ok {
			return "", false, "unresolved function call: " + expr
		}
		return fmt.Sprint(result), true, ""
	}

	if v, ok := r.Lookup(expr); ok {
		return fmt.Sprint(v), true, ""
	}
	return "", false, "unresolved variable: " + expr
}

func (r *Resolver) Resolve(input string) string {
	return placeholder.ReplaceAllStringFunc(input, func(match string) string {
		value, ok, problem := r.eval(strings.TrimSpace(match[2 : len(match)-2]))
		if ok {
			return value
		}
		r.mu.RLock()
		warn := r.warnFunc
		r.mu.RUnlock()
		if warn != nil {
			warn("%s", problem)
		}
		return match
	})
}

func (r *Resolver) ResolveAll(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = r.Resolve(v)
	}
	return out
}

// ResolveValue expands placeholders in every string of a decoded JSON or
// YAML value. Maps and slices are copied; the input is left untouched.
func (r *Resolver) ResolveValue(v any) any {
	switch t := v.(type) {
	case string:
		return r.Resolve(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[r.Resolve(k)] = r.ResolveValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = r.ResolveValue(item)
		}
		return out
	default:
		return v
	}
}

// Unresolved lists the placeholders in input that cannot be resolved, in
// order of appearance. Nothing is reported to the WarnFunc.
func (r *Resolver) Unresolved(input string) []string {
	var missing []string
	for _, m := range placeholder.FindAllStringSubmatch(input, -1) {
		expr := strings.TrimSpace(m[1])
		if _, ok, _ := r.eval(expr); !ok {
			missing = append(missing, expr)
		}
	}
	return missing
}

// Clone copies the variables and the WarnFunc. Runs work on a clone so
// suite variables never leak between suites.
func (r *Resolver) Clone() *Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewResolver()
	for k, v := range r.vars {
		c.vars[k] = v
	}
	c.warnFunc = r.warnFunc
	return c
}

// MergeVariables combines variable maps; later sources win.
func MergeVariables(sources ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, src := range sources {
		for k, v := range src {
			out[k] = v
		}
	}
	return out
}
