package assertions

import (
	"fmt"
	"regexp"

	"github.com/abdul-hamid-achik/apicheck/packages/jsonpath"
)

type Kind int

const (
	KindStatus Kind = iota
	KindEquals
	KindNotNull
	KindMatches
	KindHeader
	KindSchema
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindEquals:
		return "equals"
	case KindNotNull:
		return "not_null"
	case KindMatches:
		return "matches"
	case KindHeader:
		return "header"
	case KindSchema:
		return "schema"
	default:
		return "unknown"
	}
}

// Assertion is one check against a response. Path is a body field path
// for body assertions and a header name for KindHeader.
type Assertion struct {
	Kind     Kind
	Path     string
	Expected any
}

// Status expects an exact HTTP status code.
func Status(code int) Assertion {
	return Assertion{Kind: KindStatus, Expected: code}
}

// Equals expects the value at path to be the given JSON literal. Numbers
// and strings never compare equal to each other.
func Equals(path string, expected any) Assertion {
	return Assertion{Kind: KindEquals, Path: path, Expected: expected}
}

// NotNull expects path to exist with a non-null value.
func NotNull(path string) Assertion {
	return Assertion{Kind: KindNotNull, Path: path}
}

// Matches expects the string at path to match a regular expression.
func Matches(path, pattern string) Assertion {
	return Assertion{Kind: KindMatches, Path: path, Expected: pattern}
}

// HeaderContains expects the named response header to contain substr.
func HeaderContains(name, substr string) Assertion {
	return Assertion{Kind: KindHeader, Path: name, Expected: substr}
}

// MatchesSchema validates the value at path, or the whole body when path
// is empty, against a JSON Schema file.
func MatchesSchema(path, schemaFile string) Assertion {
	return Assertion{Kind: KindSchema, Path: path, Expected: schemaFile}
}

// IsBodyAssertion reports whether the assertion inspects the response body.
func (a Assertion) IsBodyAssertion() bool {
	switch a.Kind {
	case KindEquals, KindNotNull, KindMatches, KindSchema:
		return true
	default:
		return false
	}
}

func (a Assertion) Subject() string {
	switch a.Kind {
	case KindStatus:
		return "status"
	case KindHeader:
		return "header " + a.Path
	case KindSchema:
		if a.Path == "" {
			return "body"
		}
		return a.Path
	default:
		return a.Path
	}
}

func (a Assertion) Operator() string {
	switch a.Kind {
	case KindStatus, KindEquals:
		return "=="
	case KindNotNull:
		return "!= null"
	case KindMatches:
		return "matches"
	case KindHeader:
		return "contains"
	case KindSchema:
		return "schema"
	default:
		return a.Kind.String()
	}
}

func (a Assertion) String() string {
	switch a.Kind {
	case KindNotNull:
		return a.Subject() + " != null"
	case KindEquals:
		if v, err := jsonpath.FromGo(a.Expected); err == nil {
			return fmt.Sprintf("%s == %s", a.Subject(), v)
		}
	}
	return fmt.Sprintf("%s %s %v", a.Subject(), a.Operator(), a.Expected)
}

// Validate checks that the assertion is well-formed without needing a
// response.
func (a Assertion) Validate() error {
	switch a.Kind {
	case KindStatus:
		code, ok := a.Expected.(int)
		if !ok {
			return fmt.Errorf("status assertion needs an integer, got %T", a.Expected)
		}
		if code < 100 || code > 599 {
			return fmt.Errorf("status %d is not a valid HTTP status", code)
		}
		return nil
	case KindEquals, KindNotNull, KindMatches, KindSchema:
		if a.Kind != KindSchema && a.Path == "" {
			return fmt.Errorf("%s assertion needs a field path", a.Kind)
		}
		if _, err := jsonpath.Compile(a.Path); err != nil {
			return err
		}
		switch a.Kind {
		case KindEquals:
			if _, err := jsonpath.FromGo(a.Expected); err != nil {
				return fmt.Errorf("%s: expected value: %w", a.Path, err)
			}
		case KindMatches:
			pattern, ok := a.Expected.(string)
			if !ok {
				return fmt.Errorf("%s: pattern must be a string", a.Path)
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("%s: %w", a.Path, err)
			}
		case KindSchema:
			if s, ok := a.Expected.(string); !ok || s == "" {
				return fmt.Errorf("schema assertion needs a schema file")
			}
		}
		return nil
	case KindHeader:
		if a.Path == "" {
			return fmt.Errorf("header assertion needs a header name")
		}
		if _, ok := a.Expected.(string); !ok {
			return fmt.Errorf("header %s: expected value must be a string", a.Path)
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion kind %d", a.Kind)
	}
}
