package suite

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/apicheck/packages/assertions"
	"github.com/abdul-hamid-achik/apicheck/packages/jsonpath"
	"github.com/tidwall/gjson"
)

// ParseAssertion reads the one-line assertion form used in spreadsheets
// and as a YAML shorthand:
//
//	data.year == 2004
//	data.pantone_value == "15-4020"
//	token != null
//	createdAt matches ^\d{4}-
//	header Content-Type contains application/json
//	data schema schemas/resource.json
//	body schema schemas/page.json
//
// The right-hand side of == is read as a JSON literal; text that is not
// valid JSON is taken as a plain string.
func ParseAssertion(line string) (assertions.Assertion, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return assertions.Assertion{}, fmt.Errorf("empty assertion")
	}

	if rest, ok := strings.CutPrefix(line, "header "); ok {
		name, value, found := strings.Cut(strings.TrimSpace(rest), " contains ")
		if !found || strings.TrimSpace(name) == "" {
			return assertions.Assertion{}, fmt.Errorf("want 'header <name> contains <value>', got %q", line)
		}
		return assertions.HeaderContains(strings.TrimSpace(name), strings.TrimSpace(value)), nil
	}

	op, idx := firstOperator(line)
	if idx < 0 {
		return assertions.Assertion{}, fmt.Errorf("unrecognised assertion %q", line)
	}
	path := strings.TrimSpace(line[:idx])
	rest := strings.TrimSpace(line[idx+len(op):])

	switch op {
	case "==":
		return assertions.Equals(path, ParseLiteral(rest)), nil
	case "!=":
		if rest != "null" {
			return assertions.Assertion{}, fmt.Errorf("only '!= null' is supported, got %q", line)
		}
		return assertions.NotNull(path), nil
	case " matches ":
		return assertions.Matches(path, rest), nil
	default:
		if path == "body" {
			path = ""
		}
		return assertions.MatchesSchema(path, rest), nil
	}
}

var shorthandOperators = []string{"==", "!=", " matches ", " schema "}

// firstOperator finds the leftmost operator so that operands such as
// regular expressions may contain the other operators.
func firstOperator(line string) (string, int) {
	op, idx := "", -1
	for _, candidate := range shorthandOperators {
		if i := strings.Index(line, candidate); i >= 0 && (idx < 0 || i < idx) {
			op, idx = candidate, i
		}
	}
	return op, idx
}

// ParseLiteral reads a JSON literal, falling back to a plain string.
func ParseLiteral(lit string) jsonpath.Value {
	lit = strings.TrimSpace(lit)
	if gjson.Valid(lit) {
		return jsonpath.FromResult(gjson.Parse(lit))
	}
	return jsonpath.StringValue(lit)
}
