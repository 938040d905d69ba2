package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/apicheck/packages/assertions"
	"gopkg.in/yaml.v3"
)

// configFileNames are skipped when collecting suites from a directory.
var configFileNames = map[string]bool{
	"apicheck.yaml": true,
	"apicheck.yml":  true,
}

type suiteFile struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Variables   map[string]string `yaml:"variables"`
	Cases       []caseFile        `yaml:"cases"`
}

type caseFile struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Tags        []string          `yaml:"tags"`
	Method      string            `yaml:"method"`
	Path        string            `yaml:"path"`
	Query       map[string]string `yaml:"query"`
	Headers     map[string]string `yaml:"headers"`
	ContentType string            `yaml:"content_type"`
	Body        any               `yaml:"body"`
	RawBody     string            `yaml:"raw_body"`
	Skip        string            `yaml:"skip"`
	Expect      expectFile        `yaml:"expect"`
}

type expectFile struct {
	Status  int               `yaml:"status"`
	Body    []assertionFile   `yaml:"body"`
	Headers map[string]string `yaml:"headers"`
}

// assertionFile accepts either a mapping or the one-line shorthand.
type assertionFile struct {
	Path    string    `yaml:"path"`
	Equals  yaml.Node `yaml:"equals"`
	NotNull bool      `yaml:"not_null"`
	Matches string    `yaml:"matches"`
	Schema  string    `yaml:"schema"`

	shorthand string
}

func (a *assertionFile) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		a.shorthand = node.Value
		return nil
	}
	type plain assertionFile
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*a = assertionFile(p)
	return nil
}

func (a *assertionFile) toAssertion() (assertions.Assertion, error) {
	if a.shorthand != "" {
		return ParseAssertion(a.shorthand)
	}

	set := 0
	var out assertions.Assertion
	if a.Equals.Kind != 0 {
		var expected any
		if err := a.Equals.Decode(&expected); err != nil {
			return out, fmt.Errorf("%s: equals: %w", a.Path, err)
		}
		out = assertions.Equals(a.Path, expected)
		set++
	}
	if a.NotNull {
		out = assertions.NotNull(a.Path)
		set++
	}
	if a.Matches != "" {
		out = assertions.Matches(a.Path, a.Matches)
		set++
	}
	if a.Schema != "" {
		out = assertions.MatchesSchema(a.Path, a.Schema)
		set++
	}

	switch set {
	case 0:
		return out, fmt.Errorf("%s: assertion needs one of equals, not_null, matches or schema", a.Path)
	case 1:
		return out, nil
	default:
		return out, fmt.Errorf("%s: assertion sets more than one of equals, not_null, matches or schema", a.Path)
	}
}

// Load reads a suite from a YAML or Excel file and validates it.
func Load(path string) (*Suite, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return LoadXLSX(path, "")
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read suite: %w", err)
		}
		return Parse(data, path)
	default:
		return nil, fmt.Errorf("unsupported suite file %s (want .yaml, .yml or .xlsx)", path)
	}
}

// Parse decodes a YAML suite. path names the source for error messages and
// schema resolution; it may be empty.
func Parse(data []byte, path string) (*Suite, error) {
	var f suiteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse suite %s: %w", displayName(path), err)
	}

	s := &Suite{
		Name:        f.Name,
		Description: f.Description,
		Path:        path,
		Variables:   f.Variables,
	}
	if path != "" {
		s.Dir = filepath.Dir(path)
	}
	if s.Name == "" {
		s.Name = suiteNameFromPath(path)
	}
	if s.Variables == nil {
		s.Variables = make(map[string]string)
	}

	for i, cf := range f.Cases {
		tc, err := cf.toTestCase()
		if err != nil {
			name := cf.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return nil, &ValidationError{Suite: s.Name, Case: name, Err: err}
		}
		s.Cases = append(s.Cases, tc)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (cf *caseFile) toTestCase() (*TestCase, error) {
	tc := &TestCase{
		Name:         cf.Name,
		Description:  cf.Description,
		Tags:         cf.Tags,
		Method:       strings.ToUpper(cf.Method),
		Path:         cf.Path,
		Query:        cf.Query,
		Headers:      cf.Headers,
		ContentType:  cf.ContentType,
		Body:         cf.Body,
		RawBody:      cf.RawBody,
		ExpectStatus: cf.Expect.Status,
		Skip:         cf.Skip,
	}
	if tc.Method == "" {
		tc.Method = "GET"
	}

	for i := range cf.Expect.Body {
		a, err := cf.Expect.Body[i].toAssertion()
		if err != nil {
			return nil, fmt.Errorf("assertion %d: %w", i+1, err)
		}
		tc.Assertions = append(tc.Assertions, a)
	}

	names := make([]string, 0, len(cf.Expect.Headers))
	for name := range cf.Expect.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tc.Assertions = append(tc.Assertions, assertions.HeaderContains(name, cf.Expect.Headers[name]))
	}

	return tc, nil
}

// Collect expands the given files and directories into suite file paths.
// Directories are walked recursively for .yaml, .yml and .xlsx files,
// skipping apicheck config files and Excel lock files.
func Collect(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if isSuiteFile(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isSuiteFile(name string) bool {
	if configFileNames[strings.ToLower(name)] || strings.HasPrefix(name, "~$") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".xlsx":
		return true
	default:
		return false
	}
}

func suiteNameFromPath(path string) string {
	if path == "" {
		return "suite"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func displayName(path string) string {
	if path == "" {
		return "<inline>"
	}
	return path
}
