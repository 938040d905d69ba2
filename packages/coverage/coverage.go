// Package coverage reports which endpoints of an API the cases of a suite
// exercise. Endpoints come from an OpenAPI document or from a route table
// such as the reqres catalogue.
package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/apicheck/packages/core/suite"
)

// Report is the coverage of a set of endpoints by a set of cases.
type Report struct {
	TotalEndpoints   int              `json:"totalEndpoints"`
	CoveredEndpoints int              `json:"coveredEndpoints"`
	CoveragePercent  float64          `json:"coveragePercent"`
	Endpoints        []EndpointStatus `json:"endpoints"`
	Unmatched        []string         `json:"unmatched,omitempty"`
}

// EndpointStatus represents the coverage status of an endpoint.
type EndpointStatus struct {
	Method  string   `json:"method"`
	Path    string   `json:"path"`
	Name    string   `json:"name,omitempty"`
	Covered bool     `json:"covered"`
	Cases   []string `json:"cases,omitempty"`
}

// Endpoint is a method plus a path template like /api/users/{id}.
type Endpoint struct {
	Method string
	Path   string
	Name   string

	pattern *regexp.Regexp
}

// Analyzer matches cases against known endpoints.
type Analyzer struct {
	endpoints []Endpoint
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

var (
	templateParam = regexp.MustCompile(`\{[^}]+\}`)
	interpolation = regexp.MustCompile(`\{\{[^}]+\}\}`)
)

// AddEndpoint registers one endpoint.
func (a *Analyzer) AddEndpoint(method, path, name string) {
	parts := templateParam.Split(path, -1)
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	quoted := strings.Join(parts, "[^/]+")
	a.endpoints = append(a.endpoints, Endpoint{
		Method:  strings.ToUpper(method),
		Path:    path,
		Name:    name,
		pattern: regexp.MustCompile("^" + quoted + "$"),
	})
}

// Endpoints returns the registered endpoints.
func (a *Analyzer) Endpoints() []Endpoint {
	return a.endpoints
}

// LoadOpenAPI loads endpoints from an OpenAPI document in YAML or JSON.
func (a *Analyzer) LoadOpenAPI(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read OpenAPI document: %w", err)
	}

	var doc map[string]any
	// YAML is a superset of JSON
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}

	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		return fmt.Errorf("no paths found in OpenAPI document %s", path)
	}

	names := make([]string, 0, len(paths))
	for p := range paths {
		names = append(names, p)
	}
	sort.Strings(names)

	for _, p := range names {
		item, ok := paths[p].(map[string]any)
		if !ok {
			continue
		}
		for _, method := range []string{"get", "post", "put", "patch", "delete"} {
			op, ok := item[method].(map[string]any)
			if !ok {
				continue
			}
			opID, _ := op["operationId"].(string)
			a.AddEndpoint(method, p, opID)
		}
	}
	return nil
}

// casePath strips the query string and turns interpolations into a
// placeholder segment so /api/users/{{id}} still matches /api/users/{id}.
func casePath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	p = interpolation.ReplaceAllString(p, "x")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Analyze reports which endpoints the cases of suites hit. Skipped cases
// count; they are still part of the suite.
func (a *Analyzer) Analyze(suites ...*suite.Suite) *Report {
	report := &Report{TotalEndpoints: len(a.endpoints)}
	hits := make([][]string, len(a.endpoints))

	for _, s := range suites {
		for _, tc := range s.Cases {
			path := casePath(tc.Path)
			matched := false
			for i, e := range a.endpoints {
				if e.Method == tc.Method && e.pattern.MatchString(path) {
					hits[i] = append(hits[i], tc.Name)
					matched = true
					break
				}
			}
			if !matched {
				report.Unmatched = append(report.Unmatched, fmt.Sprintf("%s (%s %s)", tc.Name, tc.Method, tc.Path))
			}
		}
	}

	for i, e := range a.endpoints {
		status := EndpointStatus{
			Method:  e.Method,
			Path:    e.Path,
			Name:    e.Name,
			Covered: len(hits[i]) > 0,
			Cases:   hits[i],
		}
		if status.Covered {
			report.CoveredEndpoints++
		}
		report.Endpoints = append(report.Endpoints, status)
	}

	if report.TotalEndpoints > 0 {
		report.CoveragePercent = float64(report.CoveredEndpoints) / float64(report.TotalEndpoints) * 100
	}

	sort.SliceStable(report.Endpoints, func(i, j int) bool {
		if report.Endpoints[i].Path != report.Endpoints[j].Path {
			return report.Endpoints[i].Path < report.Endpoints[j].Path
		}
		return report.Endpoints[i].Method < report.Endpoints[j].Method
	})

	return report
}

// FormatConsole formats the report for console output.
func (r *Report) FormatConsole() string {
	var sb strings.Builder

	sb.WriteString("\nEndpoint coverage\n")
	sb.WriteString("=================\n\n")
	fmt.Fprintf(&sb, "Covered: %d/%d (%.1f%%)\n\n", r.CoveredEndpoints, r.TotalEndpoints, r.CoveragePercent)

	for _, e := range r.Endpoints {
		mark := "[ ]"
		if e.Covered {
			mark = "[x]"
		}
		fmt.Fprintf(&sb, "  %s %-6s %s", mark, e.Method, e.Path)
		if len(e.Cases) > 0 {
			fmt.Fprintf(&sb, "  %s", strings.Join(e.Cases, ", "))
		}
		sb.WriteString("\n")
	}

	if len(r.Unmatched) > 0 {
		sb.WriteString("\nCases outside the known endpoints:\n")
		for _, u := range r.Unmatched {
			fmt.Fprintf(&sb, "  - %s\n", u)
		}
	}

	return sb.String()
}

// FormatJSON formats the report as JSON.
func (r *Report) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
