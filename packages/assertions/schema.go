package assertions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/abdul-hamid-achik/apicheck/packages/jsonpath"
)

// resolveSchemaPath joins ref onto baseDir and refuses results that leave
// baseDir. With no baseDir, ref is used as given.
func resolveSchemaPath(baseDir, ref string) (string, error) {
	if baseDir == "" {
		return ref, nil
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	base, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %v", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %v", err)
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s is outside allowed directory %s", ref, baseDir)
	}
	return abs, nil
}

type schemaKey struct {
	path    string
	size    int64
	modTime time.Time
}

// compiled schemas, shared by every evaluator; an edited file gets a new key
var schemaCache sync.Map // schemaKey -> *gojsonschema.Schema

func loadSchema(path string) (*gojsonschema.Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %v", err)
	}
	key := schemaKey{path: path, size: info.Size(), modTime: info.ModTime()}
	if s, ok := schemaCache.Load(key); ok {
		return s.(*gojsonschema.Schema), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %v", err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %v", path, err)
	}
	schemaCache.Store(key, s)
	return s, nil
}

func (e *Evaluator) schema(actual jsonpath.Value, expected any) (bool, string) {
	path, err := resolveSchemaPath(e.baseDir, fmt.Sprint(expected))
	if err != nil {
		return false, err.Error()
	}
	s, err := loadSchema(path)
	if err != nil {
		return false, err.Error()
	}

	result, err := s.Validate(gojsonschema.NewStringLoader(actual.String()))
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}
	if result.Valid() {
		return true, ""
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return false, "schema validation failed: " + strings.Join(problems, "; ")
}
