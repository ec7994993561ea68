package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// DefinitionExtensions are the file extensions recognised as definition files.
var DefinitionExtensions = []string{".yml", ".yaml", ".json"}

// ValidationError lists the schema violations found in one document.
type ValidationError struct {
	File     string
	Problems []string
}

func (e *ValidationError) Error() string {
	name := e.File
	if name == "" {
		name = "document"
	}
	return fmt.Sprintf("%s is invalid: %s", name, strings.Join(e.Problems, "; "))
}

// DefinitionFiles performs a shallow search of dir for definition files and
// returns them sorted by name.
func DefinitionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		for _, allowed := range DefinitionExtensions {
			if ext == allowed {
				files = append(files, filepath.Join(dir, name))
				break
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// ReadDocument reads a YAML or JSON file. It returns the decoded document as
// generic values together with the root YAML node, which keeps mapping order.
func ReadDocument(path string) (any, *yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	doc, node, err := ParseDocument(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, node, nil
}

// ParseDocument decodes YAML (JSON being a subset of it).
func ParseDocument(data []byte) (any, *yaml.Node, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil, fmt.Errorf("empty document")
	}
	root := node.Content[0]

	var doc any
	if err := root.Decode(&doc); err != nil {
		return nil, nil, err
	}
	return Normalize(doc), root, nil
}

// Normalize converts mappings with non-string keys (YAML allows `1: draft`)
// into map[string]any so documents can be encoded as JSON.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = Normalize(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = Normalize(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = Normalize(e)
		}
		return t
	default:
		return t
	}
}

// Validate checks a decoded document against a JSON Schema.
func Validate(file string, schemaJSON []byte, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s for validation: %w", file, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("failed to run schema validation on %s: %w", file, err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{File: file}
	for _, desc := range result.Errors() {
		verr.Problems = append(verr.Problems, desc.String())
	}
	return verr
}
