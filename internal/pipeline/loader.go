package pipeline

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/rowplane/rowplane/internal/schema"
)

//go:embed pipeline.schema.json
var definitionSchema []byte

// Parse decodes and validates a single pipeline definition document.
func Parse(file string, data []byte) (*Definition, error) {
	doc, node, err := schema.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pipeline %s: %w", file, err)
	}
	return decode(file, doc, node)
}

// LoadFile reads a single pipeline definition file.
func LoadFile(path string) (*Definition, error) {
	doc, node, err := schema.ReadDocument(path)
	if err != nil {
		return nil, err
	}
	return decode(path, doc, node)
}

// DuplicateIDError is the configuration error for a pipeline id defined by
// more than one file.
type DuplicateIDError struct {
	ID    string
	Files []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("pipeline %q defined twice (%s)", e.ID, strings.Join(e.Files, " and "))
}

// LoadDir loads every definition file in dir into a MemoryStore. Two files
// defining the same id are rejected.
func LoadDir(dir string) (*MemoryStore, error) {
	files, err := schema.DefinitionFiles(dir)
	if err != nil {
		return nil, err
	}

	store := NewMemoryStore()
	for _, file := range files {
		def, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		if existing, ok := store.Load(def.ID); ok {
			return nil, &DuplicateIDError{ID: def.ID, Files: []string{existing.File, file}}
		}
		store.Add(def)
	}
	return store, nil
}

func decode(file string, doc any, node interface{ Decode(any) error }) (*Definition, error) {
	if err := schema.Validate(file, definitionSchema, doc); err != nil {
		return nil, err
	}

	var def Definition
	if err := node.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline %s: %w", file, err)
	}
	for i, entry := range def.Process {
		def.Process[i] = schema.Normalize(entry)
	}
	def.File = file

	// surface shorthand problems at load time rather than at first use
	if _, err := def.Steps(nil); err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", def.ID, err)
	}
	return &def, nil
}
