// Package migration loads migration definitions and runs them: rows are read
// from the source, processed property by property, written to the
// destination and recorded in the identity map.
package migration

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/schema"
)

//go:embed migration.schema.json
var definitionSchema []byte

// Definition describes one migration.
//
//	id: articles
//	source:
//	  plugin: csv
//	  ids: [nid]
//	  path: articles.csv
//	destination:
//	  plugin: table
//	  ids: [id]
//	  table: article
//	process:
//	  id: nid
//	  title:
//	    - title
//	    - plugin: format
//	      operation: trim
//	dependencies: [users]
type Definition struct {
	ID                string
	Label             string
	Source            PluginConfig
	Destination       PluginConfig
	Process           []Property
	TrackLastImported bool
	StoreRowData      bool
	Dependencies      []string

	// File the definition was loaded from, empty for in-memory definitions.
	File string
}

// PluginConfig is a source or destination section: the plugin name, its key
// fields and every other key as plugin options.
type PluginConfig struct {
	Plugin  string
	IDs     []string
	Options map[string]any
}

// Property is the process pipeline of one destination property. Properties
// run in the order they are declared.
type Property struct {
	Name  string
	Steps []pipeline.Step
}

type rawDefinition struct {
	ID                string    `yaml:"id"`
	Label             string    `yaml:"label"`
	Source            yaml.Node `yaml:"source"`
	Destination       yaml.Node `yaml:"destination"`
	Process           yaml.Node `yaml:"process"`
	TrackLastImported bool      `yaml:"track_last_imported"`
	StoreRowData      bool      `yaml:"store_row_data"`
	Dependencies      []string  `yaml:"dependencies"`
}

// Parse decodes and validates a single migration definition document.
func Parse(file string, data []byte) (*Definition, error) {
	doc, node, err := schema.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse migration %s: %w", file, err)
	}
	return decode(file, doc, node)
}

// LoadFile reads a single migration definition file.
func LoadFile(path string) (*Definition, error) {
	doc, node, err := schema.ReadDocument(path)
	if err != nil {
		return nil, err
	}
	return decode(path, doc, node)
}

func decode(file string, doc any, node *yaml.Node) (*Definition, error) {
	if err := schema.Validate(file, definitionSchema, doc); err != nil {
		return nil, err
	}

	var raw rawDefinition
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode migration %s: %w", file, err)
	}

	def := &Definition{
		ID:                raw.ID,
		Label:             raw.Label,
		TrackLastImported: raw.TrackLastImported,
		StoreRowData:      raw.StoreRowData,
		Dependencies:      raw.Dependencies,
		File:              file,
	}

	var err error
	if def.Source, err = decodePlugin(&raw.Source); err != nil {
		return nil, fmt.Errorf("migration %q source: %w", def.ID, err)
	}
	if def.Destination, err = decodePlugin(&raw.Destination); err != nil {
		return nil, fmt.Errorf("migration %q destination: %w", def.ID, err)
	}
	if def.Process, err = decodeProcess(&raw.Process); err != nil {
		return nil, fmt.Errorf("migration %q: %w", def.ID, err)
	}
	return def, nil
}

func decodePlugin(node *yaml.Node) (PluginConfig, error) {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return PluginConfig{}, err
	}
	m = schema.Normalize(m).(map[string]any)

	cfg := PluginConfig{Options: map[string]any{}}
	cfg.Plugin, _ = m["plugin"].(string)
	ids, _ := m["ids"].([]any)
	for _, id := range ids {
		cfg.IDs = append(cfg.IDs, fmt.Sprint(id))
	}
	for k, v := range m {
		if k != "plugin" && k != "ids" {
			cfg.Options[k] = v
		}
	}
	return cfg, nil
}

// decodeProcess walks the process mapping node so that declaration order
// survives decoding.
func decodeProcess(node *yaml.Node) ([]Property, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("process must be a mapping")
	}

	var props []Property
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value

		var entry any
		if err := node.Content[i+1].Decode(&entry); err != nil {
			return nil, fmt.Errorf("process %q: %w", name, err)
		}
		steps, err := pipeline.NormalizeEntry(schema.Normalize(entry), nil)
		if err != nil {
			return nil, fmt.Errorf("process %q: %w", name, err)
		}
		props = append(props, Property{Name: name, Steps: steps})
	}
	return props, nil
}
