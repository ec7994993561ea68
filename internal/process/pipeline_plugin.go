package process

import (
	"context"

	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/row"
)

// PipelinePlugin is the name of the plugin that runs a stored pipeline.
const PipelinePlugin = "pipeline"

// pipelinePlugin runs a stored pipeline with the incoming value as seed.
//
//	body:
//	  - plugin: pipeline
//	    id: clean_body
//	    source: body/0/value
//	    placeholders:
//	      FORMAT: full_html
type pipelinePlugin struct {
	id           string
	placeholders map[string]any
}

func newPipelinePlugin(step pipeline.Step, deps Deps) (Plugin, error) {
	id, _ := step.String("id")
	if id == "" {
		return nil, Configf(PipelinePlugin, "a pipeline id is required")
	}
	if deps.Store == nil {
		return nil, &ConfigurationError{Pipeline: id, Plugin: PipelinePlugin, Message: "no pipeline store configured"}
	}
	if _, ok := deps.Store.Load(id); !ok {
		return nil, &ConfigurationError{Pipeline: id, Plugin: PipelinePlugin, Message: "could not load the process pipeline"}
	}

	placeholders := map[string]any{}
	if raw, ok := step["placeholders"]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, Configf(PipelinePlugin, "placeholders must be a mapping")
		}
		placeholders = m
	}
	return &pipelinePlugin{id: id, placeholders: placeholders}, nil
}

func (p *pipelinePlugin) Transform(ctx context.Context, value any, exec Executable, r *row.Row, destination string) (any, error) {
	return exec.RunPipeline(ctx, r, p.id, p.placeholders, destination, value)
}

// Pipeline implements Composite.
func (p *pipelinePlugin) Pipeline() (string, map[string]any) {
	return p.id, p.placeholders
}
