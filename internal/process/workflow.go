package process

import (
	"context"
	"fmt"

	"github.com/rowplane/rowplane/internal/pipeline"
	"github.com/rowplane/rowplane/internal/row"
)

// workflowState returns the incoming state when it is one of the configured
// states. Otherwise the state is derived from the row's status property:
// published when the status is 1, unpublished in any other case. A state whose
// published flag disagrees with the row status drops the row.
//
//	moderation_state:
//	  - plugin: workflow_state
//	    source: moderation_state
//	    states:
//	      draft: false
//	      published: true
//	      archived: false
type workflowState struct {
	states      map[string]bool
	published   string
	unpublished string
	status      string
}

func newWorkflowState(step pipeline.Step, _ Deps) (Plugin, error) {
	rawStates, ok := step["states"].(map[string]any)
	if !ok || len(rawStates) == 0 {
		return nil, Configf(step.Plugin(), "states must map each state name to its published flag")
	}
	p := &workflowState{
		states:      make(map[string]bool, len(rawStates)),
		published:   "published",
		unpublished: "draft",
		status:      "status",
	}
	for name, flag := range rawStates {
		published, ok := flag.(bool)
		if !ok {
			return nil, Configf(step.Plugin(), "published flag of state %q must be a boolean", name)
		}
		p.states[name] = published
	}

	for key, target := range map[string]*string{
		"published_state":   &p.published,
		"unpublished_state": &p.unpublished,
		"status_property":   &p.status,
	} {
		if raw, ok := step[key]; ok {
			s, ok := raw.(string)
			if !ok || s == "" {
				return nil, Configf(step.Plugin(), "%s must be a non-empty string", key)
			}
			*target = s
		}
	}

	if _, ok := p.states[p.published]; !ok {
		return nil, Configf(step.Plugin(), "published_state %q is not a configured state", p.published)
	}
	if _, ok := p.states[p.unpublished]; !ok {
		return nil, Configf(step.Plugin(), "unpublished_state %q is not a configured state", p.unpublished)
	}
	return p, nil
}

func (p *workflowState) Transform(_ context.Context, value any, _ Executable, r *row.Row, _ string) (any, error) {
	if value == nil {
		value = ""
	}
	state, ok := value.(string)
	if !ok {
		return nil, Fatalf("%#v is not a string", value)
	}

	statusValue, _ := r.SourceProperty(p.status)
	rowPublished := isPublishedStatus(statusValue)

	if _, valid := p.states[state]; !valid {
		if rowPublished {
			state = p.published
		} else {
			state = p.unpublished
		}
	}

	if p.states[state] != rowPublished {
		return nil, Skipf("status %s does not match workflow state %q", row.Stringify(statusValue), state)
	}
	return state, nil
}

func isPublishedStatus(v any) bool {
	switch s := fmt.Sprint(v); s {
	case "1", "true":
		return true
	default:
		return false
	}
}
