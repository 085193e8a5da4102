package workflow

import (
	"strings"

	"github.com/flowmatic/flowmatic/engine/core"
)

// Type discriminates the two supported topologies.
type Type string

const (
	// TypeChain executes a fixed sequence of steps in declared order.
	TypeChain Type = "CHAIN"
	// TypeRouter lets a manager agent pick the next worker each iteration.
	TypeRouter Type = "ROUTER"
)

// InputSource names where a chain step draws its input from when no
// template is given.
const (
	InputSourceUserInput = "USER_INPUT"
	InputSourcePrevious  = "PREVIOUS"
)

const defaultMaxSteps = 5

// Step is one link of a chain workflow.
type Step struct {
	ID            string `yaml:"stepId" json:"stepId"`
	AgentID       string `yaml:"agentId" json:"agentId"`
	InputSource   string `yaml:"inputSource,omitempty" json:"inputSource,omitempty"`
	InputTemplate string `yaml:"inputTemplate,omitempty" json:"inputTemplate,omitempty"`
}

// Definition is a workflow as declared on disk.
type Definition struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Type        Type   `yaml:"type" json:"type"`

	// Chain topology.
	Steps []Step `yaml:"steps,omitempty" json:"steps,omitempty"`

	// Router topology.
	ManagerAgentID string   `yaml:"managerAgentId,omitempty" json:"managerAgentId,omitempty"`
	AllowedAgents  []string `yaml:"allowedAgents,omitempty" json:"allowedAgents,omitempty"`
	MaxSteps       int      `yaml:"maxSteps,omitempty" json:"maxSteps,omitempty"`
}

// NormalizedType upper-cases the declared type so YAML authors can write
// "chain" or "Chain" interchangeably.
func (d *Definition) NormalizedType() Type {
	return Type(strings.ToUpper(strings.TrimSpace(string(d.Type))))
}

// EffectiveMaxSteps applies the router loop default.
func (d *Definition) EffectiveMaxSteps() int {
	if d.MaxSteps > 0 {
		return d.MaxSteps
	}
	return defaultMaxSteps
}

// Validate checks structural integrity at load time. A duplicate step id
// would make context writes ambiguous, so it is a hard rejection here.
func (d *Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return core.NewError(nil, ErrCodeWorkflowInvalid, map[string]any{
			"reason": "workflow id is required",
		})
	}
	switch d.NormalizedType() {
	case TypeChain:
		return d.validateChain()
	case TypeRouter:
		return d.validateRouter()
	default:
		return core.NewError(nil, ErrCodeWorkflowInvalid, map[string]any{
			"workflow_id": d.ID,
			"reason":      "unknown workflow type",
			"type":        string(d.Type),
		})
	}
}

func (d *Definition) validateChain() error {
	if len(d.Steps) == 0 {
		return core.NewError(nil, ErrCodeWorkflowInvalid, map[string]any{
			"workflow_id": d.ID,
			"reason":      "chain workflow declares no steps",
		})
	}
	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if strings.TrimSpace(step.ID) == "" || strings.TrimSpace(step.AgentID) == "" {
			return core.NewError(nil, ErrCodeWorkflowInvalid, map[string]any{
				"workflow_id": d.ID,
				"reason":      "step requires stepId and agentId",
			})
		}
		if seen[step.ID] {
			return core.NewError(nil, ErrCodeWorkflowInvalid, map[string]any{
				"workflow_id": d.ID,
				"reason":      "duplicate step id",
				"step_id":     step.ID,
			})
		}
		seen[step.ID] = true
	}
	return nil
}

func (d *Definition) validateRouter() error {
	if strings.TrimSpace(d.ManagerAgentID) == "" {
		return core.NewError(nil, ErrCodeWorkflowInvalid, map[string]any{
			"workflow_id": d.ID,
			"reason":      "router workflow requires managerAgentId",
		})
	}
	return nil
}
