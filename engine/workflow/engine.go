package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/flowmatic/flowmatic/engine/agent"
	"github.com/flowmatic/flowmatic/engine/core"
	"github.com/flowmatic/flowmatic/engine/llm"
	"github.com/flowmatic/flowmatic/engine/registry"
	"github.com/flowmatic/flowmatic/pkg/logger"
	"github.com/tidwall/gjson"
)

// AgentSource resolves agent ids to hydrated definitions.
type AgentSource interface {
	Get(id string) (*agent.Definition, bool)
}

// ModelSource produces chat models for an agent's model configuration.
type ModelSource interface {
	GetModel(ctx context.Context, cfg core.ModelConfig) (llm.ChatModel, error)
}

// Engine interprets chain and router workflows. It owns no retry policy:
// failures are classified and surfaced for the job layer to record.
type Engine struct {
	store  *Store
	agents AgentSource
	models ModelSource
	log    logger.Logger

	// enforceAllowedAgents rejects router decisions outside allowedAgents
	// instead of trusting the manager verbatim.
	enforceAllowedAgents bool

	wg sync.WaitGroup
}

// Option configures optional engine behavior.
type Option func(*Engine)

// WithAllowedAgentEnforcement makes the router validate the manager's
// choice against the workflow's allowedAgents list.
func WithAllowedAgentEnforcement(enabled bool) Option {
	return func(e *Engine) { e.enforceAllowedAgents = enabled }
}

func NewEngine(store *Store, agents AgentSource, models ModelSource, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		agents: agents,
		models: models,
		log:    log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Watch drains workflow file-change events published by the agent registry
// until the channel is closed. Deleted files evict their entry, everything
// else reloads in place.
func (e *Engine) Watch(events <-chan registry.WorkflowFileChanged) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for ev := range events {
			if _, err := os.Stat(ev.Path); os.IsNotExist(err) {
				e.store.RemoveFile(ev.Path)
				continue
			}
			e.store.LoadFile(ev.Path)
		}
	}()
}

// Wait blocks until the watch goroutine has drained its channel.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Run executes the named workflow against the initial input and returns the
// final output. Any step failure aborts the run immediately.
func (e *Engine) Run(ctx context.Context, workflowID, initialInput string) (string, error) {
	def, ok := e.store.Get(workflowID)
	if !ok {
		return "", core.NewError(
			fmt.Errorf("workflow not found: %s", workflowID),
			ErrCodeWorkflowNotFound,
			map[string]any{"workflow_id": workflowID},
		)
	}

	log := logger.FromContext(ctx)
	log.Info("starting workflow", "workflow_id", def.ID, "type", def.NormalizedType())

	switch def.NormalizedType() {
	case TypeChain:
		return e.runChain(ctx, def, initialInput)
	case TypeRouter:
		return e.runRouter(ctx, def, initialInput)
	default:
		return "", core.NewError(
			fmt.Errorf("unknown workflow type: %s", def.Type),
			ErrCodeWorkflowInvalid,
			map[string]any{"workflow_id": def.ID},
		)
	}
}

// runChain walks the declared steps in order, threading an execution
// context keyed by step id.
func (e *Engine) runChain(ctx context.Context, def *Definition, initialInput string) (string, error) {
	execCtx := map[string]string{InputSourceUserInput: initialInput}
	current := initialInput

	for _, step := range def.Steps {
		logger.FromContext(ctx).Debug("executing step", "workflow_id", def.ID, "step_id", step.ID)

		stepInput := resolveInput(step, execCtx, current)
		stepOutput, err := e.executeAgent(ctx, step.AgentID, stepInput)
		if err != nil {
			return "", err
		}

		execCtx[step.ID] = stepOutput
		current = stepOutput
	}
	return current, nil
}

// runRouter loops asking the manager agent which worker to call next until
// it signals FINISH or the step budget runs out.
func (e *Engine) runRouter(ctx context.Context, def *Definition, initialInput string) (string, error) {
	log := logger.FromContext(ctx)
	current := initialInput
	maxSteps := def.EffectiveMaxSteps()

	for i := 0; i < maxSteps; i++ {
		routingPrompt := buildRoutingPrompt(def, current)
		decision, err := e.executeAgent(ctx, def.ManagerAgentID, routingPrompt)
		if err != nil {
			return "", err
		}

		nextAgent := parseRouterDecision(decision, log)
		if strings.EqualFold(nextAgent, "FINISH") {
			return current, nil
		}
		if e.enforceAllowedAgents && !contains(def.AllowedAgents, nextAgent) {
			return "", core.NewError(
				fmt.Errorf("manager routed to agent outside the allowed list: %s", nextAgent),
				ErrCodeAgentNotAllowed,
				map[string]any{"workflow_id": def.ID, "agent_id": nextAgent},
			)
		}

		log.Info("router decided to call", "workflow_id", def.ID, "agent_id", nextAgent)
		result, err := e.executeAgent(ctx, nextAgent, current)
		if err != nil {
			return "", err
		}
		current = result
	}
	return current, nil
}

// executeAgent resolves an agent, obtains its model, and performs one chat
// round trip. Responses are post-processed before use; errors are
// classified onto the execution error taxonomy.
func (e *Engine) executeAgent(ctx context.Context, agentID, userMessage string) (string, error) {
	def, ok := e.agents.Get(agentID)
	if !ok {
		return "", core.NewError(
			fmt.Errorf("agent not found: %s", agentID),
			ErrCodeAgentNotFound,
			map[string]any{"agent_id": agentID},
		)
	}

	model, err := e.models.GetModel(ctx, def.Model)
	if err != nil {
		return "", err
	}

	prompt := def.SystemPrompt + "\n\nUser Input:\n" + userMessage
	response, err := model.Chat(ctx, prompt)
	if err != nil {
		execErr := llm.Classify(err, def.Model.Provider)
		logger.FromContext(ctx).Error("agent execution failed",
			"agent_id", agentID, "status_code", execErr.StatusCode, "retryable", execErr.Retryable, "error", execErr.Message)
		return "", execErr
	}
	return llm.PostProcess(response), nil
}

// resolveInput yields a chain step's input. A template wins over the
// declared input source; placeholders missing from the context stay
// literal.
func resolveInput(step Step, execCtx map[string]string, lastOutput string) string {
	if step.InputTemplate != "" {
		resolved := step.InputTemplate
		for key, value := range execCtx {
			resolved = strings.ReplaceAll(resolved, "{{"+key+"}}", value)
		}
		return resolved
	}
	if step.InputSource == InputSourceUserInput {
		return execCtx[InputSourceUserInput]
	}
	return lastOutput
}

func buildRoutingPrompt(def *Definition, currentData string) string {
	return "Analyze this input: " + currentData +
		"\nDecide next step from allowed list: [" + strings.Join(def.AllowedAgents, ", ") + "]" +
		"\nReturn JSON: { \"next_agent\": \"NAME\" } or \"FINISH\""
}

// parseRouterDecision extracts the manager's choice. Anything that is not
// valid JSON with a non-empty next_agent resolves to FINISH, so an
// ambiguous manager can never wedge the loop.
func parseRouterDecision(response string, log logger.Logger) string {
	if !gjson.Valid(response) {
		log.Warn("router decision is not valid json, finishing", "response", response)
		return "FINISH"
	}
	next := gjson.Get(response, "next_agent")
	if !next.Exists() || strings.TrimSpace(next.String()) == "" {
		log.Warn("router decision missing next_agent, finishing")
		return "FINISH"
	}
	return next.String()
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
