package workflow

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatic/flowmatic/engine/agent"
	"github.com/flowmatic/flowmatic/engine/core"
	"github.com/flowmatic/flowmatic/engine/llm"
	"github.com/flowmatic/flowmatic/engine/registry"
	"github.com/flowmatic/flowmatic/pkg/logger"
)

type stubAgents map[string]*agent.Definition

func (s stubAgents) Get(id string) (*agent.Definition, bool) {
	def, ok := s[id]
	return def, ok
}

// chatFunc is a deterministic ChatModel for tests. It receives the step
// input with the system prompt and prompt framing already stripped.
type chatFunc func(input string) (string, error)

type stubModel struct {
	fn    chatFunc
	mu    sync.Mutex
	calls int
}

func (m *stubModel) Chat(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	input := prompt
	if idx := strings.LastIndex(prompt, "User Input:\n"); idx >= 0 {
		input = prompt[idx+len("User Input:\n"):]
	}
	return m.fn(input)
}

func (m *stubModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// stubModels routes GetModel by model name, one stub per agent.
type stubModels map[string]*stubModel

func (s stubModels) GetModel(_ context.Context, cfg core.ModelConfig) (llm.ChatModel, error) {
	model, ok := s[cfg.Name]
	if !ok {
		return nil, core.NewError(nil, llm.ErrCodeUnsupportedProvider, nil)
	}
	return model, nil
}

func testAgent(id string) *agent.Definition {
	return &agent.Definition{
		ID:    id,
		Model: core.ModelConfig{Provider: core.ProviderOpenAI, Name: id + "-model"},
	}
}

func storeWith(t *testing.T, defs ...*Definition) *Store {
	t.Helper()
	store := NewStore(logger.GetDefault())
	for _, def := range defs {
		require.NoError(t, def.Validate())
		store.workflows[def.ID] = def
	}
	return store
}

func TestEngine_Run_Chain(t *testing.T) {
	logger.InitForTests()
	ctx := context.Background()

	t.Run("Should chain steps with templates and context propagation", func(t *testing.T) {
		store := storeWith(t, &Definition{
			ID:   "grade-essay",
			Type: TypeChain,
			Steps: []Step{
				{ID: "step1", AgentID: "summarizer", InputSource: InputSourceUserInput},
				{ID: "step2", AgentID: "grader", InputTemplate: "score {{step1}} for {{USER_INPUT}}"},
			},
		})
		agents := stubAgents{"summarizer": testAgent("summarizer"), "grader": testAgent("grader")}
		models := stubModels{
			"summarizer-model": {fn: func(in string) (string, error) { return "S1(" + in + ")", nil }},
			"grader-model":     {fn: func(in string) (string, error) { return "S2(" + in + ")", nil }},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "grade-essay", "essay")
		require.NoError(t, err)
		assert.Equal(t, "S2(score S1(essay) for essay)", out)
	})

	t.Run("Should produce identical output across repeated runs", func(t *testing.T) {
		store := storeWith(t, &Definition{
			ID:    "echo",
			Type:  TypeChain,
			Steps: []Step{{ID: "s", AgentID: "echoer"}},
		})
		agents := stubAgents{"echoer": testAgent("echoer")}
		models := stubModels{
			"echoer-model": {fn: func(in string) (string, error) { return "out(" + in + ")", nil }},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		first, err := engine.Run(ctx, "echo", "same input")
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := engine.Run(ctx, "echo", "same input")
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("Should leave unknown template keys literal", func(t *testing.T) {
		store := storeWith(t, &Definition{
			ID:    "flow",
			Type:  TypeChain,
			Steps: []Step{{ID: "s", AgentID: "echoer", InputTemplate: "{{USER_INPUT}} and {{missing}}"}},
		})
		agents := stubAgents{"echoer": testAgent("echoer")}
		models := stubModels{
			"echoer-model": {fn: func(in string) (string, error) { return in, nil }},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "flow", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello and {{missing}}", out)
	})

	t.Run("Should pass the previous output by default", func(t *testing.T) {
		store := storeWith(t, &Definition{
			ID:   "flow",
			Type: TypeChain,
			Steps: []Step{
				{ID: "s1", AgentID: "echoer"},
				{ID: "s2", AgentID: "echoer"},
			},
		})
		agents := stubAgents{"echoer": testAgent("echoer")}
		models := stubModels{
			"echoer-model": {fn: func(in string) (string, error) { return in + "+", nil }},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "flow", "x")
		require.NoError(t, err)
		assert.Equal(t, "x++", out)
	})

	t.Run("Should strip response fences between steps", func(t *testing.T) {
		store := storeWith(t, &Definition{
			ID:    "flow",
			Type:  TypeChain,
			Steps: []Step{{ID: "s", AgentID: "fencer"}},
		})
		agents := stubAgents{"fencer": testAgent("fencer")}
		models := stubModels{
			"fencer-model": {fn: func(string) (string, error) { return "```json\n{\"a\": 1}\n```", nil }},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "flow", "x")
		require.NoError(t, err)
		assert.Equal(t, `{"a": 1}`, out)
	})

	t.Run("Should fail with workflow_not_found for unknown ids", func(t *testing.T) {
		engine := NewEngine(storeWith(t), stubAgents{}, stubModels{}, logger.GetDefault())
		_, err := engine.Run(ctx, "ghost", "x")
		require.Error(t, err)
		assert.True(t, core.IsCode(err, ErrCodeWorkflowNotFound))
	})

	t.Run("Should fail with agent_not_found for unresolved agents", func(t *testing.T) {
		store := storeWith(t, &Definition{
			ID:    "flow",
			Type:  TypeChain,
			Steps: []Step{{ID: "s", AgentID: "missing"}},
		})
		engine := NewEngine(store, stubAgents{}, stubModels{}, logger.GetDefault())
		_, err := engine.Run(ctx, "flow", "x")
		require.Error(t, err)
		assert.True(t, core.IsCode(err, ErrCodeAgentNotFound))
	})

	t.Run("Should classify a provider 429 as a retryable failure", func(t *testing.T) {
		store := storeWith(t, &Definition{
			ID:    "flow",
			Type:  TypeChain,
			Steps: []Step{{ID: "s", AgentID: "limited"}},
		})
		agents := stubAgents{"limited": testAgent("limited")}
		models := stubModels{
			"limited-model": {fn: func(string) (string, error) {
				return "", errors.New("API returned unexpected status code: 429")
			}},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		_, err := engine.Run(ctx, "flow", "x")
		require.Error(t, err)
		execErr, ok := llm.IsExecutionError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusTooManyRequests, execErr.StatusCode)
		assert.True(t, execErr.Retryable)
		assert.Contains(t, execErr.Message, "Rate limit")
	})
}

func TestEngine_Run_Router(t *testing.T) {
	logger.InitForTests()
	ctx := context.Background()

	routerDef := func() *Definition {
		return &Definition{
			ID:             "router-flow",
			Type:           TypeRouter,
			ManagerAgentID: "manager",
			AllowedAgents:  []string{"worker"},
		}
	}

	t.Run("Should return the input unchanged when the manager finishes immediately", func(t *testing.T) {
		store := storeWith(t, routerDef())
		worker := &stubModel{fn: func(in string) (string, error) { return in + "!", nil }}
		agents := stubAgents{"manager": testAgent("manager"), "worker": testAgent("worker")}
		models := stubModels{
			"manager-model": {fn: func(string) (string, error) { return `{"next_agent":"FINISH"}`, nil }},
			"worker-model":  worker,
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "router-flow", "x")
		require.NoError(t, err)
		assert.Equal(t, "x", out)
		assert.Zero(t, worker.callCount())
	})

	t.Run("Should run one worker then finish", func(t *testing.T) {
		store := storeWith(t, routerDef())
		decisions := []string{`{"next_agent":"worker"}`, `{"next_agent":"FINISH"}`}
		call := 0
		agents := stubAgents{"manager": testAgent("manager"), "worker": testAgent("worker")}
		models := stubModels{
			"manager-model": {fn: func(string) (string, error) {
				d := decisions[call]
				call++
				return d, nil
			}},
			"worker-model": {fn: func(in string) (string, error) { return in + "!", nil }},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "router-flow", "hi")
		require.NoError(t, err)
		assert.Equal(t, "hi!", out)
	})

	t.Run("Should treat a malformed decision as FINISH", func(t *testing.T) {
		store := storeWith(t, routerDef())
		worker := &stubModel{fn: func(in string) (string, error) { return in + "!", nil }}
		agents := stubAgents{"manager": testAgent("manager"), "worker": testAgent("worker")}
		models := stubModels{
			"manager-model": {fn: func(string) (string, error) { return "I don't know", nil }},
			"worker-model":  worker,
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "router-flow", "payload")
		require.NoError(t, err)
		assert.Equal(t, "payload", out)
		assert.Zero(t, worker.callCount())
	})

	t.Run("Should accept FINISH case-insensitively", func(t *testing.T) {
		store := storeWith(t, routerDef())
		agents := stubAgents{"manager": testAgent("manager")}
		models := stubModels{
			"manager-model": {fn: func(string) (string, error) { return `{"next_agent":"finish"}`, nil }},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "router-flow", "x")
		require.NoError(t, err)
		assert.Equal(t, "x", out)
	})

	t.Run("Should strip fences around the manager decision", func(t *testing.T) {
		store := storeWith(t, routerDef())
		agents := stubAgents{"manager": testAgent("manager")}
		models := stubModels{
			"manager-model": {fn: func(string) (string, error) {
				return "```json\n{\"next_agent\":\"FINISH\"}\n```", nil
			}},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "router-flow", "x")
		require.NoError(t, err)
		assert.Equal(t, "x", out)
	})

	t.Run("Should include the allowed list in the routing prompt", func(t *testing.T) {
		store := storeWith(t, routerDef())
		var seenPrompt string
		agents := stubAgents{"manager": testAgent("manager")}
		models := stubModels{
			"manager-model": {fn: func(in string) (string, error) {
				seenPrompt = in
				return `{"next_agent":"FINISH"}`, nil
			}},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		_, err := engine.Run(ctx, "router-flow", "the payload")
		require.NoError(t, err)
		assert.Contains(t, seenPrompt, "the payload")
		assert.Contains(t, seenPrompt, "[worker]")
		assert.Contains(t, seenPrompt, `"next_agent"`)
	})

	t.Run("Should stop after maxSteps iterations", func(t *testing.T) {
		def := routerDef()
		def.MaxSteps = 2
		store := storeWith(t, def)
		worker := &stubModel{fn: func(in string) (string, error) { return in + "!", nil }}
		agents := stubAgents{"manager": testAgent("manager"), "worker": testAgent("worker")}
		models := stubModels{
			"manager-model": {fn: func(string) (string, error) { return `{"next_agent":"worker"}`, nil }},
			"worker-model":  worker,
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "router-flow", "x")
		require.NoError(t, err)
		assert.Equal(t, "x!!", out)
		assert.Equal(t, 2, worker.callCount())
	})

	t.Run("Should accept an out-of-list choice when enforcement is off", func(t *testing.T) {
		store := storeWith(t, routerDef())
		decisions := []string{`{"next_agent":"outsider"}`, `{"next_agent":"FINISH"}`}
		call := 0
		agents := stubAgents{
			"manager":  testAgent("manager"),
			"outsider": testAgent("outsider"),
		}
		models := stubModels{
			"manager-model": {fn: func(string) (string, error) {
				d := decisions[call]
				call++
				return d, nil
			}},
			"outsider-model": {fn: func(in string) (string, error) { return "visited:" + in, nil }},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault())

		out, err := engine.Run(ctx, "router-flow", "x")
		require.NoError(t, err)
		assert.Equal(t, "visited:x", out)
	})

	t.Run("Should reject an out-of-list choice when enforcement is on", func(t *testing.T) {
		store := storeWith(t, routerDef())
		agents := stubAgents{"manager": testAgent("manager"), "outsider": testAgent("outsider")}
		models := stubModels{
			"manager-model":  {fn: func(string) (string, error) { return `{"next_agent":"outsider"}`, nil }},
			"outsider-model": {fn: func(in string) (string, error) { return in, nil }},
		}
		engine := NewEngine(store, agents, models, logger.GetDefault(),
			WithAllowedAgentEnforcement(true))

		_, err := engine.Run(ctx, "router-flow", "x")
		require.Error(t, err)
		assert.True(t, core.IsCode(err, ErrCodeAgentNotAllowed))
	})
}

func TestEngine_Watch(t *testing.T) {
	logger.InitForTests()

	t.Run("Should reload and evict workflows from published events", func(t *testing.T) {
		base := t.TempDir()
		path := filepath.Join(base, "flow.yaml")
		require.NoError(t, os.WriteFile(path, []byte("id: flow\ntype: CHAIN\nsteps:\n  - stepId: s\n    agentId: a\n"), 0o644))

		store := NewStore(logger.GetDefault())
		engine := NewEngine(store, stubAgents{}, stubModels{}, logger.GetDefault())
		events := make(chan registry.WorkflowFileChanged)
		engine.Watch(events)

		events <- registry.WorkflowFileChanged{Path: path}
		require.Eventually(t, func() bool {
			_, ok := store.Get("flow")
			return ok
		}, time.Second, 10*time.Millisecond)

		require.NoError(t, os.Remove(path))
		events <- registry.WorkflowFileChanged{Path: path}
		require.Eventually(t, func() bool {
			_, ok := store.Get("flow")
			return !ok
		}, time.Second, 10*time.Millisecond)

		close(events)
		engine.Wait()
	})
}
