package server

import (
	"io"
	"net/http"

	"github.com/flowmatic/flowmatic/engine/agent"
	"github.com/flowmatic/flowmatic/engine/job"
	"github.com/flowmatic/flowmatic/engine/workflow"
	"github.com/flowmatic/flowmatic/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Submitter hands a workflow run off for asynchronous execution.
type Submitter interface {
	Submit(workflowID, input string) string
}

// JobReader answers status polls.
type JobReader interface {
	Get(id string) job.Job
}

// AgentCatalog lists the registered agent definitions.
type AgentCatalog interface {
	GetAll() []*agent.Definition
}

// WorkflowCatalog lists the registered workflow definitions.
type WorkflowCatalog interface {
	GetAll() []*workflow.Definition
}

// Handlers binds the HTTP routes to the engine components.
type Handlers struct {
	submitter Submitter
	jobs      JobReader
	agents    AgentCatalog
	workflows WorkflowCatalog
	log       logger.Logger
}

func NewHandlers(submitter Submitter, jobs JobReader, agents AgentCatalog, workflows WorkflowCatalog, log logger.Logger) *Handlers {
	return &Handlers{
		submitter: submitter,
		jobs:      jobs,
		agents:    agents,
		workflows: workflows,
		log:       log,
	}
}

type jobResponse struct {
	JobID  string  `json:"jobId"`
	Status string  `json:"status"`
	Result *string `json:"result"`
}

func toJobResponse(j job.Job) jobResponse {
	resp := jobResponse{JobID: j.ID, Status: string(j.Status)}
	if j.Result != "" {
		resp.Result = &j.Result
	}
	return resp
}

// Submit accepts an opaque request body as the workflow input and returns
// the job id immediately. Execution happens on the worker pool.
func (h *Handlers) Submit(c *gin.Context) {
	workflowID := c.Param("workflowId")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	jobID := h.submitter.Submit(workflowID, string(body))
	c.JSON(http.StatusAccepted, jobResponse{
		JobID:  jobID,
		Status: string(job.StatusPending),
		Result: nil,
	})
}

// Status returns the current job snapshot. Unknown ids answer with a
// synthetic FAILED record rather than 404, so pollers handle one shape.
func (h *Handlers) Status(c *gin.Context) {
	j := h.jobs.Get(c.Param("jobId"))
	c.JSON(http.StatusOK, toJobResponse(j))
}

type workflowSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// ListWorkflows projects the workflow catalog.
func (h *Handlers) ListWorkflows(c *gin.Context) {
	defs := h.workflows.GetAll()
	out := make([]workflowSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, workflowSummary{
			ID:   def.ID,
			Name: def.Name,
			Type: string(def.NormalizedType()),
		})
	}
	c.JSON(http.StatusOK, out)
}

type agentSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	AllowedTools []string `json:"allowedTools"`
}

// ListAgents projects the agent catalog. Prompts, model configuration, and
// metadata never cross this boundary.
func (h *Handlers) ListAgents(c *gin.Context) {
	defs := h.agents.GetAll()
	out := make([]agentSummary, 0, len(defs))
	for _, def := range defs {
		tools := def.AllowedTools
		if tools == nil {
			tools = []string{}
		}
		out = append(out, agentSummary{
			ID:           def.ID,
			Name:         def.Name,
			Description:  def.Description,
			AllowedTools: tools,
		})
	}
	c.JSON(http.StatusOK, out)
}

// Health is a liveness probe with catalog counts.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"agents":    len(h.agents.GetAll()),
		"workflows": len(h.workflows.GetAll()),
	})
}
