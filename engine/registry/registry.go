package registry

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flowmatic/flowmatic/engine/agent"
	"github.com/flowmatic/flowmatic/engine/watcher"
	"github.com/flowmatic/flowmatic/pkg/logger"
)

// WorkflowFileChanged is published when a workflow YAML changes on disk.
// The workflow engine drains these instead of watching the tree itself,
// which keeps the registry the single owner of file events.
type WorkflowFileChanged struct {
	Path string
}

// AgentRegistry owns the live map of hydrated agent definitions. It performs
// the initial catalog scan, subscribes to the file watcher, and republishes
// workflow file changes. Readers always see either the previous or the new
// definition of an agent, never a partial one.
type AgentRegistry struct {
	basePath string
	loader   *agent.Loader
	watcher  *watcher.Service
	log      logger.Logger

	mu     sync.RWMutex
	agents map[string]*agent.Definition
	// byFile maps an agent YAML path to the id it registered, so a file
	// deletion can evict the right entry.
	byFile map[string]string

	workflowEvents chan WorkflowFileChanged
	stopOnce       sync.Once
}

// New creates an agent registry rooted at the catalog base path.
func New(basePath string, loader *agent.Loader, watcherSvc *watcher.Service, log logger.Logger) *AgentRegistry {
	return &AgentRegistry{
		basePath:       basePath,
		loader:         loader,
		watcher:        watcherSvc,
		log:            log,
		agents:         make(map[string]*agent.Definition),
		byFile:         make(map[string]string),
		workflowEvents: make(chan WorkflowFileChanged, 64),
	}
}

// Start performs the initial scan and begins watching for changes.
func (r *AgentRegistry) Start() error {
	files, err := doublestar.FilepathGlob(filepath.Join(r.basePath, "**", "*.yaml"))
	if err != nil {
		return err
	}
	for _, file := range files {
		r.dispatchLoad(file)
	}
	r.log.Info("agent registry initialized", "agents", r.Count(), "base_path", r.basePath)

	r.watcher.Start(r.basePath, []string{".yaml", ".md"}, r.handleFileEvent)
	return nil
}

// Stop tears down the watcher and closes the workflow event stream.
func (r *AgentRegistry) Stop() {
	r.stopOnce.Do(func() {
		r.watcher.Stop()
		close(r.workflowEvents)
	})
}

// WorkflowEvents exposes the stream of workflow file changes for the engine.
func (r *AgentRegistry) WorkflowEvents() <-chan WorkflowFileChanged {
	return r.workflowEvents
}

// Get returns the current definition for an agent id.
func (r *AgentRegistry) Get(id string) (*agent.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.agents[id]
	return def, ok
}

// GetAll returns a snapshot of all registered definitions.
func (r *AgentRegistry) GetAll() []*agent.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*agent.Definition, 0, len(r.agents))
	for _, def := range r.agents {
		all = append(all, def)
	}
	return all
}

// Count returns the number of registered agents.
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// handleFileEvent is the watcher callback. It runs on the watcher goroutine
// and must stay idempotent: the watcher delivers duplicates freely.
func (r *AgentRegistry) handleFileEvent(ev watcher.Event) {
	r.log.Debug("file event", "type", ev.Type, "file", ev.File)
	switch {
	case ev.Type == watcher.EventDeleted && isYAML(ev.File):
		r.handleYAMLDeleted(ev.File)
	case ev.Type == watcher.EventDeleted && isMarkdown(ev.File):
		// Reload owners so downstream prompts reflect the absent include.
		r.reloadOwnerConfigs(ev.File)
	case isYAML(ev.File):
		r.dispatchLoad(ev.File)
	case isMarkdown(ev.File):
		r.reloadOwnerConfigs(ev.File)
	}
}

// dispatchLoad routes a YAML file by its subtree: agent files are loaded
// here, workflow files are republished to the engine.
func (r *AgentRegistry) dispatchLoad(path string) {
	switch {
	case inSubtree(path, "agents"):
		r.loadAndRegister(path)
	case inSubtree(path, "workflows"):
		r.workflowEvents <- WorkflowFileChanged{Path: path}
	default:
		r.log.Debug("ignoring yaml outside agents/workflows subtrees", "file", path)
	}
}

// loadAndRegister hydrates one agent file and atomically replaces its cache
// entry. A load failure is logged and never evicts a previously valid entry.
func (r *AgentRegistry) loadAndRegister(path string) {
	def, err := r.loader.Load(path)
	if err != nil {
		recordReload(outcomeError)
		r.log.Error("failed to load agent", "file", path, "error", err)
		return
	}
	r.mu.Lock()
	r.agents[def.ID] = def
	r.byFile[path] = def.ID
	r.mu.Unlock()
	recordReload(outcomeSuccess)
	r.log.Info("loaded agent", "agent_id", def.ID, "file", path)
}

// handleYAMLDeleted evicts the entry registered from the deleted file.
// Workflow file deletions are republished so the engine can evict its side.
func (r *AgentRegistry) handleYAMLDeleted(path string) {
	if inSubtree(path, "workflows") {
		r.workflowEvents <- WorkflowFileChanged{Path: path}
		return
	}
	r.mu.Lock()
	id, ok := r.byFile[path]
	if ok {
		delete(r.byFile, path)
		delete(r.agents, id)
	}
	r.mu.Unlock()
	if ok {
		r.log.Info("removed agent after config deletion", "agent_id", id, "file", path)
	}
}

// reloadOwnerConfigs reloads every agent YAML that could own a changed
// prompt file. Prompts live either alongside the YAML or one directory
// below it, so both candidate directories are scanned.
func (r *AgentRegistry) reloadOwnerConfigs(promptPath string) {
	seen := make(map[string]bool)
	for _, dir := range ownerCandidateDirs(promptPath) {
		matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			continue
		}
		for _, yamlFile := range matches {
			if seen[yamlFile] {
				continue
			}
			seen[yamlFile] = true
			r.log.Info("prompt changed, reloading owner", "prompt", filepath.Base(promptPath), "owner", yamlFile)
			r.dispatchLoad(yamlFile)
		}
	}
}

func ownerCandidateDirs(promptPath string) []string {
	parent := filepath.Dir(promptPath)
	grandparent := filepath.Dir(parent)
	if grandparent == parent {
		return []string{parent}
	}
	return []string{parent, grandparent}
}

func isYAML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".yaml")
}

func isMarkdown(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}

// inSubtree reports whether path contains the named directory as one of its
// components.
func inSubtree(path, dir string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == dir {
			return true
		}
	}
	return false
}
