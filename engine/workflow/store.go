package workflow

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flowmatic/flowmatic/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Store owns the mapping from workflow id to definition. It follows the
// same load-and-replace discipline as the agent registry but is fed file
// paths by the registry instead of watching the tree itself.
type Store struct {
	log logger.Logger

	mu        sync.RWMutex
	workflows map[string]*Definition
	byFile    map[string]string
}

func NewStore(log logger.Logger) *Store {
	return &Store{
		log:       log,
		workflows: make(map[string]*Definition),
		byFile:    make(map[string]string),
	}
}

// LoadAll scans the workflows subtree under the catalog base path.
func (s *Store) LoadAll(basePath string) error {
	root := filepath.Join(basePath, "workflows")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		s.log.Warn("workflows directory does not exist, store starts empty", "path", root)
		return nil
	}
	files, err := doublestar.FilepathGlob(filepath.Join(root, "**", "*.yaml"))
	if err != nil {
		return err
	}
	for _, file := range files {
		s.LoadFile(file)
	}
	s.log.Info("workflow store initialized", "workflows", s.Count(), "path", root)
	return nil
}

// LoadFile parses and caches one workflow YAML. Parse or validation
// failures are logged and leave any previously cached entry intact.
func (s *Store) LoadFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Error("failed to read workflow file", "file", path, "error", err)
		return
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		s.log.Error("invalid workflow yaml", "file", path, "error", err)
		return
	}
	if err := def.Validate(); err != nil {
		s.log.Error("invalid workflow definition", "file", path, "error", err)
		return
	}
	s.mu.Lock()
	s.workflows[def.ID] = &def
	s.byFile[path] = def.ID
	s.mu.Unlock()
	s.log.Info("loaded workflow", "workflow_id", def.ID, "type", def.NormalizedType(), "file", path)
}

// RemoveFile evicts the workflow that was registered from a deleted file.
func (s *Store) RemoveFile(path string) {
	s.mu.Lock()
	id, ok := s.byFile[path]
	if ok {
		delete(s.byFile, path)
		delete(s.workflows, id)
	}
	s.mu.Unlock()
	if ok {
		s.log.Info("removed workflow after file deletion", "workflow_id", id, "file", path)
	}
}

// Get returns the current definition for a workflow id.
func (s *Store) Get(id string) (*Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.workflows[id]
	return def, ok
}

// GetAll returns a snapshot of all cached definitions.
func (s *Store) GetAll() []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*Definition, 0, len(s.workflows))
	for _, def := range s.workflows {
		all = append(all, def)
	}
	return all
}

// Count returns the number of cached workflows.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}
