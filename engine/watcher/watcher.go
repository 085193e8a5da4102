package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flowmatic/flowmatic/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

// EventType describes what happened to a watched file.
type EventType string

const (
	EventCreated  EventType = "CREATED"
	EventModified EventType = "MODIFIED"
	EventDeleted  EventType = "DELETED"
)

// Event is one file change delivered to the subscriber callback.
type Event struct {
	File string
	Type EventType
}

// prunedDirs are directory names skipped during recursive watching.
var prunedDirs = map[string]bool{
	".git":   true,
	"target": true,
}

// Service watches a directory tree recursively and delivers create, modify
// and delete events for files matching a set of extensions. Events arrive on
// a dedicated goroutine; callbacks must be safe to call from it. The service
// performs no deduplication or debouncing; subscribers are expected to be
// idempotent.
type Service struct {
	log logger.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
}

// NewService creates an idle watcher service.
func NewService(log logger.Logger) *Service {
	return &Service{log: log}
}

// Start begins observing root. A missing root is logged and leaves the
// service inert. Extensions are matched case-insensitively and must include
// the leading dot.
func (s *Service) Start(root string, extensions []string, callback func(Event)) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		s.log.Warn("watch root does not exist, watcher is inert", "root", root, "error", err)
		return
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Error("failed to create file watcher", "error", err)
		return
	}

	if err := addRecursive(fsw, root); err != nil {
		s.log.Error("failed to watch directory tree", "root", root, "error", err)
		_ = fsw.Close()
		return
	}

	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = true
	}

	s.mu.Lock()
	s.fsw = fsw
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(fsw, extSet, callback)
	s.log.Info("file watcher started", "root", root, "extensions", extensions)
}

// Stop tears the watcher down. Safe to call multiple times and before Start.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		fsw, done := s.fsw, s.done
		s.mu.Unlock()
		if fsw == nil {
			return
		}
		_ = fsw.Close()
		<-done
	})
}

func (s *Service) run(fsw *fsnotify.Watcher, extSet map[string]bool, callback func(Event)) {
	defer close(s.done)
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			s.handleEvent(fsw, event, extSet, callback)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			s.log.Error("watcher error", "error", err)
		}
	}
}

func (s *Service) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event, extSet map[string]bool, callback func(Event)) {
	// New directories must be added to the watch set so the tree stays
	// recursive as the catalog grows.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !prunedDirs[filepath.Base(event.Name)] {
				if err := addRecursive(fsw, event.Name); err != nil {
					s.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
				}
			}
			return
		}
	}

	if !extSet[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}

	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventCreated
	case event.Has(fsnotify.Write):
		eventType = EventModified
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		eventType = EventDeleted
	default:
		return
	}

	callback(Event{File: event.Name, Type: eventType})
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if prunedDirs[filepath.Base(path)] && path != root {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
