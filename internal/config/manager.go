package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Change actions delivered to handlers
const (
	ActionInitialLoad = "initial_load"
	ActionCreate      = "create"
	ActionModify      = "modify"
	ActionDelete      = "delete"
	ActionPoll        = "polling_detected"
	ActionManual      = "manual_reload"
)

// ChangeEvent describes a configuration file that was loaded, changed or removed
type ChangeEvent struct {
	File      string                 `json:"file"`
	Action    string                 `json:"action"`
	Config    map[string]interface{} `json:"config"`
	Timestamp time.Time              `json:"timestamp"`
}

// ChangeHandler is called after a file has been parsed and validated
type ChangeHandler func(event ChangeEvent) error

// Validator rejects a parsed file before handlers see it
type Validator func(map[string]interface{}) error

// Manager watches a directory of YAML/JSON files and notifies handlers when one of
// them changes. A file that fails its validator is never delivered.
type Manager struct {
	dir        string
	configs    map[string]map[string]interface{}
	handlers   map[string][]ChangeHandler
	validators map[string]Validator
	watcher    *fsnotify.Watcher
	logger     *zap.Logger

	mu sync.RWMutex
	// eventMu serializes every load and dispatch so versions of a file are applied in
	// the order they were read
	eventMu   sync.Mutex
	started   bool
	stopCh    chan struct{}
	loopsDone sync.WaitGroup

	pollInterval time.Duration
	// debounce absorbs editors that write a file in several steps
	debounce time.Duration
}

// NewManager creates a manager for dir, creating the directory if needed
func NewManager(dir string, logger *zap.Logger) (*Manager, error) {
	if dir == "" {
		return nil, fmt.Errorf("config directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Manager{
		dir:        dir,
		configs:    make(map[string]map[string]interface{}),
		handlers:   make(map[string][]ChangeHandler),
		validators: make(map[string]Validator),
		watcher:    watcher,
		logger:     logger,
		stopCh:     make(chan struct{}),
		debounce:   50 * time.Millisecond,
	}, nil
}

// RegisterValidator sets the validator for filename (base name)
func (m *Manager) RegisterValidator(filename string, v Validator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators[filename] = v
}

// RegisterHandler adds a change handler for filename (base name)
func (m *Manager) RegisterHandler(filename string, h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[filename] = append(m.handlers[filename], h)
	m.logger.Debug("Configuration handler registered",
		zap.String("filename", filename),
		zap.Int("total_handlers", len(m.handlers[filename])),
	)
}

// EnablePolling turns on a modification-time poll next to fsnotify, for filesystems
// (network mounts, some container volumes) that do not deliver events. Call before Start.
func (m *Manager) EnablePolling(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollInterval = interval
}

// Start loads every file once, synchronously, and then watches for changes.
// Validation errors during the initial load are returned so the caller can refuse to
// start with broken configuration.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.watcher.Add(m.dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	if err := m.loadAll(ctx); err != nil {
		return fmt.Errorf("failed to load initial configs: %w", err)
	}

	m.mu.Lock()
	m.started = true
	loaded := len(m.configs)
	poll := m.pollInterval
	m.mu.Unlock()

	m.loopsDone.Add(1)
	go m.watchLoop()
	if poll > 0 {
		m.loopsDone.Add(1)
		go m.pollLoop(poll)
	}

	m.logger.Info("Configuration manager started",
		zap.String("config_dir", m.dir),
		zap.Int("loaded_configs", loaded),
		zap.Duration("poll_interval", poll),
	)
	return nil
}

// Stop ends watching and waits for the background loops to exit
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return m.watcher.Close()
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	err := m.watcher.Close()
	m.loopsDone.Wait()
	m.logger.Info("Configuration manager stopped")
	return err
}

// GetConfig returns a shallow copy of the last valid content of filename
func (m *Manager) GetConfig(filename string) (map[string]interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[filename]
	if !ok {
		return nil, false
	}
	return copyMap(cfg), true
}

// Reload re-reads filename from disk
func (m *Manager) Reload(filename string) error {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()
	return m.loadFile(filepath.Join(m.dir, filename), ActionManual)
}

func (m *Manager) watchLoop() {
	defer m.loopsDone.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Watch loop panicked", zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-m.stopCh:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) pollLoop(interval time.Duration) {
	defer m.loopsDone.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	modTimes := make(map[string]time.Time)
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.pollOnce(modTimes)
		}
	}
}

func (m *Manager) pollOnce(modTimes map[string]time.Time) {
	err := filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isConfigFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		if info.ModTime().After(modTimes[name]) {
			modTimes[name] = info.ModTime()
			m.eventMu.Lock()
			err := m.loadFile(path, ActionPoll)
			m.eventMu.Unlock()
			if err != nil {
				m.logger.Warn("Polled config file rejected", zap.String("file", name), zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("Error during polling check", zap.Error(err))
	}
}

func (m *Manager) handleEvent(ev fsnotify.Event) {
	if !isConfigFile(ev.Name) {
		return
	}
	m.eventMu.Lock()
	defer m.eventMu.Unlock()

	name := filepath.Base(ev.Name)
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		m.removeFile(name)
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		action := ActionModify
		if ev.Op&fsnotify.Create != 0 {
			action = ActionCreate
		}
		time.Sleep(m.debounce)
		if err := m.loadFile(ev.Name, action); err != nil {
			m.logger.Error("Failed to load config file",
				zap.String("file", name),
				zap.String("action", action),
				zap.Error(err),
			)
		}
	}
}

func (m *Manager) loadAll(ctx context.Context) error {
	return filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != m.dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !isConfigFile(path) {
			return nil
		}
		return m.loadFile(path, ActionInitialLoad)
	})
}

// loadFile parses, validates, stores and dispatches one file. No lock is held while
// reading, validating or running handlers.
func (m *Manager) loadFile(path, action string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	name := filepath.Base(path)
	cfg, err := parse(name, data)
	if err != nil {
		return err
	}

	m.mu.RLock()
	validate := m.validators[name]
	m.mu.RUnlock()
	if validate != nil {
		if err := validate(cfg); err != nil {
			return fmt.Errorf("configuration validation failed for %s: %w", name, err)
		}
	}

	m.mu.Lock()
	m.configs[name] = cfg
	handlers := append([]ChangeHandler(nil), m.handlers[name]...)
	m.mu.Unlock()

	m.dispatch(handlers, ChangeEvent{File: name, Action: action, Config: copyMap(cfg), Timestamp: time.Now()})
	m.logger.Info("Configuration loaded",
		zap.String("filename", name),
		zap.String("action", action),
		zap.Int("keys", len(cfg)),
	)
	return nil
}

func (m *Manager) removeFile(name string) {
	m.mu.Lock()
	last, existed := m.configs[name]
	delete(m.configs, name)
	handlers := append([]ChangeHandler(nil), m.handlers[name]...)
	m.mu.Unlock()
	if !existed {
		return
	}

	m.dispatch(handlers, ChangeEvent{File: name, Action: ActionDelete, Config: copyMap(last), Timestamp: time.Now()})
	m.logger.Info("Configuration file removed", zap.String("filename", name))
}

// dispatch runs handlers in order on the caller's goroutine so that successive
// versions of a file are applied in the order they were observed.
func (m *Manager) dispatch(handlers []ChangeHandler, ev ChangeEvent) {
	for _, h := range handlers {
		if err := h(ev); err != nil {
			m.logger.Error("Configuration handler error",
				zap.String("filename", ev.File),
				zap.String("action", ev.Action),
				zap.Error(err),
			)
		}
	}
}

func parse(name string, data []byte) (map[string]interface{}, error) {
	cfg := make(map[string]interface{})
	switch filepath.Ext(name) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", name, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format for %s", name)
	}
	return cfg, nil
}

func isConfigFile(name string) bool {
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
