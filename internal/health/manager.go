package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checks on demand
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{checkers: make(map[string]Checker), logger: logger}
}

// RegisterChecker adds a check; names must be unique
func (m *Manager) RegisterChecker(c Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := c.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = c
	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("critical", c.IsCritical()),
		zap.Duration("timeout", c.Timeout()),
	)
	return nil
}

// Names returns the registered check names in order
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checkers))
	for n := range m.checkers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes every check concurrently, each under its own timeout. A failing
// critical check makes the report unhealthy and not ready; a failing non-critical
// check only degrades it.
func (m *Manager) Run(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	start := time.Now()
	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = m.runOne(ctx, c)
		}(i, c)
	}
	wg.Wait()

	report := Report{
		Status:     StatusHealthy,
		Ready:      true,
		Timestamp:  start,
		Components: make(map[string]CheckResult, len(results)),
	}
	for _, r := range results {
		report.Components[r.Component] = r
		if r.Status == StatusHealthy {
			continue
		}
		if r.Critical && r.Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
			report.Ready = false
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	report.Duration = time.Since(start)
	return report
}

func (m *Manager) runOne(ctx context.Context, c Checker) (res CheckResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = CheckResult{Status: StatusUnhealthy, Error: fmt.Sprint(p)}
		}
		res.Component = c.Name()
		res.Critical = c.IsCritical()
		res.Timestamp = start
		res.Duration = time.Since(start)
		if res.Status != StatusHealthy {
			m.logger.Warn("Health check not healthy",
				zap.String("checker", res.Component),
				zap.String("status", res.Status.String()),
				zap.String("error", res.Error),
			)
		}
	}()

	timeout := c.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Check(cctx)
}
