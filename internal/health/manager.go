package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checks on a background interval and serves
// cached results so probe endpoints never fan out to dependencies on
// every request.
type Manager struct {
	checkers      map[string]Checker
	lastResults   map[string]CheckResult
	checkInterval time.Duration
	started       bool
	stopCh        chan struct{}
	logger        *zap.Logger
	mu            sync.RWMutex
}

// NewManager creates a new health manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers:      make(map[string]Checker),
		lastResults:   make(map[string]CheckResult),
		checkInterval: 30 * time.Second,
		stopCh:        make(chan struct{}),
		logger:        logger,
	}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(checker Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := checker.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}

	m.checkers[name] = checker
	m.logger.Info("Health checker registered",
		zap.String("checker", name),
		zap.Bool("critical", checker.IsCritical()),
		zap.Duration("timeout", checker.Timeout()),
	)
	return nil
}

// Start begins background health checking
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("health manager already started")
	}
	m.started = true
	m.mu.Unlock()

	// Prime the cache so probes have results before the first tick
	m.runChecks(ctx)

	go func() {
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runChecks(ctx)
			}
		}
	}()
	return nil
}

// Stop stops background health checking
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	m.started = false
	close(m.stopCh)
}

func (m *Manager) runChecks(ctx context.Context) {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	for _, checker := range checkers {
		result := m.runSingleCheck(ctx, checker)
		m.mu.Lock()
		m.lastResults[checker.Name()] = result
		m.mu.Unlock()

		if result.Status == StatusUnhealthy {
			m.logger.Warn("Health check failed",
				zap.String("checker", checker.Name()),
				zap.String("error", result.Error),
				zap.Bool("critical", result.Critical),
			)
		}
	}
}

func (m *Manager) runSingleCheck(ctx context.Context, checker Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, checker.Timeout())
	defer cancel()

	startTime := time.Now()
	result := checker.Check(checkCtx)

	result.Component = checker.Name()
	result.Critical = checker.IsCritical()
	result.Duration = time.Since(startTime)
	result.Timestamp = startTime
	return result
}

// GetDetailedHealth returns cached per-component results with an
// overall verdict.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	m.mu.RLock()
	components := make(map[string]CheckResult, len(m.lastResults))
	for name, result := range m.lastResults {
		components[name] = result
	}
	registered := len(m.checkers)
	m.mu.RUnlock()

	summary := Summary{Total: registered}
	for _, result := range components {
		switch result.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
		if result.Critical {
			summary.Critical++
		}
	}

	return DetailedHealth{
		Overall:    m.calculateOverallStatus(components, summary),
		Components: components,
		Summary:    summary,
		Timestamp:  time.Now(),
	}
}

// GetOverallHealth returns the overall health status
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	startTime := time.Now()
	overall := m.GetDetailedHealth(ctx).Overall
	overall.Duration = time.Since(startTime)
	return overall
}

// IsReady returns true if no critical check is failing
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive always reports true while the process can serve requests
func (m *Manager) IsLive(ctx context.Context) bool {
	return true
}

func (m *Manager) calculateOverallStatus(components map[string]CheckResult, summary Summary) OverallHealth {
	if summary.Total == 0 {
		return OverallHealth{
			Status:    StatusUnknown,
			Message:   "No health checks registered",
			Timestamp: time.Now(),
			Ready:     true,
			Live:      true,
		}
	}

	criticalFailures := 0
	nonCriticalFailures := 0
	for _, result := range components {
		if result.Status == StatusUnhealthy {
			if result.Critical {
				criticalFailures++
			} else {
				nonCriticalFailures++
			}
		}
	}

	overall := OverallHealth{
		Timestamp: time.Now(),
		Live:      true,
	}
	switch {
	case criticalFailures > 0:
		overall.Status = StatusUnhealthy
		overall.Message = fmt.Sprintf("%d critical component(s) unhealthy", criticalFailures)
		overall.Ready = false
	case nonCriticalFailures > 0 || summary.Degraded > 0:
		overall.Status = StatusDegraded
		overall.Message = "Service degraded, non-critical components unhealthy"
		overall.Degraded = true
		overall.Ready = true
	default:
		overall.Status = StatusHealthy
		overall.Ready = true
	}
	return overall
}
