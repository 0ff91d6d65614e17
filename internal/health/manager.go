package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers on demand and in the background.
type Manager struct {
	checkers      map[string]Checker
	lastResults   map[string]CheckResult
	started       bool
	checkInterval time.Duration
	stopCh        chan struct{}
	logger        *zap.Logger
	mu            sync.RWMutex
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
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

func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	start := time.Now()
	detailed := m.GetDetailedHealth(ctx)
	overall := detailed.Overall
	overall.Timestamp = detailed.Timestamp
	overall.Duration = time.Since(start)
	return overall
}

// GetDetailedHealth runs every checker concurrently and caches the results.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	components := make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			res := runCheck(ctx, c)
			rmu.Lock()
			components[c.Name()] = res
			rmu.Unlock()
		}(c)
	}
	wg.Wait()

	m.mu.Lock()
	for name, res := range components {
		m.lastResults[name] = res
	}
	m.mu.Unlock()

	return summarize(components)
}

func runCheck(ctx context.Context, c Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	start := time.Now()
	result := c.Check(checkCtx)
	result.Component = c.Name()
	result.Critical = c.IsCritical()
	result.Duration = time.Since(start)
	result.Timestamp = start
	return result
}

// summarize derives the overall status: a failing critical component makes
// the worker unready; anything else unhealthy or degraded only degrades it.
func summarize(components map[string]CheckResult) DetailedHealth {
	summary := HealthSummary{Total: len(components)}
	criticalFailures, nonCriticalFailures := 0, 0
	for _, r := range components {
		switch r.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
			if r.Critical {
				criticalFailures++
			} else {
				nonCriticalFailures++
			}
		}
		if r.Critical {
			summary.Critical++
		} else {
			summary.NonCritical++
		}
	}

	var overall OverallHealth
	switch {
	case summary.Total == 0:
		overall = OverallHealth{Status: StatusUnknown, Message: "No health checks registered"}
	case criticalFailures > 0:
		overall = OverallHealth{Status: StatusUnhealthy, Message: fmt.Sprintf("%d critical component(s) failing", criticalFailures), Live: true}
	case summary.Degraded > 0:
		overall = OverallHealth{Status: StatusDegraded, Message: fmt.Sprintf("%d component(s) degraded", summary.Degraded), Ready: true, Live: true}
	case nonCriticalFailures > 0:
		overall = OverallHealth{Status: StatusDegraded, Message: fmt.Sprintf("%d non-critical component(s) failing", nonCriticalFailures), Ready: true, Live: true}
	default:
		overall = OverallHealth{Status: StatusHealthy, Message: fmt.Sprintf("All %d components healthy", summary.Total), Ready: true, Live: true}
	}
	overall.Degraded = overall.Status == StatusDegraded

	return DetailedHealth{Overall: overall, Components: components, Summary: summary, Timestamp: time.Now()}
}

func (m *Manager) IsReady(ctx context.Context) bool { return m.GetOverallHealth(ctx).Ready }

func (m *Manager) IsLive(ctx context.Context) bool { return m.GetOverallHealth(ctx).Live }

// GetLastResults returns the most recent results without running new checks
func (m *Manager) GetLastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CheckResult, len(m.lastResults))
	for name, r := range m.lastResults {
		out[name] = r
	}
	return out
}

// Start begins background checking at interval (30s when zero).
func (m *Manager) Start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	if interval > 0 {
		m.checkInterval = interval
	}
	m.started = true
	go m.backgroundChecker(m.checkInterval)
	m.logger.Info("Health manager started",
		zap.Duration("check_interval", m.checkInterval),
		zap.Int("registered_checkers", len(m.checkers)),
	)
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	close(m.stopCh)
	m.started = false
	m.logger.Info("Health manager stopped")
}

func (m *Manager) backgroundChecker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			d := m.GetDetailedHealth(ctx)
			cancel()
			if d.Overall.Status != StatusHealthy {
				m.logger.Warn("Background health check", zap.String("status", d.Overall.Status.String()), zap.String("message", d.Overall.Message))
			}
		}
	}
}
