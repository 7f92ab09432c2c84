// Package health periodically probes the ledger gateway and tracks its
// reachability for readiness reporting.
package health

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds probe configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// VersionProber is the probe surface, satisfied by both ledger gateways.
type VersionProber interface {
	CapabilityVersion(ctx context.Context) (string, error)
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// Status is a snapshot of the monitor's view of the ledger.
type Status struct {
	Healthy           bool      `json:"healthy"`
	CapabilityVersion string    `json:"capability_version,omitempty"`
	ConsecutiveFails  int       `json:"consecutive_fails"`
	LastProbeAt       time.Time `json:"last_probe_at"`
	LastError         string    `json:"last_error,omitempty"`
}

// Monitor runs periodic connectivity probes against the ledger gateway.
// A gateway is reported unhealthy after FailThreshold consecutive probe
// failures and recovers on the first success.
type Monitor struct {
	prober    VersionProber
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu     sync.Mutex
	status Status
}

// New creates a Monitor. Zero Config fields fall back to defaults.
func New(prober VersionProber, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &Monitor{
		prober: prober,
		cfg:    cfg,
		logger: logger,
		// Optimistic until the first probe says otherwise.
		status: Status{Healthy: true},
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) {
	m.onMetrics = fn
}

// Start runs the probe loop until quit is signalled.
func (m *Monitor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Probe(context.Background())
		case <-quit:
			return
		}
	}
}

// Probe performs a single connectivity check and updates the status.
func (m *Monitor) Probe(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	version, err := m.prober.CapabilityVersion(ctx)
	success := err == nil

	if m.onMetrics != nil {
		m.onMetrics(success)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.LastProbeAt = time.Now().UTC()
	if success {
		if !m.status.Healthy {
			m.logger.Info("ledger gateway recovered",
				zap.Int("after_fails", m.status.ConsecutiveFails))
		}
		m.status.Healthy = true
		m.status.ConsecutiveFails = 0
		m.status.CapabilityVersion = version
		m.status.LastError = ""
		return m.status
	}

	m.status.ConsecutiveFails++
	m.status.LastError = err.Error()
	if m.status.ConsecutiveFails >= m.cfg.FailThreshold && m.status.Healthy {
		m.status.Healthy = false
		m.logger.Warn("ledger gateway unhealthy",
			zap.Int("consecutive_fails", m.status.ConsecutiveFails),
			zap.Error(err))
	}
	return m.status
}

// Snapshot returns the current status without probing.
func (m *Monitor) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Healthy reports whether the ledger is currently considered reachable.
func (m *Monitor) Healthy() bool {
	return m.Snapshot().Healthy
}
