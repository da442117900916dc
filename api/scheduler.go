/*
scheduler.go - Periodic governance alert monitor

PURPOSE:
  Rebuilds the governance alert on an interval, publishes it to the
  Prometheus gauges, and logs status transitions. Dashboards and paging
  read the gauges; nothing here writes to the store.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Logs only when the overall status changes, plus every CRITICAL run

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether the monitor is active (default: true)

USAGE:
  monitor := NewAlertMonitor(svc, logger)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - handlers.go: GetAlert endpoint (on-demand alert)
  - capacity/alert.go: BuildGovernanceAlert
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/capacity-engine/capacity"
)

// AlertMonitor periodically evaluates the governance alert.
type AlertMonitor struct {
	Service       *capacity.Service
	Log           logrus.FieldLogger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	last capacity.AlertStatus
}

// NewAlertMonitor creates a new monitor.
func NewAlertMonitor(svc *capacity.Service, logger logrus.FieldLogger) *AlertMonitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AlertMonitor{
		Service:       svc,
		Log:           logger.WithField("component", "alert-monitor"),
		CheckInterval: time.Minute,
		Enabled:       true,
	}
}

// Start begins the monitor.
func (m *AlertMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.Log.Info("disabled, not starting")
		return
	}
	if m.ticker != nil {
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go m.run()

	m.Log.WithField("interval", m.CheckInterval.String()).Info("started")
}

// Stop stops the monitor and waits for an in-flight check.
func (m *AlertMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.ticker = nil
		m.Log.Info("stopped")
	}
}

func (m *AlertMonitor) run() {
	defer m.wg.Done()

	// Run immediately on start
	m.Check(context.Background())

	for {
		select {
		case <-m.ticker.C:
			m.Check(context.Background())
		case <-m.stop:
			return
		}
	}
}

// Check builds one alert, records it and returns it.
func (m *AlertMonitor) Check(ctx context.Context) (capacity.GovernanceAlert, error) {
	alert, err := m.Service.Alert(ctx)
	if err != nil {
		m.Log.WithError(err).Error("alert check failed")
		return alert, err
	}
	recordAlert(alert)

	entry := m.Log.WithFields(logrus.Fields{
		"status":      alert.Status,
		"shortage":    roleStrings(alert.ShortageRoles),
		"warning":     roleStrings(alert.WarningRoles),
		"unscheduled": alert.UnscheduledDemandItems,
	})
	switch {
	case alert.Status == capacity.AlertCritical:
		entry.Warn(alert.Message)
	case alert.Status != m.last:
		entry.Info(alert.Message)
	default:
		entry.Debug(alert.Message)
	}
	m.last = alert.Status
	return alert, nil
}
