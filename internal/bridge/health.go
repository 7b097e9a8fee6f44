package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/mqtt"
)

const (
	defaultHealthInterval = 30 * time.Second
	snapshotTimeout       = 2 * time.Second
)

// HealthPublisher publishes health messages, typically the MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatusSource supplies the session state included in health reports.
type StatusSource interface {
	Snapshot(ctx context.Context) (etrv.Snapshot, error)
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval defaults to 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Source    StatusSource
}

// HealthReporter publishes the bridge status on graylogic/health/etrv at a
// fixed interval and once more when stopped.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	source    StatusSource

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best effort during shutdown
		h.publishStatus(HealthStopping, "", etrv.Snapshot{})
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting", etrv.Snapshot{})
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	snap := h.snapshot()
	status, reason := h.determineStatus(snap)
	return h.publishStatus(status, reason, snap)
}

// LWT returns the Last Will and Testament to register when connecting.
func (h *HealthReporter) LWT() (*mqtt.Will, error) {
	payload, err := json.Marshal(NewLWTMessage(h.bridgeID))
	if err != nil {
		return nil, err
	}
	return &mqtt.Will{Topic: mqtt.Topics{}.Health(), Payload: payload}, nil
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) snapshot() etrv.Snapshot {
	if h.source == nil {
		return etrv.Snapshot{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	snap, err := h.source.Snapshot(ctx)
	if err != nil {
		return etrv.Snapshot{}
	}
	return snap
}

// determineStatus is degraded when MQTT is down, the session does not
// answer, or the last appliance cycle failed.
func (h *HealthReporter) determineStatus(snap etrv.Snapshot) (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if snap.DeviceID == "" {
		return HealthDegraded, "session not running"
	}
	if st := snap.Stats; !st.LastErrorAt.IsZero() && st.LastErrorAt.After(st.LastSuccess) {
		return HealthDegraded, "last appliance cycle failed: " + st.LastError
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string, snap etrv.Snapshot) error {
	if h.publisher == nil {
		return nil
	}

	msg := NewHealthMessage(h.bridgeID, h.version, status, snap, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
