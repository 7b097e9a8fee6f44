package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-etrv/internal/etrv"
	"github.com/nerrad567/gray-logic-etrv/internal/infrastructure/mqtt"
)

const (
	// commandTimeout bounds how long a command waits for the session loop.
	commandTimeout = 5 * time.Second

	commandSource = "mqtt"
)

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the subset of the MQTT client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Commander is the session surface driven from MQTT.
type Commander interface {
	StatusSource
	SetSetpoint(ctx context.Context, value float64, source string) error
	SetProfileLevel(ctx context.Context, level float64, source string) error
	SeedDisplay(ctx context.Context, role etrv.Role, sValue string) error
}

// Options holds what NewBridge needs.
type Options struct {
	DeviceID string
	BridgeID string
	Version  string

	MQTTClient MQTTClient
	Session    Commander

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	Logger Logger
}

// Bridge connects one valve session to MQTT:
//   - display updates become retained state messages (Show)
//   - command messages become session commands, answered with acks
//   - the retained setpoint seeds the session's display on start
//   - health is reported periodically
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	deviceID string
	topics   mqtt.Topics
	mqtt     MQTTClient
	session  Commander
	health   *HealthReporter

	seedOnce sync.Once

	stopOnce  sync.Once
	wg        sync.WaitGroup
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.DeviceID == "" {
		return nil, errors.New("device id is required")
	}
	if opts.MQTTClient == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Session == nil {
		return nil, errors.New("session is required")
	}

	bridgeID := opts.BridgeID
	if bridgeID == "" {
		bridgeID = Protocol
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		deviceID:  opts.DeviceID,
		mqtt:      opts.MQTTClient,
		session:   opts.Session,
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    opts.Logger,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  bridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Source:    opts.Session,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}
	return b, nil
}

// LWT returns the offline health message to register with the broker
// before the bridge exists.
func LWT(bridgeID string) (*mqtt.Will, error) {
	return NewHealthReporter(HealthReporterConfig{BridgeID: bridgeID}).LWT()
}

// Start subscribes to the setpoint state and command topics and starts
// health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	seedTopic := b.topics.State(b.deviceID, etrv.RoleSetpoint.String())
	if err := b.mqtt.Subscribe(seedTopic, 1, b.handleSeed); err != nil {
		// Not fatal: the first fetch seeds the display instead.
		b.logError("failed to subscribe to setpoint state", err)
	}

	commandTopic := b.topics.AllCommands(b.deviceID)
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}

	b.logInfo("bridge started", "device_id", b.deviceID)
	return nil
}

// Stop cancels in-flight commands and publishes a final health status.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Show publishes a display update as retained state. It implements
// etrv.DisplaySink.
func (b *Bridge) Show(u etrv.DisplayUpdate) error {
	payload, err := json.Marshal(NewStateMessage(b.deviceID, u))
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return b.mqtt.Publish(b.topics.State(b.deviceID, u.Role.String()), payload, 1, true)
}

// handleSeed takes the first retained setpoint state as the display's
// current value, then drops the subscription.
func (b *Bridge) handleSeed(topic string, payload []byte) error {
	var err error
	b.seedOnce.Do(func() {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if uerr := b.mqtt.Unsubscribe(topic); uerr != nil {
				b.logDebug("unsubscribe setpoint state failed", "error", uerr)
			}
		}()

		var msg StateMessage
		if err = json.Unmarshal(payload, &msg); err != nil {
			err = fmt.Errorf("parse retained setpoint: %w", err)
			return
		}
		if msg.SValue == "" {
			return
		}

		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		defer cancel()
		if err = b.session.SeedDisplay(ctx, etrv.RoleSetpoint, msg.SValue); err != nil {
			return
		}
		b.logInfo("setpoint display seeded", "value", msg.SValue)
	})
	return err
}

// handleCommand runs one command and acks it.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAckError(cmd, ErrCodeInvalidParameters, "malformed command payload")
		return fmt.Errorf("parse command: %w", err)
	}
	if cmd.Command == "" {
		cmd.Command = commandForTopic(topic)
	}
	source := cmd.Source
	if source == "" {
		source = commandSource
	}

	b.logInfo("received command", "command_id", cmd.ID, "command", cmd.Command)

	if cmd.Command != CommandSetSetpoint && cmd.Command != CommandSetProfile {
		b.publishAckError(cmd, ErrCodeInvalidCommand, fmt.Sprintf("unknown command: %q", cmd.Command))
		return nil
	}
	if cmd.Level == nil {
		b.publishAckError(cmd, ErrCodeInvalidParameters, "level is required")
		return nil
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	var err error
	if cmd.Command == CommandSetSetpoint {
		err = b.session.SetSetpoint(ctx, *cmd.Level, source)
	} else {
		err = b.session.SetProfileLevel(ctx, *cmd.Level, source)
	}
	if err != nil {
		b.publishAckError(cmd, errorCode(err), err.Error())
		return nil
	}

	b.publishAck(NewAckMessage(b.deviceID, cmd))
	return nil
}

// commandForTopic maps .../{device_id}/setpoint and .../profile to commands.
func commandForTopic(topic string) string {
	switch topic[strings.LastIndex(topic, "/")+1:] {
	case etrv.RoleSetpoint.String():
		return CommandSetSetpoint
	case etrv.RoleProfile.String():
		return CommandSetProfile
	}
	return ""
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, etrv.ErrBusy):
		return ErrCodeBusy
	case errors.Is(err, etrv.ErrInvalidSetpoint), errors.Is(err, etrv.ErrInvalidProfileLevel):
		return ErrCodeInvalidParameters
	default:
		return ErrCodeBridgeError
	}
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(b.deviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

func (b *Bridge) publishAckError(cmd CommandMessage, code, message string) {
	b.publishAck(NewAckError(b.deviceID, cmd, code, message))
	b.logWarn("command failed", "command_id", cmd.ID, "code", code, "message", message)
}

// SetLogger sets the logger for the bridge and its health reporter.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}
