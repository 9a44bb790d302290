package watch

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// scheduleParser accepts standard five-field specs with an optional
// leading seconds field, and descriptors such as "@every 30s".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates a keepalive spec.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return scheduleParser.Parse(spec)
}

// Sender is the part of channel.Client a keepalive needs.
type Sender interface {
	Send(message string) bool
}

// Keepalive periodically sends a fixed message over the channel. Sends
// while disconnected are dropped; nothing is queued.
type Keepalive struct {
	cron    *cron.Cron
	sender  Sender
	message string
	logger  *zap.Logger
}

func NewKeepalive(spec, message string, sender Sender, logger *zap.Logger) (*Keepalive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	k := &Keepalive{
		cron:    cron.New(cron.WithParser(scheduleParser), cron.WithLogger(cronLogger{logger})),
		sender:  sender,
		message: message,
		logger:  logger,
	}
	if _, err := k.cron.AddFunc(spec, k.Tick); err != nil {
		return nil, fmt.Errorf("invalid keepalive schedule '%s': %w", spec, err)
	}
	return k, nil
}

func (k *Keepalive) Start() { k.cron.Start() }

// Stop halts the schedule; the returned context is done once a running
// tick finishes.
func (k *Keepalive) Stop() context.Context { return k.cron.Stop() }

// Tick sends the message once.
func (k *Keepalive) Tick() {
	if k.sender.Send(k.message) {
		k.logger.Debug("Keepalive sent")
	} else {
		k.logger.Debug("Keepalive skipped, channel not connected")
	}
}

// cronLogger routes cron's own logging to zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []any) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			out = append(out, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return out
}
