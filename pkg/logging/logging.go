// Package logging adapts go.uber.org/zap to the orchestrator.Logger
// interface the rest of the module already codes against.
package logging

import (
	"go.uber.org/zap"

	"github.com/turnkit/voicecore/pkg/orchestrator"
)

// ZapLogger wraps a *zap.SugaredLogger to satisfy orchestrator.Logger.
type ZapLogger struct {
	s *zap.SugaredLogger
}

var _ orchestrator.Logger = (*ZapLogger)(nil)

// New builds a production zap logger (JSON encoding, info level) wrapped as
// an orchestrator.Logger.
func New() (*ZapLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{s: l.Sugar()}, nil
}

// NewDevelopment builds a human-readable console logger, used by cmd/agent
// when run interactively.
func NewDevelopment() (*ZapLogger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{s: l.Sugar()}, nil
}

func (z *ZapLogger) Debug(msg string, args ...interface{}) { z.s.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...interface{})  { z.s.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...interface{})  { z.s.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...interface{}) { z.s.Errorw(msg, args...) }

// Sync flushes buffered log entries; callers should defer this at process
// startup.
func (z *ZapLogger) Sync() error { return z.s.Sync() }
