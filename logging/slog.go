package logging

import (
	"context"
	"log/slog"
)

// LevelTrace is the slog level used for Trace entries.
const LevelTrace = slog.LevelDebug - 4

// slogClient emits entries to a slog.Logger.
type slogClient struct {
	logger *slog.Logger
}

// NewSlog creates a Client that emits to the given logger. A nil logger uses slog.Default.
func NewSlog(logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogClient{logger: logger}
}

func (c *slogClient) Info(message string, args ...any)  { c.logger.Info(message, args...) }
func (c *slogClient) Warn(message string, args ...any)  { c.logger.Warn(message, args...) }
func (c *slogClient) Error(message string, args ...any) { c.logger.Error(message, args...) }
func (c *slogClient) Debug(message string, args ...any) { c.logger.Debug(message, args...) }

func (c *slogClient) Trace(message string, args ...any) {
	c.logger.Log(context.Background(), LevelTrace, message, args...)
}

// nop discards every entry.
type nop struct{}

// Nop returns a Client that discards every entry.
func Nop() Client { return nop{} }

func (nop) Info(string, ...any)  {}
func (nop) Warn(string, ...any)  {}
func (nop) Error(string, ...any) {}
func (nop) Debug(string, ...any) {}
func (nop) Trace(string, ...any) {}
