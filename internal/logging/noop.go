package logging

import (
	"context"

	"github.com/alexisbeaulieu97/weaver/internal/ports"
)

// NoOpLogger discards every log entry. Useful for tests and as a safe default
// when no logger has been configured.
type NoOpLogger struct{}

func (NoOpLogger) Debug(context.Context, string, ...interface{}) {}
func (NoOpLogger) Info(context.Context, string, ...interface{})  {}
func (NoOpLogger) Warn(context.Context, string, ...interface{})  {}
func (NoOpLogger) Error(context.Context, string, ...interface{}) {}

// With returns the receiver; a no-op logger has no fields to accumulate.
func (n NoOpLogger) With(...interface{}) ports.Logger { return n }
