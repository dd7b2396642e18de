package registry

import (
	"log"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Logger is the minimal leveled logging contract. Arguments after the
// message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SimpleLogger writes to stderr via the standard library. Suitable for
// examples and tests; production wiring uses the zap adapter.
type SimpleLogger struct {
	l *log.Logger
}

// NewSimpleLogger creates a SimpleLogger.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{l: log.New(os.Stderr, "registry: ", log.LstdFlags|log.Lmsgprefix)}
}

func (s *SimpleLogger) Debug(msg string, kv ...interface{}) { s.print("DEBUG", msg, kv) }
func (s *SimpleLogger) Info(msg string, kv ...interface{})  { s.print("INFO", msg, kv) }
func (s *SimpleLogger) Warn(msg string, kv ...interface{})  { s.print("WARN", msg, kv) }
func (s *SimpleLogger) Error(msg string, kv ...interface{}) { s.print("ERROR", msg, kv) }

func (s *SimpleLogger) print(level, msg string, kv []interface{}) {
	if len(kv) == 0 {
		s.l.Printf("%s %s", level, msg)
		return
	}
	s.l.Printf("%s %s %v", level, msg, kv)
}

// ZapLogger adapts a zap.Logger to the Logger interface, so the client logs
// through the application's structured logging stack.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps a zap.Logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.Sugar()}
}

func (z *ZapLogger) Debug(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *ZapLogger) Info(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *ZapLogger) Warn(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *ZapLogger) Error(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }

// DebugConfig gates per-concern debug logging so insight can be enabled
// selectively without drowning the logs.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogCache     bool
	LogCircuit   bool
	LogRateLimit bool
	RequestIDGen func() string
}

// DefaultDebugConfig enables all categories with UUID request IDs; pair it
// with WithDebug to actually turn logging on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogCache:     true,
		LogCircuit:   true,
		LogRateLimit: true,
		RequestIDGen: func() string { return uuid.NewString() },
	}
}
