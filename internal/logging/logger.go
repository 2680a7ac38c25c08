package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts "debug", "info", "warn", "error" or "fatal"
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", s)
	}
}

// Logger provides structured logging on top of zap
type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel
	file  *os.File
}

// Config holds logger configuration
type Config struct {
	Level LogLevel
	// Development switches to the human-readable console encoder
	Development bool
	LogToFile   bool
	LogFilePath string
}

var (
	mu            sync.RWMutex
	defaultLogger = &Logger{zl: zap.NewNop(), level: zap.NewAtomicLevel()}
)

// NewLogger creates a new logger instance
func NewLogger(config Config) (*Logger, error) {
	level := zap.NewAtomicLevelAt(config.Level.zapLevel())

	var encCfg zapcore.EncoderConfig
	var consoleEnc zapcore.Encoder
	if config.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), level),
	}

	logger := &Logger{level: level}

	if config.LogToFile {
		if config.LogFilePath == "" {
			config.LogFilePath = "logs/app.log"
		}

		if err := os.MkdirAll(filepath.Dir(config.LogFilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %v", err)
		}

		file, err := os.OpenFile(config.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %v", err)
		}

		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), level))
		logger.file = file
	}

	logger.zl = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(2))
	return logger, nil
}

// NewFromZap wraps an existing zap logger
func NewFromZap(zl *zap.Logger) *Logger {
	return &Logger{zl: zl.WithOptions(zap.AddCallerSkip(2)), level: zap.NewAtomicLevel()}
}

// InitDefaultLogger initializes the global logger
func InitDefaultLogger(config Config) error {
	logger, err := NewLogger(config)
	if err != nil {
		return err
	}
	SetDefaultLogger(logger)
	return nil
}

// SetDefaultLogger replaces the global logger
func SetDefaultLogger(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// GetDefaultLogger returns the default logger instance
func GetDefaultLogger() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// SetLevel changes the minimum level at runtime
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

// Zap exposes the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Close flushes buffered entries and closes any open files
func (l *Logger) Close() error {
	_ = l.zl.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) log(level LogLevel, msg string, context map[string]interface{}) {
	fields := toFields(context)
	switch level {
	case DEBUG:
		l.zl.Debug(msg, fields...)
	case INFO:
		l.zl.Info(msg, fields...)
	case WARN:
		l.zl.Warn(msg, fields...)
	case ERROR:
		l.zl.Error(msg, fields...)
	case FATAL:
		l.zl.Fatal(msg, fields...)
	}
}

// toFields converts a context map to zap fields in key order
func toFields(context map[string]interface{}) []zap.Field {
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := context[k].(type) {
		case error:
			fields = append(fields, zap.NamedError(k, v))
		case time.Duration:
			fields = append(fields, zap.Duration(k, v))
		default:
			fields = append(fields, zap.Any(k, v))
		}
	}
	return fields
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, context ...map[string]interface{}) {
	l.log(DEBUG, msg, mergeContext(context...))
}

// Info logs an info message
func (l *Logger) Info(msg string, context ...map[string]interface{}) {
	l.log(INFO, msg, mergeContext(context...))
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, context ...map[string]interface{}) {
	l.log(WARN, msg, mergeContext(context...))
}

// Error logs an error message
func (l *Logger) Error(msg string, context ...map[string]interface{}) {
	l.log(ERROR, msg, mergeContext(context...))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, context ...map[string]interface{}) {
	l.log(FATAL, msg, mergeContext(context...))
}

// Convenience functions for global logger
func Debug(msg string, context ...map[string]interface{}) {
	GetDefaultLogger().Debug(msg, context...)
}

func Info(msg string, context ...map[string]interface{}) {
	GetDefaultLogger().Info(msg, context...)
}

func Warn(msg string, context ...map[string]interface{}) {
	GetDefaultLogger().Warn(msg, context...)
}

func Error(msg string, context ...map[string]interface{}) {
	GetDefaultLogger().Error(msg, context...)
}

func Fatal(msg string, context ...map[string]interface{}) {
	GetDefaultLogger().Fatal(msg, context...)
}

// mergeContext merges multiple context maps into one
func mergeContext(contexts ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, ctx := range contexts {
		for k, v := range ctx {
			result[k] = v
		}
	}
	return result
}

func withDetails(base, details map[string]interface{}) map[string]interface{} {
	for k, v := range details {
		base[k] = v
	}
	return base
}

// LogConversationEvent logs conversation lifecycle events
func LogConversationEvent(event string, conversationID string, details map[string]interface{}) {
	Info("Conversation Event", withDetails(map[string]interface{}{
		"event":           event,
		"conversation_id": conversationID,
	}, details))
}

// LogRapportEvent logs one scoring pass. Only the operator log sees this.
func LogRapportEvent(conversationID string, scoreBefore, scoreAfter int, tier string, details map[string]interface{}) {
	Debug("Rapport Event", withDetails(map[string]interface{}{
		"conversation_id": conversationID,
		"score_before":    scoreBefore,
		"score_after":     scoreAfter,
		"tier":            tier,
	}, details))
}

// LogGenerationEvent logs generative backend calls
func LogGenerationEvent(event string, backend string, details map[string]interface{}) {
	Info("Generation Event", withDetails(map[string]interface{}{
		"event":   event,
		"backend": backend,
	}, details))
}

// LogWebSocketEvent logs WebSocket events with standardized format
func LogWebSocketEvent(event string, conversationID string, clientID string, details map[string]interface{}) {
	Info("WebSocket Event", withDetails(map[string]interface{}{
		"event":           event,
		"conversation_id": conversationID,
		"client_id":       clientID,
	}, details))
}

// LogHTTPRequest logs HTTP requests
func LogHTTPRequest(method string, path string, statusCode int, duration time.Duration, details map[string]interface{}) {
	Info("HTTP Request", withDetails(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}, details))
}

// LogDatabaseEvent logs database operations
func LogDatabaseEvent(operation string, table string, details map[string]interface{}) {
	Debug("Database Event", withDetails(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}, details))
}
