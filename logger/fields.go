package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across pursuit.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldFingerprint = "fingerprint"
	FieldAttemptID   = "attempt_id"
	FieldHolder      = "holder"

	// Components
	FieldComponent = "component"
	FieldService   = "service"

	// Pipeline
	FieldStage       = "stage"
	FieldStatus      = "status"
	FieldOutcome     = "outcome"
	FieldDestination = "destination"
	FieldRetryCount  = "retry_count"
	FieldNextRun     = "next_run"

	// Postings
	FieldPlatform = "platform"
	FieldSourceID = "source_id"
	FieldCompany  = "company"
	FieldTitle    = "title"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"

	// Errors
	FieldError     = "error"
	FieldErrorKind = "error_kind"

	// Counts and sizes
	FieldCount      = "count"
	FieldBatchSize  = "batch_size"
	FieldTotalCount = "total_count"

	// Files and paths
	FieldFile   = "file"
	FieldBinary = "binary"

	// Symbols (sym package glyphs for subsystem markers)
	FieldSymbol = "symbol"
)

// Context keys for propagating logging context
type contextKey string

const (
	fingerprintKey contextKey = "logger_fingerprint"
	stageKey       contextKey = "logger_stage"
	componentKey   contextKey = "logger_component"
)

// WithFingerprint adds a record fingerprint to the context for logging
func WithFingerprint(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, fingerprintKey, fingerprint)
}

// WithStage adds a stage name to the context for logging
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if fingerprint, ok := ctx.Value(fingerprintKey).(string); ok && fingerprint != "" {
		fields = append(fields, FieldFingerprint, fingerprint)
	}
	if stage, ok := ctx.Value(stageKey).(string); ok && stage != "" {
		fields = append(fields, FieldStage, stage)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
// Use this to get a logger that automatically includes fingerprint, stage, etc.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Orchestrator struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewOrchestrator() *Orchestrator {
//	    return &Orchestrator{
//	        logger: logger.ComponentLogger("pipeline.orchestrator"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
// Use for sub-operations that need extra context fields.
//
// Example:
//
//	recordLogger := logger.ChildLogger(baseLogger, "fingerprint", rec.Fingerprint)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
