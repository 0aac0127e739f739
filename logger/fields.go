package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging across flowcanvas.
const (
	FieldRequestID = "request_id"
	FieldComponent = "component"

	FieldMethod = "method"
	FieldPath   = "path"

	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldCount      = "count"
	FieldFile       = "file"
	FieldAddress    = "address"

	// Graph identifiers
	FieldGraph        = "graph"
	FieldNodeID       = "node_id"
	FieldPortID       = "port_id"
	FieldConnectionID = "connection_id"
	FieldKind         = "kind"
	FieldOutcome      = "outcome"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	componentKey contextKey = "logger_component"
)

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns base with fields extracted from context.
// A nil base falls back to the global Logger.
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 || base == nil {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
//
// Example:
//
//	store := graph.NewStore(ident.New(), graph.WithLogger(logger.ComponentLogger("graph")))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
