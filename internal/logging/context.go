package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one preparation run.
	FieldRunID = "run_id"
	// FieldShard is the archive shard file name.
	FieldShard = "shard"
	// FieldSession is the session identifier (ses-...).
	FieldSession = "session"
	// FieldSeries is the series uid.
	FieldSeries = "series"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step after a warning or error.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	shardKey   contextKey = "shard"
	sessionKey contextKey = "session"
	seriesKey  contextKey = "series"
)

// WithRunID annotates ctx with the run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// WithShard annotates ctx with the shard being read.
func WithShard(ctx context.Context, shard string) context.Context {
	return withString(ctx, shardKey, shard)
}

// WithSession annotates ctx with the session being processed.
func WithSession(ctx context.Context, session string) context.Context {
	return withString(ctx, sessionKey, session)
}

// WithSeries annotates ctx with the series being processed.
func WithSeries(ctx context.Context, uid string) context.Context {
	return withString(ctx, seriesKey, uid)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// ContextFields extracts standardized slog attributes from ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	for _, f := range []struct {
		key   contextKey
		field string
	}{
		{runIDKey, FieldRunID},
		{shardKey, FieldShard},
		{sessionKey, FieldSession},
		{seriesKey, FieldSeries},
	} {
		if v, ok := stringFrom(ctx, f.key); ok {
			fields = append(fields, slog.String(f.field, v))
		}
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return logger.With(args...)
}
