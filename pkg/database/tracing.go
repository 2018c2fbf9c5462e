package database

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Mukulsharnagat01/Collegedunia/pkg/database"

// db.system values.
const (
	SystemPostgres = "postgresql"
	SystemSQLite   = "sqlite"
	SystemRedis    = "redis"
)

type slowLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowLog]

// SetSlowQueryLogging logs a warning for every store operation that takes at
// least threshold. A zero threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowLog{threshold: threshold, logger: logger})
}

// TraceQuery wraps a PostgreSQL statement in a client span. Call the returned
// func with the operation's error once it completes:
//
//	ctx, end := database.TraceQuery(ctx, "GetUserByEmail", query)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	return TraceStoreOp(ctx, SystemPostgres, operation, statement)
}

// TraceStoreOp is TraceQuery for any of the System* backends.
func TraceStoreOp(ctx context.Context, system, operation, statement string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemKey.String(system),
			semconv.DBOperationKey.String(operation),
			semconv.DBStatementKey.String(statement),
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if cfg := slowQueries.Load(); cfg != nil {
			cfg.report(ctx, system, operation, statement, time.Since(start), err)
		}
	}
}

func (s *slowLog) report(ctx context.Context, system, operation, statement string, took time.Duration, err error) {
	if took < s.threshold {
		return
	}
	attrs := []slog.Attr{
		slog.String("db_system", system),
		slog.String("operation", operation),
		slog.String("statement", statement),
		slog.Duration("duration", took),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected", attrs...)
}
