package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func attrsOf(s sdktrace.ReadOnlySpan) map[string]string {
	out := map[string]string{}
	for _, kv := range s.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func captureSlowLog(t *testing.T, threshold time.Duration) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetSlowQueryLogging(threshold, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	return &buf
}

func TestTraceStoreOp_Spans(t *testing.T) {
	tests := []struct {
		name       string
		trace      func(context.Context) (context.Context, func(error))
		err        error
		wantName   string
		wantSystem string
		wantStatus codes.Code
	}{
		{
			name: "postgres success",
			trace: func(ctx context.Context) (context.Context, func(error)) {
				return TraceQuery(ctx, "GetUserByEmail", "SELECT id FROM users WHERE email = $1")
			},
			wantName:   "db.GetUserByEmail",
			wantSystem: SystemPostgres,
			wantStatus: codes.Unset,
		},
		{
			name: "redis failure",
			trace: func(ctx context.Context) (context.Context, func(error)) {
				return TraceStoreOp(ctx, SystemRedis, "IsSessionValid", "GET session:*")
			},
			err:        errors.New("i/o timeout"),
			wantName:   "db.IsSessionValid",
			wantSystem: SystemRedis,
			wantStatus: codes.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recordSpans(t)

			_, end := tt.trace(context.Background())
			end(tt.err)

			spans := rec.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantName, spans[0].Name())
			assert.Equal(t, tt.wantSystem, attrsOf(spans[0])["db.system"])
			assert.Equal(t, tt.wantStatus, spans[0].Status().Code)
			if tt.err != nil {
				assert.Len(t, spans[0].Events(), 1)
			}
		})
	}
}

func TestTraceQuery_RecordsStatement(t *testing.T) {
	rec := recordSpans(t)

	_, end := TraceQuery(context.Background(), "RevokeUserSessions", "UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1")
	end(nil)

	attrs := attrsOf(rec.Ended()[0])
	assert.Equal(t, "RevokeUserSessions", attrs["db.operation"])
	assert.Equal(t, "UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1", attrs["db.statement"])
}

func TestTraceQuery_NestsUnderCaller(t *testing.T) {
	rec := recordSpans(t)

	ctx, login := otel.Tracer("test").Start(context.Background(), "POST /auth/login")
	_, end := TraceQuery(ctx, "RegisterSession", "INSERT INTO refresh_tokens")
	end(nil)
	login.End()

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
}

func TestSlowQueryLogging(t *testing.T) {
	t.Run("over threshold is logged with the error", func(t *testing.T) {
		buf := captureSlowLog(t, time.Nanosecond)

		_, end := TraceStoreOp(context.Background(), SystemSQLite, "CreateUser", "INSERT INTO users")
		time.Sleep(time.Millisecond)
		end(errors.New("UNIQUE constraint failed: users.email"))

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "slow query detected", line["msg"])
		assert.Equal(t, "WARN", line["level"])
		assert.Equal(t, SystemSQLite, line["db_system"])
		assert.Equal(t, "CreateUser", line["operation"])
		assert.Equal(t, "UNIQUE constraint failed: users.email", line["error"])
	})

	t.Run("under threshold stays quiet", func(t *testing.T) {
		buf := captureSlowLog(t, time.Hour)

		_, end := TraceQuery(context.Background(), "GetUserByID", "SELECT 1")
		end(nil)
		assert.Zero(t, buf.Len())
	})

	t.Run("disabled", func(t *testing.T) {
		SetSlowQueryLogging(time.Nanosecond, nil)
		assert.Nil(t, slowQueries.Load())
	})
}
