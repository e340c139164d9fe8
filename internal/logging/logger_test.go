package logging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copyleftdev/descent/internal/optimization"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewWithCore(core), logs
}

func TestLoggerFields(t *testing.T) {
	logger, logs := observed(zapcore.DebugLevel)

	logger.WithField("job", "abc").
		WithFields(map[string]interface{}{"n": 3}).
		WithError(errors.New("boom")).
		Info("hello", map[string]interface{}{"extra": true})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "hello", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "abc", ctx["job"])
	assert.EqualValues(t, 3, ctx["n"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, true, ctx["extra"])
}

func TestLevelFiltering(t *testing.T) {
	logger, logs := observed(zapcore.WarnLevel)
	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	assert.Equal(t, 2, logs.Len())
	assert.False(t, logger.Enabled(InfoLevel))
	assert.True(t, logger.Enabled(ErrorLevel))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		"Error":   ErrorLevel,
		"fatal":   FatalLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descent.log")
	logger, err := NewLogger(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("written", map[string]interface{}{"k": "v"})
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"written"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNewLoggerBadPath(t *testing.T) {
	_, err := NewLogger(&Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}

func TestContextLogger(t *testing.T) {
	logger, logs := observed(zapcore.InfoLevel)
	ctx := (&CtxLogger{logger}).WithContext(context.Background())

	FromContext(ctx).Info("from context")
	assert.Equal(t, 1, logs.Len())
	assert.NotNil(t, FromContext(context.Background()))
}

func TestMiddleware(t *testing.T) {
	logger, logs := observed(zapcore.DebugLevel)
	var inner *CtxLogger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/objectives", nil))

	require.NotNil(t, inner)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "/api/v1/objectives", entry.ContextMap()["path"])
	assert.EqualValues(t, http.StatusTeapot, entry.ContextMap()["status"])
}

func TestEventLogger(t *testing.T) {
	logger, logs := observed(zapcore.InfoLevel)
	obs := EventLogger(logger)

	obs.Observe(optimization.Event{Kind: optimization.EventStarted, Method: "bfgs+more_thuente"})
	obs.Observe(optimization.Event{Kind: optimization.EventIteration, Iteration: 1})
	obs.Observe(optimization.Event{Kind: optimization.EventFailed, Reason: optimization.LineSearchFailure})

	require.Equal(t, 2, logs.Len())
	failed := logs.FilterMessage("Solver failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "line_search_failure", failed[0].ContextMap()["reason"])
	assert.Equal(t, "bfgs+more_thuente", logs.All()[0].ContextMap()["method"])
}
