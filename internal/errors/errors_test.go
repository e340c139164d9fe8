package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copyleftdev/descent/internal/logging"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{err: New("job failed").WithOperation("start").WithComponent("server"), want: "server.start: job failed"},
		{err: New("job failed").WithComponent("server"), want: "server: job failed"},
		{err: Errorf("job %s failed", "a1").WithOperation("cancel"), want: "cancel: job a1 failed"},
		{err: Wrap(io.EOF, "").WithComponent("rpc"), want: "rpc: EOF"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
		assert.NotEmpty(t, tt.err.StackTrace())
	}
	assert.Contains(t, New("x").StackTrace()[0], "TestErrorString")
}

func TestWrapKeepsChain(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))

	cause := io.ErrUnexpectedEOF
	wrapped := Wrapf(cause, "decoding %s", "request").WithStatus(http.StatusBadRequest)
	assert.Equal(t, "decoding request: unexpected EOF", wrapped.Error())
	assert.True(t, Is(wrapped, io.ErrUnexpectedEOF))
	assert.Equal(t, cause, stderrors.Unwrap(wrapped))

	outer := Wrap(wrapped, "handler")
	var inner *Error
	require.True(t, As(outer, &inner))
	assert.Equal(t, "handler", inner.Message)
	assert.Equal(t, wrapped.Stack, outer.Stack)
	assert.Equal(t, http.StatusBadRequest, outer.Status)
	assert.Equal(t, "decoding request", wrapped.Message, "wrapping must not modify the inner error")
	assert.True(t, stderrors.Is(outer, io.ErrUnexpectedEOF))
}

func TestStatusOf(t *testing.T) {
	notFound := New("job not found").WithStatus(http.StatusNotFound)

	assert.Equal(t, http.StatusInternalServerError, StatusOf(io.EOF))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(New("boom")))
	assert.Equal(t, http.StatusNotFound, StatusOf(notFound))
	assert.Equal(t, http.StatusNotFound, StatusOf(fmt.Errorf("status: %w", notFound)))
	assert.Equal(t, http.StatusConflict, StatusOf(Wrap(notFound, "").WithStatus(http.StatusConflict)))

	assert.Nil(t, StackOf(io.EOF))
	assert.Equal(t, notFound.Stack, StackOf(fmt.Errorf("status: %w", notFound)))
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := logging.NewWithCore(core)

	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body["error"])
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kaboom", logs.All()[0].ContextMap()["panic"])
}

func TestErrorHandlerLogsServerErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := logging.NewWithCore(core)

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusBadGateway} {
		h := ErrorHandler(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Equal(t, 1, logs.Len())
}
