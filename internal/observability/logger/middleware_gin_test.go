package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/allotment/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestGinMiddlewareLogsBillingRequest(t *testing.T) {
	logs := observe(t)
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(error) (string, string) { return "conflict", "CNFLT" },
	}))
	engine.PUT("/subscriptions/service/:serviceId", func(c *gin.Context) {
		c.Set("tx_id", "tx-9")
		_ = c.Error(errors.New("stale allocation"))
		c.Status(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPut, "/subscriptions/service/HR", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get(requestIDHeader))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)

	fields := entry.ContextMap()
	assert.Equal(t, "HR", fields["billing_service"])
	assert.Equal(t, "tx-9", fields["tx_id"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "conflict", fields["error_type"])
	assert.Equal(t, "CNFLT", fields["error_code"])
	assert.EqualValues(t, http.StatusConflict, fields["status"])
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	observe(t)
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(GinMiddleware(MiddlewareConfig{}))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/subscriptions", http.StatusInternalServerError, "undefined_state"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/subscriptions", http.StatusBadRequest, "pld_invalid"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/subscriptions", http.StatusBadRequest, "bad_input"))
}

func TestWithContextAddsOwnerAndActor(t *testing.T) {
	logs := observe(t)
	ctx := obscontext.WithActor(obscontext.WithOrgID(context.Background(), "org-1"), "USER", "u-1")

	FromContext(ctx).Info("step")
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "org-1", fields["org_id"])
	assert.Equal(t, "USER", fields["actor_type"])
	assert.Equal(t, "u-1", fields["actor_id"])
}
