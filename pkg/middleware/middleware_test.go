package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wms-platform/disposition-service/pkg/errors"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := logging.DefaultConfig("middleware-test")
	cfg.Output = &bytes.Buffer{}

	router := gin.New()
	Setup(router, DefaultConfig("middleware-test", logging.New(cfg)))
	return router
}

func TestRequestID_GeneratedAndPropagated(t *testing.T) {
	router := newTestRouter(t)
	router.GET("/ping", func(c *gin.Context) {
		id, _ := c.Request.Context().Value(logging.RequestIDKey).(string)
		c.String(http.StatusOK, id)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, rec.Header().Get(HeaderRequestID), rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-42", rec.Body.String())
}

func TestErrorHandler_MapsAttachedError(t *testing.T) {
	router := newTestRouter(t)
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(errors.ErrNotFoundWithID("position", "P1"))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errors.CodeNotFound, body.Code)
	assert.Equal(t, "/missing", body.Path)
	assert.NotEmpty(t, body.RequestID)
}

func TestErrorHandler_UnknownErrorIsInternal(t *testing.T) {
	router := newTestRouter(t)
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(stderrors.New("disk full"))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecovery(t *testing.T) {
	router := newTestRouter(t)
	router.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), errors.CodeInternalError)
}

func TestNoRouteAndNoMethod(t *testing.T) {
	router := newTestRouter(t)
	router.GET("/only-get", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ROUTE_NOT_FOUND")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/only-get", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestContentType_RejectsNonJSONBody(t *testing.T) {
	router := newTestRouter(t)
	router.POST("/positions", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/positions", strings.NewReader("type=export"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/positions", strings.NewReader(`{"type":"export"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestReadinessCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	ready := true
	router.GET("/ready", ReadinessCheck("svc",
		Check{Name: "mongodb", Probe: func(ctx context.Context) error {
			if !ready {
				return stderrors.New("mongo down")
			}
			return nil
		}},
		Check{Name: "redis", Probe: func(ctx context.Context) error { return nil }},
	))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	ready = false
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, map[string]string{"mongodb": "mongo down", "redis": "ok"}, body.Checks)
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New(metrics.DefaultConfig("middleware-test"))

	router := gin.New()
	router.Use(MetricsMiddleware(m))
	router.GET("/positions/:positionId", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", MetricsEndpoint(m))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/positions/abc", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `path="/positions/:positionId"`)
}

func TestTracingMiddleware_EchoesTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &TracingConfig{ServiceName: "middleware-test", Propagators: propagation.TraceContext{}}

	var logged string
	router := gin.New()
	router.Use(TracingMiddleware(cfg))
	router.GET("/positions/:positionId", func(c *gin.Context) {
		logged, _ = c.Request.Context().Value(logging.TraceIDKey).(string)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/positions/abc", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", rec.Header().Get(HeaderTraceID))
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", logged)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/positions/abc", nil))
	assert.Empty(t, rec.Header().Get(HeaderTraceID))
}

func TestValidator_Direction(t *testing.T) {
	type req struct {
		Type string `json:"type" validate:"required,direction"`
	}

	v := GetValidator()
	assert.NoError(t, v.Struct(req{Type: "export"}))
	assert.Error(t, v.Struct(req{Type: "sideways"}))
}
