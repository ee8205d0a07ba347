package idempotency

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/wms-platform/disposition-service/pkg/errors"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
	"github.com/wms-platform/disposition-service/pkg/middleware"
)

const (
	CodeKeyInvalid        = "IDEMPOTENCY_KEY_INVALID"
	CodeKeyMismatch       = "IDEMPOTENCY_KEY_MISMATCH"
	CodeRequestInProgress = "IDEMPOTENCY_REQUEST_IN_PROGRESS"
)

// replayedHeaders are the response headers stored with a record
var replayedHeaders = []string{"Content-Type", "Location"}

type Config struct {
	Service string
	Store   Store
	// LockTimeout is how long a claimed key blocks retries before it is
	// considered abandoned
	LockTimeout time.Duration
	Retention   time.Duration
	// MaxBodySize caps the stored response; larger responses are not replayed
	MaxBodySize int
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	now         func() time.Time
}

func DefaultConfig(service string, store Store, logger *logging.Logger, m *metrics.Metrics) *Config {
	return &Config{
		Service:     service,
		Store:       store,
		LockTimeout: 2 * time.Minute,
		Retention:   24 * time.Hour,
		MaxBodySize: 1 << 20,
		Logger:      logger,
		Metrics:     m,
	}
}

type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware makes a route replay its first response for requests carrying
// the same Idempotency-Key. Requests without the header pass through. A
// reused key with a different request is rejected with 422, a key still held
// by a running request with 409. Server errors are not stored, so the client
// may retry them with the same key.
func Middleware(cfg *Config) gin.HandlerFunc {
	now := cfg.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderKey)
		if key == "" {
			c.Next()
			return
		}
		route := c.FullPath()

		if err := ValidateKey(key); err != nil {
			cfg.Metrics.RecordIdempotency(route, "invalid")
			middleware.AbortWithAppError(c, errors.NewAppError(CodeKeyInvalid, err.Error(), http.StatusBadRequest))
			return
		}

		var body []byte
		if c.Request.Body != nil {
			var err error
			if body, err = io.ReadAll(c.Request.Body); err != nil {
				middleware.AbortWithAppError(c, errors.ErrBadRequest("failed to read request body"))
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		ctx := c.Request.Context()
		at := now()
		rec := &Record{
			ID:          primitive.NewObjectID(),
			Service:     cfg.Service,
			Key:         key,
			Method:      c.Request.Method,
			Path:        c.Request.URL.Path,
			Fingerprint: Fingerprint(c.Request.Method, c.Request.URL.Path, body),
			LockedAt:    &at,
			CreatedAt:   at,
			ExpiresAt:   at.Add(cfg.Retention),
		}

		existing, created, err := cfg.Store.Claim(ctx, rec)
		if err != nil {
			cfg.Logger.WithError(err).ErrorContext(ctx, "Idempotency store unavailable", "key", key, "path", route)
			cfg.Metrics.RecordIdempotency(route, "error")
			middleware.AbortWithAppError(c, errors.ErrServiceUnavailable("idempotency store"))
			return
		}

		if !created {
			if !replayOrTakeOver(c, cfg, existing, rec.Fingerprint, at, route) {
				return
			}
			rec = existing
		} else {
			cfg.Metrics.RecordIdempotency(route, "miss")
		}

		writer := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		finish(context.WithoutCancel(ctx), c, cfg, rec.ID, writer, now(), key)
	}
}

// replayOrTakeOver serves a request whose key is already known. It returns
// true when the handler should run because the earlier attempt left no
// response.
func replayOrTakeOver(c *gin.Context, cfg *Config, existing *Record, fingerprint string, at time.Time, route string) bool {
	ctx := c.Request.Context()

	if existing.Fingerprint != fingerprint {
		cfg.Logger.WarnContext(ctx, "Idempotency key reused for a different request", "key", existing.Key, "path", route)
		cfg.Metrics.RecordIdempotency(route, "mismatch")
		middleware.AbortWithAppError(c, errors.NewAppError(CodeKeyMismatch,
			"Idempotency-Key was already used for a different request", http.StatusUnprocessableEntity))
		return false
	}

	if existing.Completed() {
		cfg.Metrics.RecordIdempotency(route, "hit")
		for k, v := range existing.Headers {
			c.Header(k, v)
		}
		c.Header("Idempotent-Replayed", "true")
		contentType := existing.Headers["Content-Type"]
		if contentType == "" {
			contentType = "application/json; charset=utf-8"
		}
		c.Data(existing.Status, contentType, existing.Body)
		c.Abort()
		return false
	}

	if !existing.InFlight(at, cfg.LockTimeout) {
		won, err := cfg.Store.Relock(ctx, existing.ID, at.Add(-cfg.LockTimeout), at)
		if err != nil {
			cfg.Logger.WithError(err).ErrorContext(ctx, "Idempotency store unavailable", "key", existing.Key, "path", route)
			cfg.Metrics.RecordIdempotency(route, "error")
			middleware.AbortWithAppError(c, errors.ErrServiceUnavailable("idempotency store"))
			return false
		}
		if won {
			cfg.Metrics.RecordIdempotency(route, "miss")
			return true
		}
	}

	cfg.Metrics.RecordIdempotency(route, "concurrent")
	middleware.AbortWithAppError(c, errors.NewAppError(CodeRequestInProgress,
		"a request with this Idempotency-Key is still being processed", http.StatusConflict))
	return false
}

// finish stores the response for replay, or releases the key when there is
// nothing worth replaying
func finish(ctx context.Context, c *gin.Context, cfg *Config, id primitive.ObjectID, w *capturingWriter, at time.Time, key string) {
	status := w.Status()
	if !w.Written() || status >= http.StatusInternalServerError || w.body.Len() > cfg.MaxBodySize {
		if err := cfg.Store.Release(ctx, id); err != nil {
			cfg.Logger.WithError(err).ErrorContext(ctx, "Failed to release idempotency key", "key", key)
		}
		return
	}

	headers := make(map[string]string, len(replayedHeaders))
	for _, h := range replayedHeaders {
		if v := c.Writer.Header().Get(h); v != "" {
			headers[h] = v
		}
	}
	if err := cfg.Store.Complete(ctx, id, status, w.body.Bytes(), headers, at); err != nil {
		cfg.Logger.WithError(err).ErrorContext(ctx, "Failed to store idempotent response", "key", key)
	}
}
