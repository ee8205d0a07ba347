package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/disposition-service/pkg/logging"
)

// Config holds middleware configuration
type Config struct {
	Logger         *logging.Logger
	ServiceName    string
	EnableCORS     bool
	TrustedProxies []string
	// ExcludePaths are not access-logged
	ExcludePaths []string
}

func DefaultConfig(serviceName string, logger *logging.Logger) *Config {
	return &Config{
		Logger:       logger,
		ServiceName:  serviceName,
		EnableCORS:   true,
		ExcludePaths: []string{"/health", "/ready", "/metrics"},
	}
}

// Setup installs the request pipeline shared by every disposition route:
// recovery, request/correlation ids, access log, sanitising, CORS,
// content-type enforcement and error rendering.
func Setup(router *gin.Engine, config *Config) {
	InitValidator()

	if len(config.TrustedProxies) > 0 {
		_ = router.SetTrustedProxies(config.TrustedProxies)
	}

	chain := []gin.HandlerFunc{
		Recovery(config.Logger),
		RequestID(),
		CorrelationID(),
		LoggerWithConfig(&LoggerConfig{Logger: config.Logger, ExcludePaths: config.ExcludePaths}),
		InputSanitizer(),
	}
	if config.EnableCORS {
		chain = append(chain, CORS())
	}
	chain = append(chain, ContentType(), ErrorHandler(config.Logger))
	router.Use(chain...)

	router.HandleMethodNotAllowed = true
	router.NoRoute(routeError(http.StatusNotFound, "ROUTE_NOT_FOUND", "The requested resource was not found"))
	router.NoMethod(routeError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "The request method is not supported for this resource"))
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":   "*",
	"Access-Control-Allow-Methods":  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	"Access-Control-Allow-Headers":  "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Correlation-ID",
	"Access-Control-Expose-Headers": "X-Request-ID, X-Correlation-ID",
	"Access-Control-Max-Age":        "86400",
}

// CORS allows any origin and answers preflight requests directly
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		for name, value := range corsHeaders {
			c.Header(name, value)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func routeError(status int, code, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(status, APIErrorResponse{
			Code:      code,
			Message:   message,
			RequestID: GetRequestID(c),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Path:      c.Request.URL.Path,
		})
	}
}

// HealthCheck is the liveness probe
func HealthCheck(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	}
}

// Check is one named dependency probed by ReadinessCheck
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// ReadinessCheck runs every check with a short deadline and reports 503 if any fails
func ReadinessCheck(serviceName string, checks ...Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "ready", http.StatusOK
		results := make(map[string]string, len(checks))
		for _, check := range checks {
			if err := check.Probe(ctx); err != nil {
				results[check.Name] = err.Error()
				status, code = "not ready", http.StatusServiceUnavailable
				continue
			}
			results[check.Name] = "ok"
		}

		c.JSON(code, gin.H{"status": status, "service": serviceName, "checks": results})
	}
}
