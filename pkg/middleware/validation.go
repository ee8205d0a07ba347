package middleware

import (
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/wms-platform/disposition-service/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// patterns backs the string validators registered under each tag
var patterns = map[string]*regexp.Regexp{
	"direction":   regexp.MustCompile(`^(export|import)$`),
	"load_id":     regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`),
	"safe_string": regexp.MustCompile(`^[^\x00-\x08\x0B\x0C\x0E-\x1F]*$`),
}

func registerCustom(v *validator.Validate) {
	for tag, re := range patterns {
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		})
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// InitValidator registers the disposition validators on a standalone
// validator and on gin's binding engine
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		registerCustom(validate)

		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			registerCustom(v)
		}
	})
	return validate
}

// GetValidator returns the singleton validator instance
func GetValidator() *validator.Validate {
	return InitValidator()
}

// SanitizeString strips null bytes and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// InputSanitizer sanitizes query parameters
func InputSanitizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.RawQuery == "" {
			c.Next()
			return
		}
		query := c.Request.URL.Query()
		for _, values := range query {
			for i := range values {
				values[i] = SanitizeString(values[i])
			}
		}
		c.Request.URL.RawQuery = query.Encode()
		c.Next()
	}
}

// ContentType requires a JSON content type on non-empty write requests
func ContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		write := c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut || c.Request.Method == http.MethodPatch
		if write && c.Request.ContentLength > 0 && !strings.HasPrefix(c.ContentType(), "application/json") {
			AbortWithAppError(c, errors.NewAppError("INVALID_CONTENT_TYPE", "Content-Type must be application/json", http.StatusUnsupportedMediaType))
			return
		}
		c.Next()
	}
}
