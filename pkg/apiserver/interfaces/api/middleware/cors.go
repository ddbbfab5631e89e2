package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSOptions defines how cross-origin requests are handled.
type CORSOptions struct {
	AllowOrigins     []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// CORS builds the gin-contrib cors handler. "*" allows any origin; with credentials the
// origin is reflected since browsers reject a wildcard in that case.
func CORS(opts CORSOptions) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Accept", "Content-Type", "Traceparent", "Tracestate"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           opts.MaxAge,
	}
	origins := normalizeList(opts.AllowOrigins)
	switch {
	case hasItem(origins, "*") && opts.AllowCredentials:
		cfg.AllowOriginFunc = func(string) bool { return true }
	case hasItem(origins, "*") || len(origins) == 0:
		cfg.AllowAllOrigins = true
	default:
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func hasItem(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func normalizeList(values []string) []string {
	var out []string
	for _, v := range values {
		item := strings.TrimSpace(v)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
