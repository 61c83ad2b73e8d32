package httpmiddleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// CORSConfig configures cross-origin access for the browser frontend.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowMethods defaults to the methods the API serves.
	AllowMethods []string
	AllowHeaders []string
	// ExposeHeaders lists response headers readable by the browser.
	ExposeHeaders []string
	// AllowCredentials lets the frontend send the session cookie. With a
	// wildcard origin the request origin is echoed instead of "*".
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

var defaultCORSMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// CORS handles preflight and actual cross-origin requests.
func CORS(cfg CORSConfig) Middleware {
	opts := cors.Options{
		AllowedMethods:   cfg.AllowMethods,
		AllowedHeaders:   cfg.AllowHeaders,
		ExposedHeaders:   cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = defaultCORSMethods
	}
	wildcard := len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*")
	switch {
	case wildcard && cfg.AllowCredentials:
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	case wildcard:
		opts.AllowedOrigins = []string{"*"}
	default:
		opts.AllowedOrigins = cfg.AllowOrigins
	}
	return cors.New(opts).Handler
}
