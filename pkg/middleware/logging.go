package middleware

import (
	"fmt"
	"net/http"
	"time"

	"plugin-hub-backend/pkg/config"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger returns the request logging middleware: structured output in
// production, chi's standard logger elsewhere
func Logger(cfg *config.Config) func(http.Handler) http.Handler {
	if cfg.IsProduction() {
		return CustomLogger(cfg)
	}
	return middleware.Logger
}

// CustomLogger logs one line per request: JSON in production, colored
// text in development
func CustomLogger(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			userInfo := "anonymous"
			if user, ok := GetUserFromContext(r.Context()); ok && user != nil {
				userInfo = user.Email
			}

			if cfg.IsProduction() {
				logProductionRequest(r, ww, duration, userInfo)
			} else {
				logDevelopmentRequest(r, ww, duration, userInfo)
			}
		})
	}
}

func logProductionRequest(r *http.Request, ww middleware.WrapResponseWriter, duration time.Duration, userInfo string) {
	fmt.Printf(`{"time":"%s","method":"%s","path":"%s","status":%d,"duration":"%s","user":"%s","ip":"%s","user_agent":"%s"}`+"\n",
		time.Now().Format(time.RFC3339),
		r.Method,
		r.URL.Path,
		ww.Status(),
		duration,
		userInfo,
		getClientIP(r),
		r.UserAgent(),
	)
}

func logDevelopmentRequest(r *http.Request, ww middleware.WrapResponseWriter, duration time.Duration, userInfo string) {
	statusColor := getStatusColor(ww.Status())
	methodColor := getMethodColor(r.Method)

	fmt.Printf("%s %s %s%s%s %s%d%s %s %s %s\n",
		time.Now().Format("15:04:05"),
		methodColor+r.Method+"\033[0m",
		"\033[36m",
		r.URL.Path,
		"\033[0m",
		statusColor,
		ww.Status(),
		"\033[0m",
		duration,
		userInfo,
		getClientIP(r),
	)
}

// getClientIP resolves the client address behind proxies
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func getStatusColor(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "\033[32m"
	case status >= 300 && status < 400:
		return "\033[33m"
	case status >= 400 && status < 500:
		return "\033[31m"
	case status >= 500:
		return "\033[35m"
	default:
		return "\033[0m"
	}
}

func getMethodColor(method string) string {
	switch method {
	case "GET":
		return "\033[34m"
	case "POST":
		return "\033[32m"
	case "PUT":
		return "\033[33m"
	case "DELETE":
		return "\033[31m"
	case "PATCH":
		return "\033[36m"
	case "OPTIONS":
		return "\033[37m"
	default:
		return "\033[0m"
	}
}
