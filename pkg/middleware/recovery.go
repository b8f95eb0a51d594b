package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"plugin-hub-backend/pkg/config"
	"plugin-hub-backend/pkg/utils"
)

// Recovery turns handler panics into 500 envelopes instead of dropped
// connections. Development responses include the stack trace.
func Recovery(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					stack := debug.Stack()
					fmt.Printf("❌ PANIC: %v\n", err)
					fmt.Printf("📍 Stack trace:\n%s\n", stack)

					if cfg.IsDevelopment() {
						utils.WriteErrorResponseWithCode(w, http.StatusInternalServerError,
							"INTERNAL_SERVER_ERROR",
							fmt.Sprintf("Internal server error: %v", err),
							string(stack))
					} else {
						utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
