package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the configured origins. origins is "*" or a comma separated
// list; the matching request origin is echoed back.
func CORS(origins string) func(http.Handler) http.Handler {
	allowedList := strings.Split(origins, ",")
	for i := range allowedList {
		allowedList[i] = strings.TrimSpace(allowedList[i])
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqOrigin := r.Header.Get("Origin")
			allowed := allowedList[0]

			if reqOrigin != "" && isAllowed(reqOrigin, allowedList) {
				allowed = reqOrigin
			}

			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isAllowed(reqOrigin string, configured []string) bool {
	for _, c := range configured {
		if c == "*" || c == reqOrigin {
			return true
		}
	}
	return false
}
