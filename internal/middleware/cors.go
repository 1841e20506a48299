package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// DefaultOrigin is the web client's development origin.
const DefaultOrigin = "http://127.0.0.1:5173"

// CORS allows origin to call the relay with credentials. An empty origin
// uses DefaultOrigin.
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = DefaultOrigin
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Access-Control-Allow-Headers, Authorization, X-Requested-With")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				logrus.WithField("path", r.URL.Path).Debug("cors preflight")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
