// Package handle holds the router plumbing shared by every photomap HTTP endpoint.
package handle

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// InitializeRoutes installs panic recovery and access logging on router and registers the
// health check endpoints.
func InitializeRoutes(router *mux.Router, log *logrus.Logger, version string) {
	router.Use(Recovery(log), AccessLog(log))
	router.Handle("/api/health", health(version)).Methods(http.MethodGet)
	router.Handle("/health_check", health(version)).Methods(http.MethodGet)
}

// CORS allows the map page to call the API from any origin.
func CORS(next http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "Accept"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedOrigins([]string{"*"}),
	)(next)
}
