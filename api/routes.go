package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamgate/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	addonsHandler *handlers.AddonsHandler,
	sourcesHandler *handlers.SourcesHandler,
	catalogsHandler *handlers.CatalogsHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	// Addon registry
	api.HandleFunc("/addons", addonsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/addons", addonsHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/addons", addonsHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/addons/{addonID}", addonsHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/addons/{addonID}", addonsHandler.Update).Methods(http.MethodPatch)
	api.HandleFunc("/addons/{addonID}", addonsHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/addons/{addonID}", addonsHandler.Options).Methods(http.MethodOptions)

	// Stream source aggregation; /events delivers progressive snapshots
	api.HandleFunc("/sources", sourcesHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/sources", sourcesHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/sources/events", sourcesHandler.Events).Methods(http.MethodGet)
	api.HandleFunc("/sources/events", sourcesHandler.Options).Methods(http.MethodOptions)

	// Catalog browsing
	api.HandleFunc("/catalogs", catalogsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/catalogs", catalogsHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/catalogs/{slug}", catalogsHandler.Items).Methods(http.MethodGet)
	api.HandleFunc("/catalogs/{slug}", catalogsHandler.Options).Methods(http.MethodOptions)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}
