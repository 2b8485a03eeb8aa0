// Package api assembles the HTTP surface: versioned JSON endpoints,
// the websocket upgrade, health probes and the metrics scrape.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatsync/pkg/api/handlers"
	"chatsync/pkg/auth"
	"chatsync/pkg/gateway"
	"chatsync/pkg/store"
)

// NewRouter builds the full handler chain. Every route passes through
// api-key authentication; /v1 routes additionally resolve the signed
// user identity.
func NewRouter(sec auth.SecConfig, gw *gateway.Gateway) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !store.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireSignedUser(sec))
	handlers.RegisterUsers(v1)
	handlers.RegisterGroups(v1)
	handlers.RegisterMessages(v1)
	handlers.RegisterNotifications(v1)
	handlers.RegisterSign(v1, sec)

	// the gateway resolves identity itself: ws handshakes from browsers
	// carry the signature in query params, not headers
	r.HandleFunc("/ws", gw.HandleWS).Methods(http.MethodGet)

	return auth.AuthenticateRequestMiddleware(sec)(r)
}
