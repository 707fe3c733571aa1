package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mbocsi/lime-go/client"
)

// diagnosticsRoutes exposes the driver's current session state over
// HTTP for operators running the sample CLI long-lived, mirroring the
// teacher's web.WebClient.Routes chi router.
func diagnosticsRoutes(cc *client.ClientChannel) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"state":     string(cc.State()),
			"sessionId": cc.SessionID(),
		})
	})
	return r
}
