package server

import (
	"encoding/json"
	"net/http"

	"accounts-telemetry/internal/glean"
)

// Handler serves the demo account endpoints that fire telemetry events. The
// account logic itself is a stand-in: the point of these handlers is the
// telemetry call pattern at a success boundary.
type Handler struct {
	metrics *glean.ServerMetrics
}

// New returns a Handler recording through metrics.
func New(metrics *glean.ServerMetrics) *Handler {
	return &Handler{metrics: metrics}
}

// Routes returns the service mux. Callers wrap it with the Metrics middleware
// so handlers can read the request's telemetry source from context.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/account/login", h.login)
	mux.HandleFunc("POST /v1/account/create", h.create)
	mux.HandleFunc("GET /healthz", h.health)
	return mux
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	if email == "" {
		http.Error(w, `{"error":"email is required"}`, http.StatusBadRequest)
		return
	}
	// Stand-in for credential verification; uid would come from the account
	// store on a real login.
	uid := "demo-" + email

	h.metrics.Login().Success(r.Context(), SourceFrom(r.Context()), &glean.MetricsData{UID: uid})
	writeJSON(w, map[string]bool{"success": true})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	if email == "" {
		http.Error(w, `{"error":"email is required"}`, http.StatusBadRequest)
		return
	}
	uid := "demo-" + email

	h.metrics.Registration().Complete(r.Context(), SourceFrom(r.Context()), &glean.MetricsData{UID: uid})
	writeJSON(w, map[string]bool{"success": true})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
