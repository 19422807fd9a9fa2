package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/irrigation_agent/internal/services/decision"
)

// HTTPDeps collects what the HTTP surface serves. Nil members disable the
// matching routes.
type HTTPDeps struct {
	Service  *Service
	Catalog  decision.FieldCatalog
	Gatherer prometheus.Gatherer
	Health   http.Handler
	Ready    http.Handler
}

func NewHTTPMux(d HTTPDeps) *http.ServeMux {
	mux := http.NewServeMux()

	if d.Health != nil {
		mux.Handle("/healthz", d.Health)
	} else {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	}
	if d.Ready != nil {
		mux.Handle("/readyz", d.Ready)
	}
	if d.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// GET /decide?field_id=<int>
	if d.Service != nil {
		mux.HandleFunc("GET /decide", func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.URL.Query().Get("field_id"))
			id, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "field_id must be an integer")
				return
			}
			writeJSON(w, http.StatusOK, d.Service.Decide(r.Context(), id))
		})
	}

	// GET /fields/{id} serves the catalog to remote agents.
	if d.Catalog != nil {
		mux.HandleFunc("GET /fields/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.Atoi(r.PathValue("id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "field id must be an integer")
				return
			}
			rec, err := d.Catalog.Lookup(r.Context(), id)
			switch {
			case errors.Is(err, decision.ErrFieldNotFound):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, context.Canceled):
				writeError(w, http.StatusServiceUnavailable, err.Error())
			case err != nil:
				writeError(w, http.StatusBadGateway, err.Error())
			default:
				writeJSON(w, http.StatusOK, rec)
			}
		})
	}

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
