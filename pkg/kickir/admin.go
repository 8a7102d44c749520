package kickir

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teschmitt/kickir/internal/domain"
	"github.com/teschmitt/kickir/internal/ports"
	"github.com/teschmitt/kickir/internal/threshold"
)

// maxControlBody caps a PUT /thresholds body; "<SIDE>:<VALUE>" is far shorter.
const maxControlBody = 64

// Thresholds is the JSON shape of GET /thresholds.
type Thresholds struct {
	Home ThreshValue `json:"home"`
	Away ThreshValue `json:"away"`
}

type adminDeps struct {
	gatherer prometheus.Gatherer
	store    *threshold.Store
	control  ports.ControlHandler
	hub      http.Handler
	healthy  func() bool
}

func newAdminRouter(d adminDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", d.healthz)

	r.Route("/thresholds", func(r chi.Router) {
		r.Get("/", d.getThresholds)
		r.Put("/", d.putThreshold)
	})

	if d.hub != nil {
		r.Get("/ws", d.hub.ServeHTTP)
	}

	return r
}

func (d adminDeps) healthz(w http.ResponseWriter, _ *http.Request) {
	if d.healthy != nil && !d.healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "stopping",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (d adminDeps) getThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Thresholds{
		Home: d.store.Get(domain.SideHome),
		Away: d.store.Get(domain.SideAway),
	})
}

// putThreshold accepts the same "<SIDE>:<VALUE>" text the NATS and WebSocket
// control paths carry.
func (d adminDeps) putThreshold(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxControlBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if len(body) > maxControlBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "body too large"})
		return
	}

	if err := d.control.HandleWrite(body); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, threshold.ErrMalformedChange) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
