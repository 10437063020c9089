// Package health serves /healthz and /readyz for the voxscribe web host.
//
// Both endpoints report the configured recognition engine and the model the
// cache currently holds. /readyz additionally runs every [Checker] and
// answers 503 when any of them fails.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Runtime describes the transcription backend behind the server.
type Runtime struct {
	Engine string
	// LoadedModel returns the model held by the engine cache, or "".
	LoadedModel func() string
}

type report struct {
	Status      string            `json:"status"`
	Engine      string            `json:"engine,omitempty"`
	LoadedModel string            `json:"loaded_model,omitempty"`
	Checks      map[string]string `json:"checks,omitempty"`
}

type Handler struct {
	runtime  Runtime
	checkers []Checker
}

func New(rt Runtime, checkers ...Checker) *Handler {
	return &Handler{runtime: rt, checkers: append([]Checker(nil), checkers...)}
}

func (h *Handler) base(status string) report {
	r := report{Status: status, Engine: h.runtime.Engine}
	if h.runtime.LoadedModel != nil {
		r.LoadedModel = h.runtime.LoadedModel()
	}
	return r
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.base("ok"))
}

// Readyz runs all checkers concurrently, each bounded by checkTimeout.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	outcomes := make([]string, len(h.checkers))

	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			if err := c.Check(ctx); err != nil {
				outcomes[i] = "fail: " + err.Error()
				return err
			}
			outcomes[i] = "ok"
			return nil
		})
	}
	failed := g.Wait() != nil

	res := h.base("ok")
	res.Checks = make(map[string]string, len(h.checkers))
	for i, c := range h.checkers {
		res.Checks[c.Name] = outcomes[i]
	}

	status := http.StatusOK
	if failed {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
