// Package health serves liveness and readiness probes for the assistant
// process.
//
//   - /healthz answers 200 whenever the process can serve HTTP.
//   - /readyz answers 200 only while every registered [Checker] passes;
//     [ProviderChecker] and [DeviceChecker] cover the standard concerns.
//
// Both endpoints respond with a JSON body carrying an overall "status" and,
// for readiness, a per-checker "checks" map.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Each readiness checker gets this long before its context is cancelled.
const checkTimeout = 5 * time.Second

// Checker probes one dependency for readiness.
type Checker struct {
	// Name keys the check's entry in the /readyz response.
	Name string

	// Check returns nil while the dependency can serve. It must honour ctx.
	Check func(ctx context.Context) error
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the probe endpoints. The checker set is fixed at
// construction, so a Handler is safe for concurrent requests.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] over the given checkers. /readyz evaluates them
// sequentially in this order.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz reports liveness; it always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs every checker and answers 200 when all pass, 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, ready := h.runChecks(r.Context())

	res := response{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !ready {
		res.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

func (h *Handler) runChecks(ctx context.Context) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers))
	ready := true
	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()
		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ready = false
			continue
		}
		checks[c.Name] = "ok"
	}
	return checks, ready
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
