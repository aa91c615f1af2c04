// Package health serves the liveness and readiness probes of the tutoring
// server.
//
//   - GET /healthz answers 200 while the process can serve HTTP.
//   - GET /readyz answers 200 only when every [Checker] passes. The
//     [Models] checker fails when no conversational model answers its probe,
//     since no learner message could be answered then.
//
// Bodies are JSON: {"status":"ok"|"fail","checks":{name: "ok"|"fail: …"}}.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// ErrNoHealthyModel is returned by the [Models] checker.
var ErrNoHealthyModel = errors.New("health: no healthy conversational model")

// Checker is a named readiness check. Check returns nil when the dependency
// is usable and must respect context cancellation.
type Checker struct {
	// Name is the key of this check in the JSON body (e.g. "models").
	Name string

	Check func(ctx context.Context) error
}

// ServiceTester probes registered model adapters, keyed by model ID.
type ServiceTester interface {
	TestAllServices(ctx context.Context) map[string]bool
}

// Models returns a checker named "models" that passes when at least one
// model adapter reports healthy.
func Models(t ServiceTester) Checker {
	return Checker{
		Name: "models",
		Check: func(ctx context.Context) error {
			return CheckModels(ctx, t)
		},
	}
}

// CheckModels probes every adapter behind t. The error lists the unhealthy
// model IDs.
func CheckModels(ctx context.Context, t ServiceTester) error {
	results := t.TestAllServices(ctx)
	var down []string
	for id, ok := range results {
		if ok {
			return nil
		}
		down = append(down, id)
	}
	slices.Sort(down)
	return fmt.Errorf("%w: unhealthy %v", ErrNoHealthyModel, down)
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] evaluating checkers on each /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)
	for _, c := range h.checkers {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
				return
			}
			checks[c.Name] = "ok"
		})
	}
	wg.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
