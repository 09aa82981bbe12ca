package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/printq/pkg/httpx"
	"github.com/aussiebroadwan/printq/pkg/reportsdk"
)

// Pinger is a dependency a readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthChecks lists what ReadyzHandler checks. Nil entries are skipped
// and left out of the response.
type HealthChecks struct {
	Storage Pinger
	Queue   Pinger
	Audit   Pinger
}

// LivezHandler always answers 200 while the process is serving.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, reportsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler pings every configured dependency and answers 503 with
// status "degraded" when any of them fails.
func ReadyzHandler(startTime time.Time, version string, hc HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := &reportsdk.HealthChecks{}
		status := "ok"
		code := http.StatusOK

		probe := func(p Pinger, out *string) {
			if p == nil {
				return
			}
			if err := p.Ping(ctx); err != nil {
				*out = "error: " + err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
				return
			}
			*out = "ok"
		}
		probe(hc.Storage, &checks.Storage)
		probe(hc.Queue, &checks.Queue)
		probe(hc.Audit, &checks.Audit)

		httpx.WriteJSON(w, code, reportsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

// HealthMux serves only the probes. The worker exposes it on its health
// port.
func HealthMux(startTime time.Time, version string, hc HealthChecks) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealth(mux, startTime, version, hc)
	return mux
}

func registerHealth(mux *http.ServeMux, startTime time.Time, version string, hc HealthChecks) {
	live := LivezHandler(startTime, version)
	ready := ReadyzHandler(startTime, version, hc)

	mux.Handle("GET /livez", live)
	mux.Handle("GET /readyz", ready)
	mux.Handle("GET /live", live)
	mux.Handle("GET /ready", ready)
}
