package common

import (
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/heptiolabs/healthcheck"
)

// healthAddr is the default listen address for the health endpoints.
const healthAddr = ":8080"

// HealthServer serves the liveness and readiness probes. Liveness is
// always healthy while the process runs; readiness follows the ready
// flag the service flips once its dependencies are wired up.
type HealthServer struct {
	server *http.Server
}

// NewHealthServer starts a health server on the default address and
// returns it. The caller owns shutdown via Server().Shutdown.
func NewHealthServer(ready *atomic.Bool) *HealthServer {
	health := healthcheck.NewHandler()
	health.AddReadinessCheck("service", func() error {
		if !ready.Load() {
			return errors.New("service is not ready")
		}
		return nil
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", health.LiveEndpoint)
	mux.HandleFunc("/v1/readiness", health.ReadyEndpoint)

	hs := &HealthServer{
		server: &http.Server{
			Addr:         healthAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("health server error: %v", err)
		}
	}()

	return hs
}

// Server returns the underlying HTTP server for shutdown control.
func (h *HealthServer) Server() *http.Server { return h.server }
