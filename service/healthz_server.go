package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-bench/metrics"
)

// RunStatus is the outcome of the most recent benchmark run.
type RunStatus struct {
	RunID      string    `json:"runId"`
	Status     string    `json:"status"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	FinishedAt time.Time `json:"finishedAt"`
}

type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	log    log.Logger

	mu   sync.RWMutex
	last *RunStatus
}

func NewHealthzServer(logger log.Logger) *HealthzServer {
	if logger == nil {
		logger = log.Root()
	}
	return &HealthzServer{log: logger}
}

// SetLastRun records the status served by /status.
func (h *HealthzServer) SetLastRun(status RunStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &status
}

// LastRun returns the recorded status, or nil before the first run.
func (h *HealthzServer) LastRun() *RunStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return nil
	}
	last := *h.last
	return &last
}

// Handler returns the router wrapped with permissive CORS.
func (h *HealthzServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	r.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.mu.Lock()
	h.server = server
	h.ctx = ctx
	h.mu.Unlock()
	return server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	h.mu.RLock()
	server, ctx := h.server, h.ctx
	h.mu.RUnlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	last := h.LastRun()
	if last == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"pending"}`)) //nolint:errcheck
		return
	}

	body, err := json.Marshal(last)
	if err != nil {
		h.log.Error("failed to marshal run status", "err", err)
		metrics.RecordErrorDetails("status_marshal", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body) //nolint:errcheck
}
