package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vk/scengridgo/internal/plan"
)

// unitStatus is one row of the status report.
type unitStatus struct {
	Scenario string `json:"scenario"`
	Step     string `json:"step"`
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
	JobID    string `json:"job_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// statusServer exposes the run's progress over HTTP while units execute:
// GET /health answers liveness probes, GET /status reports every unit's
// current state. It keeps its own copy of unit states, fed by dispatcher
// transition callbacks, so handlers never read fields a worker goroutine is
// writing.
type statusServer struct {
	logger  *slog.Logger
	runID   string
	project string
	started time.Time

	mu    sync.Mutex
	order []string
	units map[string]*unitStatus
}

func newStatusServer(logger *slog.Logger, runID, projectName string, units []*plan.RunUnit) *statusServer {
	s := &statusServer{
		logger:  logger,
		runID:   runID,
		project: projectName,
		started: time.Now(),
		units:   make(map[string]*unitStatus, len(units)),
	}
	for _, u := range units {
		id := u.ID()
		s.order = append(s.order, id)
		s.units[id] = &unitStatus{
			Scenario: u.Scenario.Name,
			Step:     u.Step.Name,
			State:    u.State.String(),
			Reason:   u.Reason,
		}
	}
	return s
}

// unitChanged is the dispatcher's transition callback. It runs on a worker
// goroutine and must return quickly.
func (s *statusServer) unitChanged(u *plan.RunUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.units[u.ID()]
	if !ok {
		return
	}
	row.State = u.State.String()
	row.Reason = u.Reason
	row.JobID = u.JobID
	if u.Err != nil {
		row.Error = u.Err.Error()
	}
}

func (s *statusServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *statusServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Status endpoint hit.", "remote_addr", r.RemoteAddr)

	s.mu.Lock()
	rows := make([]unitStatus, 0, len(s.order))
	for _, id := range s.order {
		rows = append(rows, *s.units[id])
	}
	s.mu.Unlock()

	report := struct {
		RunID   string       `json:"run_id"`
		Project string       `json:"project"`
		Started time.Time    `json:"started"`
		Units   []unitStatus `json:"units"`
	}{s.runID, s.project, s.started, rows}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.logger.Warn("Failed to write status report.", "error", err)
	}
}

// serve runs the status HTTP server until ctx is canceled, then shuts it
// down gracefully.
func (s *statusServer) serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🩺 Status server starting", "address", fmt.Sprintf("http://localhost%s/status", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Debug("Status server shut down gracefully.")
	return nil
}
