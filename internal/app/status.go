package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/vk/actiongrid/internal/workflow"
)

// statusServer exposes /health and a live /actions report while a workflow
// runs.
type statusServer struct {
	logger *slog.Logger
	report func() *workflow.Report
	srv    *http.Server
}

func newStatusServer(logger *slog.Logger, report func() *workflow.Report) *statusServer {
	s := &statusServer{logger: logger, report: report}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/actions", s.actionsHandler)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *statusServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *statusServer) actionsHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Status endpoint hit.", "remote_addr", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.report()); err != nil {
		s.logger.Error("Encoding status report failed.", "error", err)
	}
}

// start listens on port and serves in the background.
func (s *statusServer) start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	s.logger.Info("Status server starting.", "address", fmt.Sprintf("http://localhost:%d/actions", port))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server failed unexpectedly.", "error", err)
		}
	}()
	return nil
}

func (s *statusServer) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Error("Status server shutdown failed.", "error", err)
		return
	}
	s.logger.Debug("Status server shut down gracefully.")
}
