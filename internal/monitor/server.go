// Package monitor serves the agent's live status over HTTP.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lanepilot/internal/agent"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/httputil"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/version"
)

// StatusSource supplies the latest agent status.
type StatusSource interface {
	Snapshot() agent.Status
}

// Server exposes status, history and configuration.
type Server struct {
	status  StatusSource
	history *History
	control *config.ControlConfig
	mode    string
}

// NewServer builds a server. history may be nil, in which case an empty
// one-slot ring is used.
func NewServer(status StatusSource, history *History, control *config.ControlConfig, mode string) *Server {
	if history == nil {
		history = NewHistory(1)
	}
	if control == nil {
		control = config.EmptyControlConfig()
	}
	return &Server{status: status, history: history, control: control, mode: mode}
}

// ServeMux returns the /api handlers, rooted at "/".
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/version", s.handleVersion)
	return mux
}

// AttachAdminRoutes mounts the chart dashboard under /debug/.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("charts", "Live charts of recent ticks", s.handleCharts)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.status.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			httputil.BadRequest(w, "n must be a positive integer")
			return
		}
		n = parsed
	}
	recs := s.history.Recent(n)
	out := make([]agent.Status, len(recs))
	for i, rec := range recs {
		out[i] = agent.StatusFromRecord(rec)
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.control.Resolved())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
		"mode":       s.mode,
	})
}

// Serve listens on addr until ctx is done, then shuts down with a short
// grace period.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
