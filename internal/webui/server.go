package webui

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"minutes/internal/config"
	"minutes/internal/logging"
	"minutes/internal/metrics"
	"minutes/internal/workflow"
)

//go:embed static/index.html
var indexHTML []byte

const (
	shutdownTimeout   = 5 * time.Second
	maxJanitorPeriod  = time.Minute
	defaultJobTTL     = time.Hour
	multipartOverhead = 1 << 20
)

// Runner executes one transcription job.
type Runner interface {
	Transcribe(ctx context.Context, job workflow.Job) (*workflow.Outcome, error)
}

// Limits are the upload size gates.
type Limits struct {
	Soft int64
	Hard int64
}

// Server is the upload UI and its JSON API.
type Server struct {
	bind    string
	workDir string
	limits  Limits
	ttl     time.Duration

	runner         Runner
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	logger         *slog.Logger
	jobs           *registry
	handler        http.Handler

	baseCtx context.Context
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records upload counters on met and serves handler at /metrics.
func WithMetrics(met *metrics.Metrics, handler http.Handler) Option {
	return func(s *Server) {
		if met != nil {
			s.metrics = met
		}
		s.metricsHandler = handler
	}
}

// WithClock overrides the job timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.jobs = newRegistry(now) }
}

// New builds a server for cfg that hands uploads to runner.
func New(cfg *config.Config, runner Runner, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	ttl := cfg.JobTTL()
	if ttl <= 0 {
		ttl = defaultJobTTL
	}
	s := &Server{
		bind:    strings.TrimSpace(cfg.Web.Bind),
		workDir: cfg.Paths.WorkDir,
		limits:  Limits{Soft: cfg.SoftLimitBytes(), Hard: cfg.HardLimitBytes()},
		ttl:     ttl,
		runner:  runner,
		metrics: metrics.Noop(),
		logger:  logging.NewComponentLogger(logger, "webui"),
		jobs:    newRegistry(nil),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /api/jobs/{id}/report", s.handleReport)
	mux.HandleFunc("GET /api/jobs/{id}/download", s.handleDownload)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return mux
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe listens on the configured bind address and serves until ctx
// is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("web listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve runs the HTTP server and the job janitor until ctx is canceled or
// either fails. Running jobs are canceled and awaited before returning.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	s.baseCtx = jobCtx

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("web serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		s.runJanitor(groupCtx)
		return nil
	})

	s.logger.Info("web ui listening",
		logging.String("address", "http://"+listener.Addr().String()),
		logging.String(logging.FieldEventType, "web_listening"),
	)
	err := group.Wait()
	cancelJobs()
	s.jobs.shutdown()
	return err
}

func (s *Server) runJanitor(ctx context.Context) {
	period := s.ttl / 2
	if period > maxJanitorPeriod {
		period = maxJanitorPeriod
	}
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.jobs.prune(s.ttl); n > 0 {
				s.logger.Debug("pruned finished jobs", logging.Int("count", n))
			}
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": s.jobs.busy()})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.list()})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	view, _, ok := s.jobs.get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	view, report, ok := s.jobs.get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if view.Status != JobSucceeded {
		s.writeError(w, http.StatusConflict, "report not ready")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	_, _ = w.Write([]byte(report))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	view, report, ok := s.jobs.get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if view.Status != JobSucceeded {
		s.writeError(w, http.StatusConflict, "report not ready")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", contentDisposition(TranscriptName(view.InputName)))
	_, _ = w.Write([]byte(report))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
