// Package server assembles bencherd's process lifecycle (SPEC_FULL.md
// §2, component 10): opens the storage substrate, wires the ingestion pipeline, runner
// channel and OCI registry together, and serves the combined HTTP surface
// behind a connection-count limiter.
package server

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"

	"bencher/internal/api"
	"bencher/internal/apierrors"
	"bencher/internal/config"
	"bencher/internal/ingest"
	"bencher/internal/model"
	"bencher/internal/oci"
	"bencher/internal/runner"
	"bencher/internal/store"
)

// Server owns every long-lived component bencherd runs: the storage
// substrate, the runner channel's background tasks, and the HTTP listener
// multiplexing REST, OCI Distribution, and WebSocket traffic.
type Server struct {
	cfg *config.Config
	log *logrus.Entry

	Store    *store.Store
	Ingester *ingest.Ingester
	Jobs     *runner.Jobs
	Tasks    *runner.TimeoutTasks
	Channel  *runner.Channel
	Registry *oci.Registry
	API      *api.API

	httpServer *http.Server
	cancel     context.CancelFunc
}

// New opens the storage substrate and wires every component per cfg. The
// returned Server is not yet listening; call Start.
func New(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s, err := store.Open(store.Options{
		Path:         cfg.DBPath,
		MaxPoolConns: cfg.MaxPoolConns,
		BusyTimeout:  cfg.BusyTimeout,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	hmacKey := make([]byte, 32)
	if _, err := rand.Read(hmacKey); err != nil {
		s.Close()
		return nil, fmt.Errorf("generating runner token HMAC key: %w", err)
	}

	backend, err := newOCIBackend(ctx, cfg, log)
	if err != nil {
		s.Close()
		return nil, err
	}

	ig := ingest.New(s, log)
	jobs := &runner.Jobs{Store: s}

	runCtx, cancel := context.WithCancel(ctx)
	tasks := runner.NewTimeoutTasks(runCtx, jobs, log)

	registry := oci.NewRegistry(backend)

	channel := runner.NewChannel(jobs, tasks, hmacKey, log)
	channel.HeartbeatTimeout = cfg.HeartbeatTimeout
	channel.HeartbeatGrace = cfg.HeartbeatGrace
	channel.RateLimitPerSecond = cfg.RunnerRateLimitPerSecond
	channel.RateLimitBurst = cfg.RunnerRateLimitBurst
	channel.OnCompleted = newCompletedHandler(ig, jobs, registry, log)

	a := api.New(s, ig, jobs, channel, registry, hmacKey, cfg.BcryptCost, log)

	return &Server{
		cfg:      cfg,
		log:      log,
		Store:    s,
		Ingester: ig,
		Jobs:     jobs,
		Tasks:    tasks,
		Channel:  channel,
		Registry: registry,
		API:      a,
		cancel:   cancel,
	}, nil
}

func newOCIBackend(ctx context.Context, cfg *config.Config, log *logrus.Entry) (oci.Backend, error) {
	switch cfg.OCI.Backend {
	case config.OCIBackendS3:
		return oci.NewS3Backend(ctx, cfg.OCI.S3Bucket, cfg.OCI.S3Prefix)
	default:
		return oci.NewLocalBackend(cfg.OCI.LocalRoot, log), nil
	}
}

// newCompletedHandler closes over the dependencies the runner channel's
// Completed handler needs to store the job's output blob and re-invoke
// ingestion (spec.md §4.5, Open Question #1: failures here are logged and
// flagged, never revert the job's terminal status).
func newCompletedHandler(ig *ingest.Ingester, jobs *runner.Jobs, registry *oci.Registry, log *logrus.Entry) runner.CompletedHandler {
	return func(ctx context.Context, jobID model.JobID, results []runner.IterationOutput) error {
		conn, err := jobs.Store.Reader(ctx)
		if err != nil {
			return err
		}
		var configJSON, slug string
		scanErr := conn.QueryRowContext(ctx, `SELECT job.config_json, project.slug FROM job
			JOIN project ON project.id = job.project_id WHERE job.id = ?`, int64(jobID)).Scan(&configJSON, &slug)
		conn.Close()
		if scanErr != nil {
			return apierrors.Internal(scanErr, "reading completed job's config")
		}

		cfg, err := runner.DecodeJobConfig(configJSON)
		if err != nil {
			return err
		}

		if raw, merr := json.Marshal(results); merr == nil {
			if _, sErr := registry.StoreJobOutput(ctx, slug, raw); sErr != nil {
				log.WithError(sErr).WithField("job_id", jobID).Warn("failed to archive job output blob")
			}
		}

		in := ingest.Input{
			ProjectID:  cfg.ProjectID,
			Branch:     cfg.Branch,
			Testbed:    cfg.Testbed,
			StartTime:  time.Now().Add(-time.Minute),
			EndTime:    time.Now(),
			AdapterTag: cfg.AdapterTag,
			Iterations: make([][]byte, len(results)),
		}
		for i, res := range results {
			in.Iterations[i] = []byte(res.Output)
		}

		_, err = ig.SubmitReport(ctx, in)
		return err
	}
}

// Start runs migrations' caller (already applied in store.Open), re-arms
// heartbeat-timeout tasks for any non-terminal job left over from a prior
// process, and serves HTTP until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if err := runner.RearmNonTerminal(ctx, s.Jobs, s.Tasks, s.cfg.HeartbeatTimeout, s.cfg.HeartbeatGrace, s.log); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr, err)
	}
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	s.httpServer = &http.Server{Handler: s.API.NewRouter()}
	s.log.WithField("addr", s.cfg.ListenAddr).Info("bencherd listening")
	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, waits for every heartbeat-timeout
// task to finish, and closes the storage substrate.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	if err := s.Tasks.Wait(); err != nil {
		s.log.WithError(err).Warn("heartbeat-timeout tasks reported an error on shutdown")
	}
	return s.Store.Close()
}
