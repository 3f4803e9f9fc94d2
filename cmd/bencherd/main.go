// Binary bencherd runs the Bencher continuous-benchmarking service
// (SPEC_FULL.md §2, component 10): REST, OCI Distribution, and WebSocket runner
// channels over a single SQLite-backed process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"bencher/internal/config"
	"bencher/internal/server"
	"bencher/internal/store"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&serveCmd{}, "")
	subcommands.Register(&migrateCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

type serveCmd struct {
	configPath string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the bencherd server" }
func (*serveCmd) Usage() string {
	return "serve [-config path/to/bencherd.yaml]\n"
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a bencherd YAML config file")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := config.Load(c.configPath)
	if err != nil {
		log.WithError(err).Error("loading configuration")
		return subcommands.ExitFailure
	}

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("initializing server")
		return subcommands.ExitFailure
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(sigCtx) }()

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutting down")
			return subcommands.ExitFailure
		}
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server exited")
			return subcommands.ExitFailure
		}
	}
	return subcommands.ExitSuccess
}

type migrateCmd struct {
	configPath string
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply pending database migrations" }
func (*migrateCmd) Usage() string {
	return "migrate [-config path/to/bencherd.yaml]\n"
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "path to a bencherd YAML config file")
}

func (c *migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := config.Load(c.configPath)
	if err != nil {
		log.WithError(err).Error("loading configuration")
		return subcommands.ExitFailure
	}

	if err := store.Migrate(cfg.DBPath); err != nil {
		log.WithError(err).Error("applying migrations")
		return subcommands.ExitFailure
	}
	log.WithField("db_path", cfg.DBPath).Info("migrations applied")
	return subcommands.ExitSuccess
}
