package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/newsroom-engine/internal/app"
	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "newsroom-scheduler",
		Short: "Background scheduler for the newsroom engine",
		Long: `Runs discovery on a schedule and resumes topics left mid-collect.
This daemon should be run as a service for autonomous operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting newsroom scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close application")
		}
	}()

	server := newHealthServer(cfg.Scheduler.Port, engine)
	go func() {
		log.Info().Str("port", cfg.Scheduler.Port).Msg("Health check server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health server failed")
		}
	}()

	cl := cronLogger{log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	_, err = c.AddFunc(cfg.Scheduler.DiscoveryCron, func() {
		log.Info().Msg("Running scheduled discovery")

		result, err := engine.Discovery.Run(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Scheduled discovery failed")
			return
		}

		log.Info().
			Int("fetched", result.Fetched).
			Int("topics_created", result.TopicsCreated).
			Int("topics_reused", result.TopicsReused).
			Int("new_topics", len(result.Topics)).
			Str("error", result.ErrorMessage).
			Msg("Scheduled discovery completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule discovery job: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.DiscoveryCron).Msg("Discovery job scheduled")

	_, err = c.AddFunc(cfg.Scheduler.ResumeCron, func() {
		results, err := engine.Pipeline.ResumeStuck(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Resume failed for some topics")
		}
		if len(results) > 0 {
			log.Info().Int("resumed", len(results)).Msg("Resumed stuck topics")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule resume job: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.ResumeCron).Msg("Resume job scheduled")

	c.Start()
	log.Info().Msg("Scheduler started")

	<-ctx.Done()

	log.Info().Msg("Shutting down scheduler")
	// Wait for running jobs before the container closes
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Health server shutdown")
	}
	return nil
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// newHealthServer serves /health for the platform probe and /metrics for prometheus
func newHealthServer(port string, engine *app.App) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if engine.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(engine.Registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Newsroom Scheduler"))
	})

	return &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
