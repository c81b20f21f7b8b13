package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ryoshumei/workflowengine/internal/config"
	"github.com/ryoshumei/workflowengine/internal/coordinator"
	"github.com/ryoshumei/workflowengine/internal/ctxlog"
	"github.com/ryoshumei/workflowengine/internal/filestore"
	"github.com/ryoshumei/workflowengine/internal/httpapi"
	"github.com/ryoshumei/workflowengine/internal/llm"
	"github.com/ryoshumei/workflowengine/internal/nodeexec"
	"github.com/ryoshumei/workflowengine/internal/pdftext"
	"github.com/ryoshumei/workflowengine/internal/repository"
	"github.com/ryoshumei/workflowengine/internal/scheduler"
)

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	repo, closeRepo, err := buildRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	files, err := filestore.New(cfg.FileStoreDir)
	if err != nil {
		return err
	}

	llmClient := llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMAPIBase)
	extractor := pdftext.LedongthucExtractor{}
	services := nodeexec.Services{
		Files:     files,
		Extractor: extractor,
		LLM:       llmClient,
		Clock:     nodeexec.RealClock{},
	}

	coord := coordinator.New(repo, services)
	sched := scheduler.New(repo, coord)

	staleAge, err := time.ParseDuration(cfg.StaleJobAge)
	if err != nil {
		return fmt.Errorf("invalid stale-job-age: %w", err)
	}
	swept, err := sched.SweepStale(ctx, staleAge)
	if err != nil {
		return err
	}
	logger.Info("startup sweep complete", "jobs_interrupted", swept)

	router := httpapi.NewRouter(repo, sched, extractor, files)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case <-sigc:
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// buildRepository selects the Postgres-backed Repository when
// cfg.DatabaseURL is set, otherwise the in-memory one. The returned
// closer releases any pool the Postgres path opened.
func buildRepository(ctx context.Context, cfg config.Config) (repository.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		return repository.NewMemoryRepository(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, func() {}, fmt.Errorf("connect to postgres: %w", err)
	}
	return repository.NewPostgresRepository(pool), pool.Close, nil
}

func main() {
	cmd := &cobra.Command{
		Use:  "workflowengine",
		RunE: run,
	}
	if err := config.RegisterFlags(cmd); err != nil {
		log.Fatal(err)
	}
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
