package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aalghamdi/voicedesk/internal/agent"
	"github.com/aalghamdi/voicedesk/internal/config"
	"github.com/aalghamdi/voicedesk/internal/httpapi"
	"github.com/aalghamdi/voicedesk/internal/observability"
	"github.com/aalghamdi/voicedesk/internal/signaling"
	"github.com/aalghamdi/voicedesk/internal/store"
	"github.com/aalghamdi/voicedesk/internal/tools"
	"github.com/aalghamdi/voicedesk/internal/voice"
	"github.com/aalghamdi/voicedesk/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: voicedesk agent|api|tools [flags]")
		os.Exit(2)
	}
	mode := os.Args[1]

	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	configPath := fs.String("config", "config/voicedesk.yml", "path to the configuration document")
	_ = fs.Parse(os.Args[2:])

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("mode", mode)

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	switch mode {
	case "agent":
		err = runAgent(cfg, metrics, logger)
	case "api":
		err = runAPI(*configPath, cfg, logger)
	case "tools":
		err = runTools(cfg, metrics, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (expected agent|api|tools)\n", mode)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// runAgent registers with the job-dispatch socket and runs one assistant per
// assigned call until a shutdown signal arrives.
func runAgent(cfg *config.ApplicationSettings, metrics *observability.Metrics, logger *slog.Logger) error {
	status := httpapi.NewAgentStatus()

	handler := func(ctx context.Context, job worker.Job, vad *voice.VAD) error {
		room := signaling.NewMediaRoom(cfg.Signaling, job.Room)
		a, err := agent.New(cfg, room, vad, logger, metrics)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Start(ctx); err != nil {
			return err
		}
		room.Wait()
		return nil
	}

	w := worker.New(cfg.Signaling, "voicedesk-"+cfg.UseCase, handler, logger, metrics)
	w.TrackRooms(status)

	statusSrv := &http.Server{Addr: cfg.BindAddr, Handler: httpapi.StatusRouter(status)}
	go func() {
		logger.Info("status listener", "addr", cfg.BindAddr)
		if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("status listener failed", "error", err)
		}
	}()
	defer statusSrv.Close()

	status.MarkRunning()
	defer status.MarkStopped()

	ctx, cancel := signalContext()
	defer cancel()
	err := w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("agent worker stopped")
		return nil
	}
	return err
}

// runAPI serves the management endpoints. The server shares no session state
// with agent workers, only configuration and the process status record.
func runAPI(configPath string, cfg *config.ApplicationSettings, logger *slog.Logger) error {
	status := httpapi.NewAgentStatus()
	api := httpapi.New(configPath, cfg, status,
		signaling.NewTokenMinter(cfg.Signaling),
		signaling.NewRoomClient(cfg.Signaling),
		logger)

	status.MarkRunning()
	defer status.MarkStopped()
	return serve(cfg.BindAddr, api.Router(), logger)
}

// runTools serves the record-store tool server for the configured use case.
func runTools(cfg *config.ApplicationSettings, metrics *observability.Metrics, logger *slog.Logger) error {
	domain, err := tools.ForUseCase(cfg.UseCase)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	records, err := store.NewStore(ctx, domain.Spec, cfg.DatabaseURL, cfg.DataDir, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("open %s record store: %w", domain.Spec.Domain, err)
	}
	defer records.Close()

	rec := tools.CountingRecorder{Domain: domain.Spec.Domain, Rec: records, Metrics: metrics}
	tool := domain.NewTool(rec, logger)
	srv := tools.NewServer(domain.ServerName, records, logger, tool)
	return serve(domain.BindAddr, srv.Router(), logger)
}

func serve(addr string, handler http.Handler, logger *slog.Logger) error {
	httpServer := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		return httpServer.Close()
	}
	logger.Info("shutdown complete")
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
