package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/chanvault/internal/api"
	"github.com/wesm/chanvault/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP search API",
	Long: `Run chanvault as a long-running HTTP server over the local archive.

The server runs in the foreground and provides:
  - GET /api/v1/search on the configured port (default: 8080)
  - GET /api/v1/messages/{chat_id}/{id}, /api/v1/count and /api/v1/last
  - Scheduled schema refreshes when [search] refresh_schedule is set

Configure in config.toml:
  [server]
  api_port = 8080
  api_key = "secret"          # optional

  [search]
  refresh_schedule = "*/5 * * * *"

Use Ctrl+C to stop the server gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := openSearchStack()
	if err != nil {
		return err
	}
	defer st.Close()

	// Build the first schema snapshot before accepting requests.
	st.registry.Ensure(cmd.Context(), false)

	var sched *scheduler.Scheduler
	var jobs api.JobScheduler
	if cfg.Search.RefreshSchedule != "" {
		sched = scheduler.New().WithLogger(logger)
		if err := sched.AddSchemaRefresh(cfg.Search.RefreshSchedule, st.registry); err != nil {
			return fmt.Errorf("schedule schema refresh: %w", err)
		}
		sched.Start()
		jobs = sched
	}

	apiServer := api.NewServer(cfg, st.searcher, st.registry, jobs, logger).
		WithMessages(st.reader)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chanvault server started\n")
	fmt.Fprintf(out, "  API server: http://%s\n", cfg.ListenAddr())
	fmt.Fprintf(out, "  Backend:    %s\n", st.backend.Name())
	fmt.Fprintf(out, "  Database:   %s (table %s)\n", cfg.DatabasePath(), cfg.Store.Table)
	if sched != nil {
		for _, status := range sched.Status() {
			fmt.Fprintf(out, "  %s: next run at %s\n", status.Name, status.NextRun.Local().Format("2006-01-02 15:04:05"))
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	// Signal handling is done by main via the command context.
	select {
	case <-cmd.Context().Done():
		logger.Info("shutdown requested")
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		fmt.Fprintf(out, "\nAPI server error: %v\n", err)
	}

	fmt.Fprintln(out, "Shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-time.After(30 * time.Second):
			fmt.Fprintln(out, "Scheduler shutdown timed out after 30 seconds.")
		}
	}
	fmt.Fprintln(out, "Shutdown complete.")
	return nil
}
