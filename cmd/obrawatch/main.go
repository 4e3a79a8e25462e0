package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"obrawatch/internal/api"
	"obrawatch/internal/config"
	"obrawatch/internal/filter"
	"obrawatch/internal/logging"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "obrawatch",
	Short:         "Reconciles public works alerts with the works registry",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the refresh loop and the HTTP API",
	RunE:  runServe,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch, join and print the unified projects as JSON",
	RunE:  runSnapshot,
}

var (
	snapshotForce   bool
	snapshotFilters []string
	snapshotGroup   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json); defaults are used when empty")
	snapshotCmd.Flags().BoolVar(&snapshotForce, "force", false, "bypass the unified cache")
	snapshotCmd.Flags().StringSliceVar(&snapshotFilters, "severity", nil, "keep projects with alerts of these severities")
	snapshotCmd.Flags().StringVar(&snapshotGroup, "group", "", "print group stats instead: department or strategic")
	rootCmd.AddCommand(serveCmd, snapshotCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := loadManager(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(mgr, true, logging.NewLogger(mgr.Get().LogLevel))
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Init(ctx); err != nil {
		return err
	}

	a.engine.Start(ctx)
	server := api.Start(ctx, mgr, a.engine, a.metrics, a.logger, version)

	if mgr.Path() != "" {
		go mgr.Watch(3*time.Second, func(cfg *config.Config) {
			a.engine.UpdateConfig(cfg)
			a.logger.Info("config reloaded", "path", mgr.Path())
		}, func(err error) {
			a.logger.Warn("config reload failed", "err", err)
		}, ctx.Done())
	}

	a.logger.Info("obrawatch started", "version", version, "config", mgr.Path())
	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	return nil
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	mgr, err := loadManager(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(mgr, false, logging.NewLoggerTo(cmd.ErrOrStderr(), mgr.Get().LogLevel))
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.engine.Refresh(cmd.Context(), snapshotForce)
	if err != nil {
		return err
	}
	projects := filter.Projects(st.Result.Projects, filter.ProjectFilters{Severities: snapshotFilters})

	var out any
	switch snapshotGroup {
	case "":
		out = map[string]any{
			"projects":        projects,
			"count":           len(projects),
			"orphaned":        st.Result.Orphaned,
			"orphaned_alerts": st.Orphaned,
			"changes":         st.Changes,
			"fetched_at":      st.Result.FetchedAt,
		}
	case "department":
		out = filter.GroupByDepartment(projects)
	case "strategic":
		out = filter.GroupByStrategicProject(projects)
	default:
		return fmt.Errorf("unknown group %q", snapshotGroup)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
