package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/config"
	"github.com/sells-group/listings-cli/internal/dashboard"
	"github.com/sells-group/listings-cli/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Long:  "Serves the cleaned listings, map markers and filter extents over HTTP. Data comes from the latest stored run, or from the output table when the store is disabled.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Server.Port
		}
		file, _ := cmd.Flags().GetString("file")
		runID, _ := cmd.Flags().GetString("run")
		regionName, _ := cmd.Flags().GetString("region")

		region, err := loadRegion(cfg, regionName)
		if err != nil {
			return err
		}

		var st store.Store
		if file == "" {
			st, err = initStore(ctx, cfg)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close() //nolint:errcheck
			}
		}
		src := dashboardSource(cfg, st, file, runID)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           dashboard.NewRouter(src, region, dashboard.Options{AllowedOrigins: cfg.Server.AllowedOrigins}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.String("region", region.Name))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (default from config)")
	serveCmd.Flags().String("file", "", "serve this table instead of the store")
	serveCmd.Flags().String("run", "", "serve this stored run instead of the latest")
	serveCmd.Flags().String("region", "", "region preset name (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// dashboardSource picks what the dashboard serves: an explicit file, a
// stored run, or the configured output table when there is no store.
func dashboardSource(c *config.Config, st store.Store, file, runID string) dashboard.Source {
	if file != "" {
		return dashboard.FileSource{Path: file}
	}
	if st != nil {
		return dashboard.StoreSource{Runs: st, RunID: runID}
	}
	return dashboard.FileSource{Path: c.Output.Path}
}
