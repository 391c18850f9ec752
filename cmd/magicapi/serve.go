package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/edgeflare/magicapi/pkg/httputil/middleware"
	"github.com/edgeflare/magicapi/pkg/metrics"
	"github.com/edgeflare/magicapi/pkg/rest"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run"},
	Short:   "Start the REST API server",
	Long:    `Starts a REST API server with a list and a single-item endpoint for every resource of the data package`,
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("rest.listenAddr", "l", "", "REST server listen address")
	f.String("rest.baseURL", "", "Base URL for API endpoints")
	f.Int("rest.perPage", 0, "Default page size of list endpoints")
	f.Bool("metrics.enabled", false, "Serve Prometheus metrics")
	f.Bool("populate", false, "Import every resource before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if populate, _ := cmd.Flags().GetBool("populate"); populate {
		if err := a.models.Populate(ctx); err != nil {
			return err
		}
	}

	rm := rest.NewResourcesMaker(a.models,
		rest.WithBaseURL(cfg.REST.BaseURL),
		rest.WithDefaultPerPage(cfg.REST.PerPage),
		rest.WithLogger(logger),
	)
	server, err := rest.NewServer(rm, serverOptions()...)
	if err != nil {
		return err
	}
	for _, route := range server.Router().Routes() {
		logger.Info("route", zap.String("pattern", route))
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	err = server.Start(ctx, cfg.REST.ListenAddr)
	stop()
	wg.Wait()
	if err != nil {
		return err
	}
	logger.Info("server gracefully stopped")
	return nil
}

func serverOptions() []rest.ServerOption {
	opts := []rest.ServerOption{
		rest.WithServerLogger(logger),
		rest.WithShutdownTimeout(cfg.REST.ShutdownTimeout),
	}
	if cfg.REST.CORS.Enabled {
		cors := middleware.DefaultCORSOptions()
		if len(cfg.REST.CORS.AllowedOrigins) > 0 {
			cors.AllowedOrigins = cfg.REST.CORS.AllowedOrigins
		}
		if len(cfg.REST.CORS.AllowedMethods) > 0 {
			cors.AllowedMethods = cfg.REST.CORS.AllowedMethods
		}
		if len(cfg.REST.CORS.AllowedHeaders) > 0 {
			cors.AllowedHeaders = cfg.REST.CORS.AllowedHeaders
		}
		cors.AllowCredentials = cfg.REST.CORS.AllowCredentials
		opts = append(opts, rest.WithCORS(cors))
	} else {
		opts = append(opts, rest.WithoutCORS())
	}
	if cfg.REST.TLS.Enabled {
		opts = append(opts, rest.WithTLS(cfg.REST.TLS.CertFile, cfg.REST.TLS.KeyFile))
	}
	return opts
}

