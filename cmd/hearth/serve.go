package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shravanasati/hearth/config"
	"github.com/shravanasati/hearth/conn"
	"github.com/shravanasati/hearth/handler"
	"github.com/shravanasati/hearth/internal/metrics"
	"github.com/shravanasati/hearth/router"
	"github.com/shravanasati/hearth/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve [root]",
	Short: "Serve a directory over HTTP",
	Long: `Serve the files below root (default: the configured static.root).

Examples:
  hearth serve ./public
  hearth serve --address 127.0.0.1:8080 --buffer-size 65536
  HEARTH_SERVER_KEEP_ALIVE_TIMEOUT=0s hearth serve`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringP("address", "a", "", "Address to listen on")
	flags.String("root", "", "Public root directory")
	flags.Int("buffer-size", 0, "File transfer chunk size in bytes")
	flags.Duration("keep-alive", 0, "Idle keep-alive timeout, 0s disables keep-alive")
	flags.Duration("read-timeout", 0, "Timeout for reading the first request")
	flags.Int("max-connections", 0, "Maximum concurrent connections")
	flags.Bool("no-color", false, "Disable colored access log")
	flags.String("log-level", "", "Diagnostic log level (debug, info, warn, error)")
	flags.Bool("metrics", true, "Serve Prometheus metrics")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if err := cmd.Flags().Set("root", args[0]); err != nil {
			return err
		}
	}
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	m := metrics.New()

	h, err := buildHandler(cfg, cmd.OutOrStdout(), m)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.Serve(ctx, serverOpts(cfg, logger, m), h)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "serving %s on http://%s\n", cfg.Static.Root, s.Addr())

	err = s.Wait()
	logger.Info("server stopped")
	return err
}

func serverOpts(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) server.ServerOpts {
	return server.ServerOpts{
		Address:          cfg.Server.Address,
		ReadTimeout:      cfg.Server.ReadTimeout,
		KeepAliveTimeout: cfg.Server.KeepAliveTimeout,
		MaxConnections:   cfg.Server.MaxConnections,
		MaxBodySize:      cfg.Server.MaxBodySize,
		Logger:           logger,
		Metrics:          m,
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// buildHandler assembles the dispatch chain:
//
//	RequestLog(Chain(server header, metrics, CORS, cross origin protection,
//		basic auth, routes, static files, 404))
//
// Optional members are left out when disabled in cfg.
func buildHandler(cfg *config.Config, accessLog io.Writer, m *metrics.Metrics) (handler.RequestHandler, error) {
	chain := handler.NewChain(serverHeader)

	if cfg.Metrics.Enabled {
		chain.Add(handler.NewMetricsEndpoint(cfg.Metrics.Path, m.Gatherer()))
	}
	if cfg.CORS.Enabled {
		chain.Add(handler.NewCORS(handler.CORSOptions{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			MaxAge:         cfg.CORS.MaxAge,
		}))
	}
	if cfg.CrossOrigin.Protect {
		protect, err := handler.NewCrossOriginProtection(cfg.CrossOrigin.TrustedOrigins...)
		if err != nil {
			return nil, fmt.Errorf("cross_origin.trusted_origins: %w", err)
		}
		chain.Add(protect)
	}
	if len(cfg.Auth.Users) > 0 {
		accounts := make([]handler.Account, 0, len(cfg.Auth.Users))
		for user, pass := range cfg.Auth.Users {
			accounts = append(accounts, handler.Account{Username: user, Password: pass})
		}
		chain.Add(handler.NewBasicAuth(cfg.Auth.Realm, accounts))
	}

	routes := router.NewRouter()
	routes.Get("/_hearth/health", handler.NewFixed(200, []byte("ok\n")))
	chain.Add(routes)

	static, err := handler.NewStaticFile(cfg.Static.Root,
		handler.WithBufferSize(cfg.Static.BufferSize),
		handler.WithIndex(cfg.Static.Index),
		handler.WithStaticMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	chain.Add(static)
	chain.Add(handler.NewNotFound())

	if !cfg.Log.Access {
		accessLog = nil
	}
	return handler.NewRequestLog(chain, accessLog,
		handler.WithColor(cfg.Log.Color),
		handler.WithLogMetrics(m),
	), nil
}

var serverHeader = handler.HandlerFunc(func(c *conn.Connection) bool {
	c.SetHeader("Server", "hearth/"+version)
	return false
})
