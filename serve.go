package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/slingr-stack/google-drive-endpoint/internal/authority"
	"github.com/slingr-stack/google-drive-endpoint/internal/config"
	"github.com/slingr-stack/google-drive-endpoint/internal/drive"
	"github.com/slingr-stack/google-drive-endpoint/internal/endpoint"
	"github.com/slingr-stack/google-drive-endpoint/internal/platform"
	"github.com/slingr-stack/google-drive-endpoint/internal/session"
	"github.com/slingr-stack/google-drive-endpoint/internal/store"
)

// readHeaderTimeout bounds how long a client may take to send request
// headers before the connection is dropped.
const readHeaderTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the endpoint service",
		Long:  "Starts the HTTP function surface, the OAuth callback pages, and the platform event connection.",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}

	cmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&flagStorePath, "db", "", "credential database path (overrides config)")
	cmd.Flags().StringVar(&flagPIDFile, "pidfile", "", "PID file path for single-instance locking")

	return cmd
}

func runServe() error {
	cfg, cfgPath, err := resolveConfig()
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)

	if flagPIDFile != "" {
		cleanup, pidErr := writePIDFile(flagPIDFile)
		if pidErr != nil {
			return pidErr
		}
		defer cleanup()
	}

	ctx := shutdownContext(context.Background(), logger)

	// Hot reload: a changed config file updates the holder in place.
	// Collaborators that read through the holder, the platform file
	// helper's token among them, pick up rotated values without a
	// restart. Listener address and OAuth credentials still need one.
	holder := config.NewHolder(cfg, cfgPath)

	go func() {
		if watchErr := config.Watch(ctx, holder, logger); watchErr != nil && !errors.Is(watchErr, context.Canceled) {
			logger.Warn("config watcher stopped", slog.String("error", watchErr.Error()))
		}
	}()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}

	st, err := store.NewSQLiteStore(cfg.Store.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	auth := authority.New(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.RedirectURI, httpClient, logger)
	driveClient := drive.NewClient("", httpClient, logger)

	var events platform.Events

	if cfg.Platform.EventsURL != "" {
		emitter, dialErr := platform.DialEmitter(ctx, cfg.Platform.EventsURL, cfg.Platform.Token, logger)
		if dialErr != nil {
			return dialErr
		}
		defer emitter.Close()

		events = emitter
	} else {
		logger.Warn("no platform events URL configured, events are logged locally")

		events = platform.NewLogEmitter(logger)
	}

	platformToken := func() string { return holder.Config().Platform.Token }
	files := platform.NewFileService(cfg.Platform.FilesURL, platformToken, httpClient, logger)
	appLogs := platform.NewAppLogs(logger, events)

	orch := session.New(st, auth, driveClient, events, appLogs, logger)
	e := endpoint.New(orch, driveClient, files, appLogs, logger)
	router := endpoint.NewRouter(e, logger)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("endpoint listening", slog.String("addr", cfg.Server.ListenAddr))
		appLogs.Info(ctx, "Google Drive endpoint started", nil)

		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case serveErr := <-errCh:
		return serveErr
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	appLogs.Info(shutdownCtx, "Google Drive endpoint stopping", nil)

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Info("endpoint stopped")

	return nil
}

// shutdownContext returns a context that cancels on the first
// SIGINT/SIGTERM and force-exits on the second, so a hung shutdown can
// still be escaped.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}
