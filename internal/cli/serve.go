package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/callproxy/internal/alert"
	"github.com/ppiankov/callproxy/internal/audit"
	"github.com/ppiankov/callproxy/internal/identity"
	"github.com/ppiankov/callproxy/internal/logging"
	"github.com/ppiankov/callproxy/internal/metrics"
	"github.com/ppiankov/callproxy/internal/principal"
	"github.com/ppiankov/callproxy/internal/proxy"
	"github.com/ppiankov/callproxy/internal/ratelimit"
	"github.com/ppiankov/callproxy/internal/server"
	"github.com/ppiankov/callproxy/internal/settings"
	"github.com/ppiankov/callproxy/internal/snapshot"
	"github.com/ppiankov/callproxy/internal/systemd"
	"github.com/ppiankov/callproxy/internal/transport"
)

var (
	serveListen           string
	serveInitOwner        string
	serveSnapshotInterval time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "gRPC listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveInitOwner, "init-owner", "", "Principal to record as owner when the owners file is empty")
	serveCmd.Flags().DurationVar(&serveSnapshotInterval, "snapshot-interval", 0, "Save state periodically (overrides config; 0 = only on shutdown)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Runs the proxy as a gRPC server. State (settings, delegations and the
approval queue) is restored from the configured state store on start
and saved on shutdown. The owners file is hot-reloaded on change.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := settings.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if cmd.Flags().Changed("snapshot-interval") {
		cfg.SnapshotInterval = serveSnapshotInterval
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if msg := systemd.CheckUnitFileIntegrity(unitHashPath(settings.DefaultDir())); msg != "" {
		logger.Warn(msg)
	}

	owners, err := loadOwners(cfg, logger)
	if err != nil {
		return err
	}

	store, err := settings.FromConfig(cfg)
	if err != nil {
		return err
	}

	var auditLog *audit.Log
	if cfg.AuditLog != "" {
		auditLog, err = audit.Open(settings.ExpandHome(cfg.AuditLog))
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer auditLog.Close()
	}

	tr := transport.New(cfg.Self, cfg.Targets)
	defer tr.Close()

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.HasLimits() {
		limiter = ratelimit.New(cfg.RateLimit)
	}

	m := metrics.New()
	p := proxy.New(proxy.Options{
		Self:      cfg.Self,
		Owners:    owners,
		Transport: tr,
		Settings:  store,
		AuditLog:  auditLog,
		Alerts:    alert.NewDispatcher(cfg.Alerts, logger),
		Metrics:   m,
		Logger:    logger,
		Limiter:   limiter,
	})

	var saver *snapshot.Saver
	if cfg.State != "" {
		stateStore, err := snapshot.Open(cfg.State)
		if err != nil {
			return fmt.Errorf("failed to open state store: %w", err)
		}
		defer stateStore.Close()

		if err := restoreState(cmd.Context(), stateStore, p, logger); err != nil {
			return err
		}
		saver = snapshot.NewSaver(stateStore, p.ExportState, logger)
	}

	srv, err := server.New(server.Config{Proxy: p, Owners: owners, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloader, err := server.NewReloader(srv, []string{owners.Path()})
	if err != nil {
		logger.Warn("hot-reload disabled", zap.Error(err))
	} else {
		go reloader.Run(ctx)
	}

	if saver != nil {
		go saver.Run(ctx, cfg.SnapshotInterval)
	}

	var metricsSrv *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsListen))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down proxy server")
		cancel()
		srv.GracefulStop()
	}()

	logger.Info("proxy starting",
		zap.Stringer("self", cfg.Self),
		zap.Int("owners", owners.Len()),
		zap.Int("targets", len(cfg.Targets)),
		zap.String("validation_mode", string(store.Mode())))

	serveErr := srv.Serve(cfg.Listen)

	if metricsSrv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		stop()
	}
	if saver != nil {
		if err := saver.Save(context.Background()); err != nil {
			logger.Error("final snapshot failed", zap.Error(err))
			serveErr = errors.Join(serveErr, err)
		} else {
			logger.Info("state saved", zap.String("state", cfg.State))
		}
	}
	return serveErr
}

// ownersPath returns the configured owners file, defaulting to
// owners.yaml in the config directory.
func ownersPath(cfg *settings.Config) string {
	if cfg.OwnersFile == "" {
		return filepath.Join(settings.DefaultDir(), "owners.yaml")
	}
	return settings.ExpandHome(cfg.OwnersFile)
}

// loadOwners opens the owners file and records --init-owner when the
// file names nobody.
func loadOwners(cfg *settings.Config, logger *zap.Logger) (*identity.Owners, error) {
	owners, err := identity.LoadOwners(ownersPath(cfg))
	if err != nil {
		return nil, err
	}

	if serveInitOwner != "" && owners.Len() == 0 {
		id, err := principal.Parse(serveInitOwner)
		if err != nil {
			return nil, fmt.Errorf("--init-owner: %w", err)
		}
		owners.Add(id)
		if err := owners.Save(); err != nil {
			return nil, fmt.Errorf("failed to save owners file: %w", err)
		}
		logger.Info("initial owner recorded", zap.Stringer("owner", id), zap.String("path", owners.Path()))
	}
	if owners.Len() == 0 {
		logger.Warn("no owners configured; only open operations will succeed", zap.String("path", owners.Path()))
	}
	return owners, nil
}

// restoreState imports the latest snapshot, if any. A restored snapshot
// replaces the settings seeded from the config file.
func restoreState(ctx context.Context, store snapshot.Store, p *proxy.Proxy, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if st == nil {
		logger.Info("no saved state; starting empty")
		return nil
	}
	if err := p.ImportState(st); err != nil {
		return err
	}
	logger.Info("state restored",
		zap.Time("saved_at", st.SavedAt),
		zap.Int("delegations", len(st.Delegations)),
		zap.Int("queued", len(st.Queue)))
	return nil
}
