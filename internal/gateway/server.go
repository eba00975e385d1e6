package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/backup"
	"github.com/CosmoTheDev/assessmaker/internal/config"
	"github.com/CosmoTheDev/assessmaker/internal/export"
	"github.com/CosmoTheDev/assessmaker/internal/metrics"
	"github.com/CosmoTheDev/assessmaker/internal/render"
	"github.com/CosmoTheDev/assessmaker/internal/store"
	"github.com/CosmoTheDev/assessmaker/internal/templates"
)

// Gateway is the long-running REST server in front of the store and the
// renderers. It optionally drives a backup scheduler.
type Gateway struct {
	cfg       *config.Config
	store     *store.Store
	metrics   *metrics.Metrics
	settings  render.Settings
	templates *templates.Set
	scheduler *backup.Scheduler
	backupOps []backup.Option
	startedAt time.Time
	now       func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMetrics records request, codec and render metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(gw *Gateway) { gw.metrics = m }
}

// WithRenderSettings sets the logo and cover lines used for exports.
func WithRenderSettings(s render.Settings) Option {
	return func(gw *Gateway) { gw.settings = s }
}

// WithTemplates fills empty text sections of newly created reports.
func WithTemplates(t *templates.Set) Option {
	return func(gw *Gateway) { gw.templates = t }
}

// WithScheduler runs scheduled backups for the lifetime of Start.
func WithScheduler(s *backup.Scheduler) Option {
	return func(gw *Gateway) { gw.scheduler = s }
}

// WithBackupOptions are passed to every backup export and restore.
func WithBackupOptions(opts ...backup.Option) Option {
	return func(gw *Gateway) { gw.backupOps = append(gw.backupOps, opts...) }
}

// New creates a Gateway. Call Start() to begin serving.
func New(cfg *config.Config, st *store.Store, opts ...Option) *Gateway {
	gw := &Gateway{
		cfg:       cfg,
		store:     st,
		startedAt: time.Now(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(gw)
	}
	return gw
}

func (gw *Gateway) exportOptions() []export.Option {
	opts := []export.Option{export.WithClock(gw.now)}
	if gw.metrics != nil {
		opts = append(opts, export.WithObserver(gw.metrics.ObserveRender))
	}
	return opts
}

// Start serves on 127.0.0.1 until ctx is cancelled, then shuts down
// gracefully and stops the backup scheduler.
func (gw *Gateway) Start(ctx context.Context) error {
	port := gw.cfg.Gateway.Port
	if port == 0 {
		port = config.DefaultGatewayPort
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	if gw.scheduler != nil {
		gw.scheduler.Start()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           buildHandler(gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if gw.scheduler != nil {
			gw.scheduler.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", "http://"+addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
