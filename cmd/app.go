package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/CosmoTheDev/assessmaker/internal/backup"
	"github.com/CosmoTheDev/assessmaker/internal/config"
	"github.com/CosmoTheDev/assessmaker/internal/database"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/internal/logging"
	"github.com/CosmoTheDev/assessmaker/internal/metrics"
	"github.com/CosmoTheDev/assessmaker/internal/notify"
	"github.com/CosmoTheDev/assessmaker/internal/render"
	"github.com/CosmoTheDev/assessmaker/internal/store"
	"github.com/CosmoTheDev/assessmaker/internal/templates"
)

// app is the wiring shared by every command that touches the store.
type app struct {
	cfg      *config.Config
	db       database.DB
	codec    *fieldcrypt.Codec
	store    *store.Store
	closeLog func()
}

// openApp loads config, installs logging, opens and migrates the database
// and loads (or creates) the master key. m may be nil.
func openApp(ctx context.Context, m *metrics.Metrics) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	closeLog, err := logging.Setup(cfg.Log, verbose)
	if err != nil {
		return nil, fmt.Errorf("initialising logger: %w", err)
	}

	key, _, err := fieldcrypt.LoadOrCreate(cfg.Crypto.KeyFile)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("loading master key: %w", err)
	}
	codecOpts := []fieldcrypt.Option{fieldcrypt.WithIterations(cfg.Crypto.Iterations)}
	storeOpts := []store.Option{store.WithMaxImageBytes(int64(cfg.Gateway.MaxUploadMB) << 20)}
	if m != nil {
		codecOpts = append(codecOpts, fieldcrypt.WithObserver(m.CodecObserver()))
		storeOpts = append(storeOpts, store.WithSkipObserver(m.SkipObserver()))
	}
	codec, err := fieldcrypt.New(key, codecOpts...)
	if err != nil {
		closeLog()
		return nil, err
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		closeLog()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &app{
		cfg:      cfg,
		db:       db,
		codec:    codec,
		store:    store.New(db, codec, storeOpts...),
		closeLog: closeLog,
	}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
	a.closeLog()
}

// renderSettings reads the configured logo. A missing or unreadable logo is
// logged and the cover is rendered text-only.
func (a *app) renderSettings() render.Settings {
	s := render.Settings{
		Organization: a.cfg.Report.Organization,
		Division:     a.cfg.Report.Division,
	}
	if a.cfg.Report.LogoPath != "" {
		logo, err := os.ReadFile(a.cfg.Report.LogoPath)
		if err != nil {
			slog.Warn("report: logo not loaded", "path", a.cfg.Report.LogoPath, "error", err)
		} else {
			s.Logo = logo
		}
	}
	return s
}

func (a *app) templates() (*templates.Set, error) {
	return templates.Load(a.cfg.Report.TemplatesFile)
}

func (a *app) backupOptions() []backup.Option {
	if !a.cfg.Backup.Encrypt {
		return nil
	}
	return []backup.Option{backup.WithSealer(a.codec)}
}

// backupSinks returns the local directory sink plus S3 when a bucket is set.
func (a *app) backupSinks(ctx context.Context) ([]backup.Sink, error) {
	sinks := []backup.Sink{&backup.FileSink{Dir: a.cfg.Backup.Dir, Retain: a.cfg.Backup.Retain}}
	if a.cfg.Backup.S3.Bucket != "" {
		s3, err := backup.NewS3Sink(ctx, a.cfg.Backup.S3)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	return sinks, nil
}

// scheduledBackupOptions adds a notification hook to the backup options
// when a notify channel is configured.
func (a *app) scheduledBackupOptions() []backup.Option {
	opts := a.backupOptions()
	d := notify.NewDispatcher(a.cfg.Notify)
	if !d.IsAnyConfigured() {
		return opts
	}
	return append(opts, backup.WithRunHook(func(ctx context.Context, archive string, sum backup.ExportSummary, err error) {
		d.Notify(ctx, notify.BackupEvent(archive, sum.Reports, len(sum.Skipped), err))
	}))
}

// printSkipped tells the user which records a bulk read left out.
func printSkipped(failures []store.RecordFailure) {
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "%s %s %s: %s\n", warnStyle.Render("skipped"), f.Entity, f.ID, f.Error)
	}
}

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }
