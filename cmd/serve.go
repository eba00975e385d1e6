package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/CosmoTheDev/assessmaker/internal/backup"
	"github.com/CosmoTheDev/assessmaker/internal/gateway"
	"github.com/CosmoTheDev/assessmaker/internal/metrics"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local REST API",
	Long: `Starts the assessmaker gateway: a local HTTP API (default:
http://127.0.0.1:6080) over the encrypted report store and the PDF/DOCX
renderers. When backup.schedule is set, scheduled backups run for as long
as the gateway is up.

Quick API reference:
  GET  /health                              liveness check
  GET  /api/encryption/status               codec algorithm and encrypted fields
  GET  /api/reports                         list reports (?type=&status=&parent=)
  POST /api/reports                         create a report
  GET  /api/reports/{id}                    full report with findings
  POST /api/reports/{id}/reassessment       create a reassessment
  GET  /api/reports/{id}/export/{format}    pdf, docx or zip
  POST /api/findings/{id}/images            upload a PoC image (base64)
  GET  /api/library                         reusable findings
  GET  /api/backup                          download a backup archive
  GET  /metrics                             prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"HTTP port to listen on (default 6080, overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gateway gracefully...")
		cancel()
	}()

	m := metrics.New(true)
	a, err := openApp(ctx, m)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort > 0 {
		a.cfg.Gateway.Port = servePort
	}

	tmpl, err := a.templates()
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	opts := []gateway.Option{
		gateway.WithMetrics(m),
		gateway.WithRenderSettings(a.renderSettings()),
		gateway.WithTemplates(tmpl),
		gateway.WithBackupOptions(a.backupOptions()...),
	}
	if a.cfg.Backup.Schedule != "" {
		sinks, err := a.backupSinks(ctx)
		if err != nil {
			return fmt.Errorf("configuring backup sinks: %w", err)
		}
		sched, err := backup.NewScheduler(a.cfg.Backup.Schedule, a.store, sinks, a.scheduledBackupOptions()...)
		if err != nil {
			return fmt.Errorf("configuring backup schedule: %w", err)
		}
		opts = append(opts, gateway.WithScheduler(sched))
	}

	fmt.Printf("assessmaker gateway starting\n")
	fmt.Printf("  API        : http://127.0.0.1:%d\n", a.cfg.Gateway.Port)
	fmt.Printf("  Database   : %s\n", a.cfg.Database.Driver)
	fmt.Printf("  Key file   : %s\n", a.cfg.Crypto.KeyFile)
	if a.cfg.Backup.Schedule != "" {
		fmt.Printf("  Backups    : %s -> %s\n", a.cfg.Backup.Schedule, a.cfg.Backup.Dir)
	}
	if a.cfg.Log.File != "" {
		fmt.Printf("  Logs       : %s\n", a.cfg.Log.File)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop gracefully.")

	slog.Info("serve: starting", "port", a.cfg.Gateway.Port, "driver", a.cfg.Database.Driver)
	return gateway.New(a.cfg, a.store, opts...).Start(ctx)
}
