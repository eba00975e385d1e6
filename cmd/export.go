package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/CosmoTheDev/assessmaker/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Render a report as pdf, docx or a zip bundle",
	Long: `Renders a report and writes it to the export directory
(report.export_dir, default ~/.assessmaker/exports) or --out.

  pdf    paginated PDF document
  docx   Word document with the same sections, colors and images
  zip    both documents plus every proof-of-concept image`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(exportFormat)
		switch format {
		case "pdf", "docx", "zip":
		default:
			return fmt.Errorf("invalid format %q (valid: pdf, docx, zip)", exportFormat)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.store.GetReport(ctx, args[0])
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("report %s not found", args[0])
			}
			return err
		}

		f, err := export.Export(ctx, format, r, a.renderSettings())
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		for _, w := range f.Warnings {
			fmt.Fprintf(os.Stderr, "%s %s\n", warnStyle.Render("warning"), w)
		}

		dir := exportOut
		if dir == "" {
			dir = a.cfg.Report.ExportDir
		}
		path, err := export.WriteFile(dir, f.Name, f.Data)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (%d bytes)\n", okStyle.Render("Wrote"), path, len(f.Data))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "pdf", "output format: pdf, docx or zip")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output directory (default: report.export_dir)")
}
