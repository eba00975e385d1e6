package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "assessmaker",
	Short: "Penetration test reports with encrypted storage and PDF/DOCX export",
	Long: `assessmaker stores penetration-test reports, findings and proof-of-concept
images with sensitive fields encrypted at rest, and renders them as PDF and
Word documents or a ZIP bundle.

Get started:
  assessmaker keys init        Create the master encryption key
  assessmaker report create    Create a report from a JSON file
  assessmaker export <id>      Render a report as pdf, docx or zip
  assessmaker serve            Start the local REST API`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.assessmaker/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		serveCmd,
		reportCmd,
		exportCmd,
		keysCmd,
		backupCmd,
		libraryCmd,
		configCmd,
	)
}

func initConfig() {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}
