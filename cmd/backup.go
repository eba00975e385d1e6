package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/CosmoTheDev/assessmaker/internal/backup"
	"github.com/CosmoTheDev/assessmaker/internal/export"
	"github.com/spf13/cobra"
)

var backupOut string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export and restore backup archives",
	Long: `Backup archives hold every report, finding, image and library entry as
JSON. With backup.encrypt (the default) the archive is sealed with the
master key, which is never included in the archive itself.`,
}

var backupExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a backup archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		data, sum, err := backup.Export(ctx, a.store, a.backupOptions()...)
		if err != nil {
			return err
		}
		printSkipped(sum.Skipped)

		dir := backupOut
		if dir == "" {
			dir = a.cfg.Backup.Dir
		}
		path, err := export.WriteFile(dir, backup.ArchiveName(time.Now()), data)
		if err != nil {
			return err
		}
		sealed := "plain"
		if sum.Sealed {
			sealed = "sealed"
		}
		fmt.Printf("%s %s (%d reports, %d library entries, %s)\n",
			okStyle.Render("Wrote"), path, sum.Reports, sum.Library, sealed)
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore a backup archive",
	Long: `Restores every report and library entry in the archive. Records that
fail are skipped and listed; reports whose id already exists are imported
under a new id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		// Sealed archives are opened with the local codec regardless of
		// backup.encrypt.
		sum, err := backup.Import(ctx, a.store, data, backup.WithSealer(a.codec))
		if err != nil {
			return err
		}
		printSkipped(sum.Failures())
		fmt.Println(sum.Message())
		return nil
	},
}

func init() {
	backupExportCmd.Flags().StringVar(&backupOut, "out", "", "output directory (default: backup.dir)")
	backupCmd.AddCommand(backupExportCmd, backupImportCmd)
}
