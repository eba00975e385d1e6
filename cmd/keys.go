package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/CosmoTheDev/assessmaker/internal/config"
	"github.com/CosmoTheDev/assessmaker/internal/fieldcrypt"
	"github.com/CosmoTheDev/assessmaker/internal/notify"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the master encryption key",
	Long: `Every sensitive report, finding and image field is encrypted with a key
derived from the master key file (crypto.key_file).

IMPORTANT: losing the master key makes all encrypted data permanently
unrecoverable. Back it up separately from the database, with equal
protection. Backup archives never contain it.`,
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the master key if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		_, created, err := fieldcrypt.LoadOrCreate(cfg.Crypto.KeyFile)
		if err != nil {
			return err
		}
		if !created {
			fmt.Printf("Master key already present at %s\n", cfg.Crypto.KeyFile)
			return nil
		}
		fmt.Printf("%s master key at %s\n", okStyle.Render("Created"), cfg.Crypto.KeyFile)
		fmt.Println(warnStyle.Render("Back this file up now: without it encrypted data cannot be recovered."))
		return nil
	},
}

var keysStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the codec configuration and key file state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		info, err := os.Stat(cfg.Crypto.KeyFile)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("No master key at %s. Run: assessmaker keys init\n", cfg.Crypto.KeyFile)
				return nil
			}
			return err
		}
		key, err := fieldcrypt.LoadKey(cfg.Crypto.KeyFile)
		if err != nil {
			return err
		}
		codec, err := fieldcrypt.New(key, fieldcrypt.WithIterations(cfg.Crypto.Iterations))
		if err != nil {
			return err
		}

		mode := fmt.Sprintf("%04o", info.Mode().Perm())
		if info.Mode().Perm()&0o077 != 0 {
			mode = warnStyle.Render(mode + " (readable by others)")
		}
		fmt.Printf("Key file : %s\n", cfg.Crypto.KeyFile)
		fmt.Printf("Mode     : %s\n", mode)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(codec.Status())
	},
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Re-encrypt all data under a new master key",
	Long: `Generates a new master key, re-encrypts every sensitive column and image
in a single transaction, then replaces the key file. The previous key is kept
as <key_file>.bak. If anything fails the database is left untouched and the
old key stays in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		keyFile := a.cfg.Crypto.KeyFile
		nextFile := keyFile + ".next"
		key, err := fieldcrypt.GenerateKey()
		if err != nil {
			return err
		}
		if err := fieldcrypt.WriteKey(nextFile, key); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("%s exists from an earlier rotation; inspect and remove it first", nextFile)
			}
			return err
		}
		next, err := fieldcrypt.New(key, fieldcrypt.WithIterations(a.cfg.Crypto.Iterations))
		if err != nil {
			_ = os.Remove(nextFile)
			return err
		}

		res, err := a.store.RotateKey(ctx, next)
		if err != nil {
			_ = os.Remove(nextFile)
			return err
		}
		if err := os.Rename(keyFile, keyFile+".bak"); err != nil {
			return fmt.Errorf("data is now encrypted with %s but the old key could not be moved: %w", nextFile, err)
		}
		if err := os.Rename(nextFile, keyFile); err != nil {
			return fmt.Errorf("data is now encrypted with %s but it could not be installed: %w", nextFile, err)
		}
		fmt.Printf("%s %d reports, %d findings, %d images\n",
			okStyle.Render("Re-encrypted"), res.Reports, res.Findings, res.Images)
		fmt.Printf("Previous key kept at %s\n", keyFile+".bak")
		notify.NewDispatcher(a.cfg.Notify).Notify(ctx, notify.KeyRotatedEvent(res.Reports, res.Findings, res.Images))
		return nil
	},
}

func init() {
	keysCmd.AddCommand(keysInitCmd, keysStatusCmd, keysRotateCmd)
}
