package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/CosmoTheDev/assessmaker/models"
	"github.com/spf13/cobra"
)

var libraryAddFile string

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage the reusable findings library",
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List library entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.store.ListLibrary(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Library is empty. Add entries with: assessmaker library add --file entries.json")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%4d  %s %s %s\n", e.ID,
				severityStyle(e.Severity).Render(e.Severity.String()),
				e.Title, dimStyle.Render(e.Category))
		}
		return nil
	},
}

var libraryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add library entries from a JSON file (one object or an array)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if libraryAddFile == "" {
			return fmt.Errorf("--file is required")
		}
		entries, err := readLibraryFile(libraryAddFile)
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.store.ImportLibrary(ctx, entries)
		if err != nil {
			return err
		}
		printSkipped(res.Failures)
		fmt.Printf("%s %d of %d entries\n", okStyle.Render("Added"), res.Imported, len(entries))
		return nil
	},
}

var libraryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a library entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid library id %q", args[0])
		}
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DeleteLibraryEntry(ctx, id); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("library entry %d not found", id)
			}
			return err
		}
		fmt.Printf("Deleted library entry %d\n", id)
		return nil
	},
}

var libraryUseCmd = &cobra.Command{
	Use:   "use <entry-id> <report-id>",
	Short: "Add a library entry to a report as an OPEN finding",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid library id %q", args[0])
		}
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.store.InstantiateLibraryEntry(ctx, id, args[1])
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("library entry %d or report %s not found", id, args[1])
			}
			return err
		}
		fmt.Printf("%s finding %d (%s) on report %s\n", okStyle.Render("Created"), f.ID, f.Title, args[1])
		return nil
	},
}

func init() {
	libraryAddCmd.Flags().StringVarP(&libraryAddFile, "file", "f", "", "JSON file with one entry or an array of entries")
	libraryCmd.AddCommand(libraryListCmd, libraryAddCmd, libraryDeleteCmd, libraryUseCmd)
}

func readLibraryFile(path string) ([]models.LibraryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		var entries []models.LibraryEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return entries, nil
	}
	var e models.LibraryEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return []models.LibraryEntry{e}, nil
}
