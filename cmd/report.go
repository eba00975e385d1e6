package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/CosmoTheDev/assessmaker/internal/render"
	"github.com/CosmoTheDev/assessmaker/internal/store"
	"github.com/CosmoTheDev/assessmaker/models"
	"github.com/spf13/cobra"
)

var (
	reportListType   string
	reportListStatus string
	reportListParent string
	reportCreateFile string
	reportReassess   models.ReassessmentInput
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Create, inspect and delete reports",
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports with their open finding counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		list, skipped, err := a.store.ListReports(ctx, store.ReportFilter{
			AssessmentType: models.AssessmentType(reportListType),
			ProjectStatus:  reportListStatus,
			ParentID:       reportListParent,
		})
		if err != nil {
			return err
		}
		printSkipped(skipped)
		if len(list) == 0 {
			fmt.Println("No reports yet. Create one with: assessmaker report create --file report.json")
			return nil
		}
		fmt.Println(headerStyle.Render(fmt.Sprintf("%-36s  %-30s  %-7s  %-12s  %-22s  %s",
			"ID", "PROJECT", "VERSION", "TYPE", "STATUS", "OPEN/TOTAL")))
		for _, r := range list {
			fmt.Printf("%-36s  %-30s  %-7s  %-12s  %-22s  %d/%d\n",
				r.ID, truncate(r.ProjectName, 30), r.Version, r.AssessmentType,
				r.ProjectStatus, r.OpenFindingsCount, r.FindingsCount)
		}
		return nil
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a report and its findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
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
		printReport(r)
		return nil
	},
}

var reportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a report from a JSON file",
	Long: `Creates a report from a JSON document using the same field names as the
REST API (projectName, version, startDate, urls, detailedFindings, ...).
Empty executive summary, scope, methodology, conclusion and assessor fields
are filled from the text templates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportCreateFile == "" {
			return fmt.Errorf("--file is required")
		}
		var r models.Report
		if err := readJSONFile(reportCreateFile, &r); err != nil {
			return err
		}

		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		tmpl, err := a.templates()
		if err != nil {
			return fmt.Errorf("loading templates: %w", err)
		}
		tmpl.Apply(&r)
		if err := a.store.CreateReport(ctx, &r); err != nil {
			return err
		}
		fmt.Printf("%s report %s (%s v%s)\n", okStyle.Render("Created"), r.ID, r.ProjectName, r.Version)
		return nil
	},
}

var reportDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a report with all of its findings and images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DeleteReport(ctx, args[0]); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("report %s not found", args[0])
			}
			return err
		}
		fmt.Printf("Deleted report %s\n", args[0])
		return nil
	},
}

var reportReassessCmd = &cobra.Command{
	Use:   "reassess <id>",
	Short: "Create a reassessment of a report",
	Long: `Creates a new report that supersedes <id>: the version is bumped, the
findings are copied with status OPEN, and a frozen snapshot of the parent
is stored with it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.store.CreateReassessment(ctx, args[0], reportReassess)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("report %s not found", args[0])
			}
			return err
		}
		fmt.Printf("%s reassessment %s (%s v%s, %d findings reopened)\n",
			okStyle.Render("Created"), r.ID, r.ProjectName, r.Version, len(r.Findings))
		return nil
	},
}

func init() {
	reportListCmd.Flags().StringVar(&reportListType, "type", "", "filter by assessment type (Initial, Reassessment)")
	reportListCmd.Flags().StringVar(&reportListStatus, "status", "", "filter by project status")
	reportListCmd.Flags().StringVar(&reportListParent, "parent", "", "list reassessments of this report id")

	reportCreateCmd.Flags().StringVarP(&reportCreateFile, "file", "f", "", "JSON file describing the report")

	reportReassessCmd.Flags().StringVar(&reportReassess.StartDate, "start", "", "start date of the reassessment")
	reportReassessCmd.Flags().StringVar(&reportReassess.EndDate, "end", "", "end date of the reassessment")
	reportReassessCmd.Flags().StringVar(&reportReassess.AssessorName, "assessor", "", "assessor (default: parent's)")
	reportReassessCmd.Flags().StringVar(&reportReassess.TicketNumber, "ticket", "", "ticket number")
	reportReassessCmd.Flags().StringVar(&reportReassess.RequestedBy, "requested-by", "", "requester")

	reportCmd.AddCommand(reportListCmd, reportShowCmd, reportCreateCmd, reportDeleteCmd, reportReassessCmd)
}

func printReport(r *models.Report) {
	findings := render.SortFindings(r.Findings)
	rating := render.RiskRating(findings)

	fmt.Println(headerStyle.Render(r.ProjectName) + dimStyle.Render(" v"+r.Version))
	row := func(label, value string) {
		if strings.TrimSpace(value) != "" {
			fmt.Printf("  %-14s %s\n", label+":", value)
		}
	}
	row("ID", r.ID)
	row("Type", string(r.AssessmentType))
	row("Parent", r.ParentAssessmentID)
	row("Status", r.ProjectStatus)
	row("Fix by", r.FixByDate)
	row("Dates", strings.Trim(r.StartDate+" - "+r.EndDate, " -"))
	row("Assessor", r.AssessorName)
	row("Platform", r.Platform)
	row("Ticket", r.TicketNumber)
	fmt.Printf("  %-14s %s\n", "Risk rating:", severityStyle(rating).Render(rating.String()))
	fmt.Println()

	if len(findings) == 0 {
		fmt.Println(dimStyle.Render("  No findings."))
		return
	}
	for i, f := range findings {
		fmt.Printf("  %2d. %s %s %s\n", i+1,
			severityStyle(f.Severity).Render(f.Severity.String()),
			statusStyle(f.Status).Render(string(f.Status)),
			f.Title)
		if len(f.PocImages) > 0 {
			fmt.Println(dimStyle.Render(fmt.Sprintf("      %d proof-of-concept image(s)", len(f.PocImages))))
		}
	}
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
