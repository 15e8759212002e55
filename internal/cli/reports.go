package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clinical-fact-validator/internal/store"
)

var (
	reportsDB    string
	reportsLimit int
	reportsOut   string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect and move stored validation reports",
	Long:  `Commands for the SQLite report database written by validate --db and the MCP server.`,
}

var reportsListCmd = &cobra.Command{
	Use:   "list [subject]",
	Short: "List the reports of a subject, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsList,
}

var reportsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all reports as JSON",
	Args:  cobra.NoArgs,
	RunE:  runReportsExport,
}

var reportsImportCmd = &cobra.Command{
	Use:   "import [export.json]",
	Short: "Import reports from a JSON export, skipping ids already present",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportsImport,
}

func init() {
	reportsCmd.PersistentFlags().StringVar(&reportsDB, "db", "reports.db", "SQLite report database")
	reportsListCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "maximum number of reports")
	reportsExportCmd.Flags().StringVarP(&reportsOut, "out", "o", "", "output file (default: stdout)")

	reportsCmd.AddCommand(reportsListCmd, reportsExportCmd, reportsImportCmd)
	rootCmd.AddCommand(reportsCmd)
}

func openReportStore() (*store.SQLiteStore, error) {
	reports, err := store.NewSQLiteStore(reportsDB)
	if err != nil {
		return nil, fmt.Errorf("opening report database: %w", err)
	}
	return reports, nil
}

func runReportsList(cmd *cobra.Command, args []string) error {
	reports, err := openReportStore()
	if err != nil {
		return err
	}
	defer reports.Close()

	records, err := reports.ListBySubject(cmd.Context(), args[0], reportsLimit, 0)
	if err != nil {
		return fmt.Errorf("listing reports: %w", err)
	}
	if len(records) == 0 {
		cmd.Println("No reports found.")
		return nil
	}

	for _, r := range records {
		verdict := "unsafe"
		if r.Report.SafeForUse {
			verdict = "safe"
		}
		cmd.Printf("  %s  %s  %6.2f  %-6s  %d issues\n",
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"), r.ID, r.Report.OverallScore, verdict, len(r.Report.Issues))
	}
	return nil
}

func runReportsExport(cmd *cobra.Command, _ []string) error {
	reports, err := openReportStore()
	if err != nil {
		return err
	}
	defer reports.Close()

	if reportsOut == "" {
		return reports.ExportJSON(cmd.Context(), cmd.OutOrStdout())
	}

	f, err := os.Create(reportsOut)
	if err != nil {
		return fmt.Errorf("creating %s: %w", reportsOut, err)
	}
	if err := reports.ExportJSON(cmd.Context(), f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	count, err := reports.Count(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Exported %d reports to %s\n", count, reportsOut)
	return nil
}

func runReportsImport(cmd *cobra.Command, args []string) error {
	reports, err := openReportStore()
	if err != nil {
		return err
	}
	defer reports.Close()

	r, err := openInput(cmd, args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	imported, skipped, err := reports.ImportJSON(cmd.Context(), r)
	if err != nil {
		return fmt.Errorf("importing reports: %w", err)
	}
	cmd.Printf("Imported %d reports (%d already present)\n", imported, skipped)
	return nil
}
