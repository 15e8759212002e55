package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/internal/service"
	"github.com/clinical-fact-validator/internal/store"
)

// factFile is the JSON document read by validate and timeline.
type factFile struct {
	SubjectID  string              `json:"subject_id"`
	Facts      []domain.FactRecord `json:"facts"`
	SourceText string              `json:"source_text,omitempty"`
	Anchor     string              `json:"anchor,omitempty"`
}

// ErrUnsafe is returned by validate --fail-unsafe when the report is not safe for use.
var ErrUnsafe = errors.New("report is not safe for use")

var (
	validateJSON       bool
	validateSourceFile string
	validateSubject    string
	validateAnchor     string
	validateDB         string
	validateFailUnsafe bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [facts.json]",
	Short: "Validate a file of extracted facts",
	Long: `Validates the facts in a JSON file ("-" reads standard input):

  {
    "subject_id": "patient-1",
    "facts": [{"id": "f1", "type": "procedure", "name": "craniotomy", "confidence": 0.9}],
    "source_text": "...",
    "anchor": "2024-01-01T00:00:00Z"
  }

Flags override the subject, source text and anchor of the file. With --db the report
is stored in a SQLite report database.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "output the report as JSON")
	validateCmd.Flags().StringVarP(&validateSourceFile, "source", "s", "", "file holding the source clinical text")
	validateCmd.Flags().StringVar(&validateSubject, "subject", "", "subject id (overrides the file)")
	validateCmd.Flags().StringVar(&validateAnchor, "anchor", "", "RFC 3339 anchor instant (overrides the file)")
	validateCmd.Flags().StringVar(&validateDB, "db", "", "SQLite report database to store the report in")
	validateCmd.Flags().BoolVar(&validateFailUnsafe, "fail-unsafe", false, "exit with an error when the report is not safe for use")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	input, err := readFactFile(cmd, args[0])
	if err != nil {
		return err
	}
	if validateSubject != "" {
		input.SubjectID = validateSubject
	}
	if validateAnchor != "" {
		input.Anchor = validateAnchor
	}
	if validateSourceFile != "" {
		data, err := os.ReadFile(validateSourceFile)
		if err != nil {
			return fmt.Errorf("reading source text: %w", err)
		}
		input.SourceText = string(data)
	}
	anchor, err := parseAnchor(input.Anchor)
	if err != nil {
		return err
	}

	manager, err := loadConfig()
	if err != nil {
		return err
	}

	var opts []service.Option
	if validateDB != "" {
		reports, err := store.NewSQLiteStore(validateDB)
		if err != nil {
			return fmt.Errorf("opening report database: %w", err)
		}
		defer reports.Close()
		opts = append(opts, service.WithStore(reports))
	}

	svc := service.NewValidationService(manager.GetValidationConfig(), newLogger(cmd), opts...)
	result, err := svc.Validate(cmd.Context(), &service.ValidateRequest{
		SubjectID:  input.SubjectID,
		Facts:      domain.FactsFromRecords(input.Facts),
		SourceText: input.SourceText,
		Anchor:     anchor,
	})
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if validateJSON {
		err = printJSON(cmd, result)
	} else {
		printReport(cmd, result)
	}
	if err != nil {
		return err
	}

	if validateFailUnsafe && !result.Report.SafeForUse {
		return ErrUnsafe
	}
	return nil
}

func readFactFile(cmd *cobra.Command, path string) (*factFile, error) {
	r, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var input factFile
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &input, nil
}

func parseAnchor(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := domain.ParseTimestamp(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid anchor: %w", err)
	}
	return &t, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func printReport(cmd *cobra.Command, result *service.ValidateResult) {
	r := result.Report
	verdict := "NOT safe for use"
	if r.SafeForUse {
		verdict = "safe for use"
	}

	cmd.Printf("Subject:          %s\n", r.SubjectID)
	cmd.Printf("Report:           %s\n", result.ReportID)
	cmd.Printf("Overall score:    %.2f (%s)\n", r.OverallScore, verdict)
	if r.RequiresReview {
		cmd.Println("Requires review:  yes")
	}
	cmd.Println()
	cmd.Printf("  completeness      %6.2f\n", r.CompletenessScore)
	cmd.Printf("  accuracy          %6.2f\n", r.AccuracyScore)
	cmd.Printf("  temporal          %6.2f\n", r.TemporalScore)
	cmd.Printf("  contradiction     %6.2f\n", r.ContradictionScore)
	cmd.Printf("  cross_validation  %6.2f\n", r.CrossValidationScore)

	if len(r.MissingRequired) > 0 {
		cmd.Printf("\nMissing required: %v\n", r.MissingRequired)
	}

	if len(r.Issues) == 0 {
		cmd.Println("\nNo issues found.")
		return
	}
	cmd.Printf("\nIssues (%d):\n", len(r.Issues))
	for _, issue := range r.Issues {
		cmd.Printf("  [%s] %s: %s\n", issue.Severity, issue.Category, issue.Message)
		if issue.Recommendation != "" {
			cmd.Printf("      -> %s\n", issue.Recommendation)
		}
	}
}
