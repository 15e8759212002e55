package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clinical-fact-validator/internal/domain"
	"github.com/clinical-fact-validator/internal/service"
	"github.com/clinical-fact-validator/internal/temporal"
)

var (
	timelineJSON   bool
	timelineAnchor string
)

var timelineCmd = &cobra.Command{
	Use:   "timeline [facts.json]",
	Short: "Build the resolved timeline of a file of facts",
	Long: `Resolves post-operative day, hospital day and relative markers of the facts in a
JSON file against an anchor instant and lists the ordered events and temporal
conflicts. The anchor is inferred from the facts when neither the file nor --anchor
provides one.`,
	Args: cobra.ExactArgs(1),
	RunE: runTimeline,
}

func init() {
	timelineCmd.Flags().BoolVar(&timelineJSON, "json", false, "output the timeline as JSON")
	timelineCmd.Flags().StringVar(&timelineAnchor, "anchor", "", "RFC 3339 anchor instant (overrides the file)")
	rootCmd.AddCommand(timelineCmd)
}

func runTimeline(cmd *cobra.Command, args []string) error {
	input, err := readFactFile(cmd, args[0])
	if err != nil {
		return err
	}
	if timelineAnchor != "" {
		input.Anchor = timelineAnchor
	}
	anchor, err := parseAnchor(input.Anchor)
	if err != nil {
		return err
	}

	manager, err := loadConfig()
	if err != nil {
		return err
	}

	svc := service.NewValidationService(manager.GetValidationConfig(), newLogger(cmd))
	timeline, err := svc.BuildTimeline(cmd.Context(), input.SubjectID, domain.FactsFromRecords(input.Facts), anchor)
	if err != nil {
		return fmt.Errorf("building timeline: %w", err)
	}

	view := timeline.View()
	if timelineJSON {
		return printJSON(cmd, view)
	}
	printTimeline(cmd, view)
	return nil
}

func printTimeline(cmd *cobra.Command, view temporal.TimelineView) {
	anchor := view.Anchor
	if anchor == "" {
		anchor = "none"
	} else if view.AnchorInferred {
		anchor += " (inferred)"
	}

	cmd.Printf("Anchor:   %s\n", anchor)
	cmd.Printf("Events:   %d (%d resolved)\n", view.TotalEvents, view.ResolvedEvents)
	if view.Start != "" {
		cmd.Printf("Span:     %s .. %s\n", view.Start, view.End)
	}
	cmd.Println()

	for _, e := range view.Events {
		when := e.Resolved
		if when == "" {
			when = "unresolved"
		}
		cmd.Printf("  %-22s %-16s %s\n", when, e.Type, e.Name)
	}

	if len(view.Conflicts) == 0 {
		return
	}
	cmd.Printf("\nConflicts (%d, %d critical):\n", len(view.Conflicts), view.CriticalConflicts)
	for _, c := range view.Conflicts {
		cmd.Printf("  [%s] %s: %s\n", c.Severity, c.Kind, c.Description)
	}
}
