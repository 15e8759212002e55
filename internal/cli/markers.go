package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/clinical-fact-validator/internal/temporal"
)

var markersJSON bool

type markersOutput struct {
	DayOffset      *int   `json:"day_offset,omitempty"`
	HospitalDay    *int   `json:"hospital_day,omitempty"`
	RelativePhrase string `json:"relative_phrase,omitempty"`
	RelativeDays   *int   `json:"relative_days,omitempty"`
	Duration       string `json:"duration,omitempty"`
}

var markersCmd = &cobra.Command{
	Use:   "markers [text]",
	Short: "Extract temporal markers from clinical text",
	Long: `Lists the temporal references found in the text: post-operative day (POD 3),
hospital day (HD 2), relative phrases (yesterday, 3 days ago) and durations
(for 2 weeks).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMarkers,
}

func init() {
	markersCmd.Flags().BoolVar(&markersJSON, "json", false, "output markers as JSON")
	rootCmd.AddCommand(markersCmd)
}

func runMarkers(cmd *cobra.Command, args []string) error {
	m := temporal.ParseMarkers(strings.Join(args, " "))

	out := markersOutput{
		DayOffset:      m.DayOffset,
		HospitalDay:    m.HospitalDay,
		RelativePhrase: m.RelativePhrase,
		RelativeDays:   m.RelativeDays,
	}
	if m.Duration != nil {
		out.Duration = m.Duration.String()
	}
	if markersJSON {
		return printJSON(cmd, out)
	}

	if m.IsZero() {
		cmd.Println("No temporal markers found.")
		return nil
	}
	if out.DayOffset != nil {
		cmd.Printf("Post-operative day: %d\n", *out.DayOffset)
	}
	if out.HospitalDay != nil {
		cmd.Printf("Hospital day:       %d\n", *out.HospitalDay)
	}
	if out.RelativeDays != nil {
		cmd.Printf("Relative:           %q (%+d days)\n", out.RelativePhrase, *out.RelativeDays)
	}
	if out.Duration != "" {
		cmd.Printf("Duration:           %s\n", out.Duration)
	}
	return nil
}
