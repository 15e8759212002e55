package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-fact-validator/internal/service"
	"github.com/clinical-fact-validator/internal/temporal"
)

const factsJSON = `{
  "subject_id": "patient-1",
  "source_text": "Admitted 01/01/2024 with left frontal glioblastoma. Craniotomy performed on 2024-01-02.",
  "facts": [
    {"id": "adm", "type": "admission", "name": "admission", "text": "Admitted 01/01/2024", "confidence": 0.95, "timestamp": "2024-01-01"},
    {"id": "dx", "type": "diagnosis", "name": "glioblastoma", "text": "left frontal glioblastoma", "confidence": 0.9, "laterality": "left", "region": "frontal lobe"},
    {"id": "op", "type": "procedure", "name": "craniotomy", "text": "Craniotomy performed", "confidence": 0.9, "timestamp": "2024-01-02", "day_offset": 1}
  ]
}`

func writeFacts(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facts.json")
	require.NoError(t, os.WriteFile(path, []byte(factsJSON), 0o600))
	return path
}

// execute runs the root command with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetIn(bytes.NewReader(nil))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		resetFlags()
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags() {
	cfgFile, logLevel = "", "warn"
	validateJSON, validateSourceFile, validateSubject, validateAnchor, validateDB, validateFailUnsafe = false, "", "", "", "", false
	timelineJSON, timelineAnchor = false, ""
	markersJSON = false
	migrateDatabaseURL, migratePath, migrateSteps = "", "", 1
	reportsDB, reportsLimit, reportsOut = "reports.db", 20, ""
	mcpClientConfig, mcpBinary, mcpDataDir, mcpTransport = "", "", "", "stdio"
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "clinval version")
}

func TestValidateCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestValidateCmd_TextOutput(t *testing.T) {
	out, err := execute(t, "validate", writeFacts(t))
	require.NoError(t, err)

	assert.Contains(t, out, "Subject:          patient-1")
	assert.Contains(t, out, "Overall score:")
	assert.Contains(t, out, "completeness")
	assert.Contains(t, out, "Required entity type medication not found")
}

func TestValidateCmd_JSONOutput(t *testing.T) {
	out, err := execute(t, "validate", "--json", "--subject", "patient-9", writeFacts(t))
	require.NoError(t, err)

	var result service.ValidateResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotNil(t, result.Report)
	assert.Equal(t, "patient-9", result.Report.SubjectID)
	assert.NotEmpty(t, result.ReportID)
	assert.False(t, result.Report.SafeForUse)
}

func TestValidateCmd_FailUnsafe(t *testing.T) {
	_, err := execute(t, "validate", "--fail-unsafe", writeFacts(t))
	assert.ErrorIs(t, err, ErrUnsafe)
}

func TestValidateCmd_InvalidAnchor(t *testing.T) {
	_, err := execute(t, "validate", "--anchor", "someday", writeFacts(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid anchor")
}

func TestValidateCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening")
}

func TestValidateCmd_ReadsStdin(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetIn(bytes.NewBufferString(factsJSON))
	rootCmd.SetArgs([]string{"validate", "-"})
	defer func() {
		rootCmd.SetArgs(nil)
		resetFlags()
	}()

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "patient-1")
}

func TestTimelineCmd(t *testing.T) {
	out, err := execute(t, "timeline", writeFacts(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Anchor:   2024-01-01T00:00:00Z (inferred)")
	assert.Contains(t, out, "Events:   3")
	assert.Contains(t, out, "craniotomy")
}

func TestTimelineCmd_JSON(t *testing.T) {
	out, err := execute(t, "timeline", "--json", "--anchor", "2023-12-31", writeFacts(t))
	require.NoError(t, err)

	var view temporal.TimelineView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "2023-12-31T00:00:00Z", view.Anchor)
	assert.False(t, view.AnchorInferred)
	assert.Equal(t, 3, view.TotalEvents)
}

func TestMarkersCmd(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{"post-operative day", []string{"markers", "POD", "3", "stable"}, "Post-operative day: 3"},
		{"hospital day", []string{"markers", "hospital day 4"}, "Hospital day:       4"},
		{"relative", []string{"markers", "seizure yesterday"}, `"yesterday" (-1 days)`},
		{"duration", []string{"markers", "steroids for 2 weeks"}, "Duration:           336h0m0s"},
		{"none", []string{"markers", "no dates here"}, "No temporal markers found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.contains)
		})
	}
}

func TestMarkersCmd_JSON(t *testing.T) {
	out, err := execute(t, "markers", "--json", "HD 2, 3 days ago")
	require.NoError(t, err)

	var m markersOutput
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	require.NotNil(t, m.HospitalDay)
	assert.Equal(t, 2, *m.HospitalDay)
	require.NotNil(t, m.RelativeDays)
	assert.Equal(t, -3, *m.RelativeDays)
}

func TestMarkersCmd_RequiresText(t *testing.T) {
	_, err := execute(t, "markers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestMigrateDownCmd_RejectsNonPositiveSteps(t *testing.T) {
	_, err := execute(t, "migrate", "down", "--steps", "0", "--database-url", "postgres://localhost/none")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps must be positive")
}

func TestMigrateCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0, len(migrateCmd.Commands()))
	for _, c := range migrateCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"up", "down", "status"}, names)

	flag := migrateDownCmd.Flags().Lookup("steps")
	require.NotNil(t, flag)
	assert.Equal(t, "1", flag.DefValue)
}

func TestReportsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "reports.db")
	facts := writeFacts(t)

	_, err := execute(t, "validate", "--db", db, facts)
	require.NoError(t, err)

	out, err := execute(t, "reports", "list", "--db", db, "patient-1")
	require.NoError(t, err)
	assert.Contains(t, out, "unsafe")

	out, err = execute(t, "reports", "list", "--db", db, "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No reports found.")

	exportPath := filepath.Join(dir, "export.json")
	out, err = execute(t, "reports", "export", "--db", db, "--out", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 reports")

	other := filepath.Join(dir, "other.db")
	out, err = execute(t, "reports", "import", "--db", other, exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 reports (0 already present)")

	out, err = execute(t, "reports", "import", "--db", other, exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 reports (1 already present)")
}

func TestReportsExport_Stdout(t *testing.T) {
	db := filepath.Join(t.TempDir(), "reports.db")

	out, err := execute(t, "reports", "export", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `"records": []`)
}

func TestMCPInstallStatusUninstall(t *testing.T) {
	dir := t.TempDir()
	clientConfig := filepath.Join(dir, "claude_desktop_config.json")
	binary := filepath.Join(dir, "mcp-server")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755))

	out, err := execute(t, "mcp", "install", "--client-config", clientConfig, "--binary", binary, "--data-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered clinical-fact-validator")

	out, err = execute(t, "mcp", "status", "--client-config", clientConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered:  true")
	assert.Contains(t, out, binary)

	out, err = execute(t, "mcp", "uninstall", "--client-config", clientConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed clinical-fact-validator")

	out, err = execute(t, "mcp", "status", "--client-config", clientConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "Registered:  false")
}

func TestMCPServeCmd_HasPortFlag(t *testing.T) {
	flag := mcpServeCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "p", flag.Shorthand)
	assert.Equal(t, "0", flag.DefValue)
}
