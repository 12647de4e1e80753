package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/claim-intake/internal/domain/entity"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "b")
	writeFile(t, filepath.Join(dir, "a.PDF"), "%PDF-1.4")
	writeFile(t, filepath.Join(dir, "notes.docx"), "skip")
	writeFile(t, filepath.Join(dir, "police_report", "scan.png"), "png")
	writeFile(t, filepath.Join(dir, ".hidden", "c.txt"), "hidden")

	flat, err := collectFiles(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.txt"),
	}, flat)

	deep, err := collectFiles(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "police_report", "scan.png"),
	}, deep)

	_, err = collectFiles(filepath.Join(dir, "b.txt"), false)
	assert.Error(t, err)
	_, err = collectFiles(filepath.Join(dir, "absent"), false)
	assert.Error(t, err)
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		path string
		flag string
		want entity.DocumentCategory
	}{
		{"inbox/police_report/a.png", "", entity.CategoryPoliceReport},
		{"inbox/a.png", "", entity.CategoryOther},
		{"inbox/police_report/a.png", "repair_estimate", entity.CategoryRepairEstimate},
		{"inbox/a.png", "nonsense", entity.CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.path+"|"+tt.flag, func(t *testing.T) {
			assert.Equal(t, tt.want, categoryFor(tt.path, tt.flag))
		})
	}
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "claim.txt")
	writeFile(t, path, "Claimant: Jane Doe\nPolicy: POL-12345\n")

	doc, err := loadDocument(path, entity.CategoryAccidentReport)
	require.NoError(t, err)
	assert.Equal(t, "claim.txt", doc.Filename)
	assert.Equal(t, "text/plain", doc.MediaType)
	assert.Equal(t, entity.CategoryAccidentReport, doc.Category)
	assert.Equal(t, 37, doc.Size)

	_, err = loadDocument(filepath.Join(dir, "absent.txt"), entity.CategoryOther)
	assert.Error(t, err)
}

func TestWriteTable(t *testing.T) {
	outcomes := []*entity.ClaimOutcome{
		{
			RunID:    "run-a",
			State:    "ROUTED",
			Document: &entity.ClaimDocument{Filename: "a.pdf"},
			Decision: &entity.RoutingDecision{Action: entity.ActionManualReview, Rationale: "amount above threshold"},
		},
		nil,
		{
			RunID:    "run-b",
			State:    "FAILED",
			Document: &entity.ClaimDocument{Filename: "b.png"},
			Failure:  &entity.StageFailure{Stage: entity.StageExtraction, Reason: "LOW_CONFIDENCE", Detail: "confidence 0.40"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, outcomes))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "FILE")
	assert.Contains(t, lines[1], "a.pdf")
	assert.Contains(t, lines[1], "MANUAL_REVIEW")
	assert.Contains(t, lines[1], "amount above threshold")
	assert.Contains(t, lines[2], "b.png")
	assert.Contains(t, lines[2], "confidence 0.40")
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	writeSummary(&buf, map[string]int{"REJECT": 1, "AUTO_APPROVE": 2}, 3)
	assert.Equal(t, "AUTO_APPROVE           2\nREJECT                 1\nTOTAL                  3\n", buf.String())
}

func TestConfigValidateCommand(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.yaml")
	writeFile(t, valid, "pipeline:\n  auto_approve_threshold: 2500\n")
	out, err := runCommand(t, "config", "validate", "--config", valid)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
	assert.Contains(t, out, "2500.00")

	invalid := filepath.Join(dir, "invalid.yaml")
	writeFile(t, invalid, "pipeline:\n  low_risk_margin: 0.9\n")
	_, err = runCommand(t, "config", "validate", "--config", invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.low_risk_margin")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "claimctl "+Version+"\n", out)
}

func TestProcessRequiresFiles(t *testing.T) {
	_, err := runCommand(t, "process")
	assert.Error(t, err)
}

func TestBatchRejectsEmptyDirectory(t *testing.T) {
	_, err := runCommand(t, "batch", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported documents")
}
