package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confsentry/internal/pipeline"
)

func sampleResult() *pipeline.PipelineResult {
	return &pipeline.PipelineResult{
		RunID: "0f8fad5b-d9cb-469f-a165-70867728950e",
		Asset: &pipeline.AssetInfo{
			Vendor:     "Cisco",
			Model:      "Catalyst 9300",
			OSType:     "IOS-XE",
			OSVersion:  "17.3",
			Role:       "core_switch",
			Hostname:   "core-sw-01",
			Confidence: pipeline.Confidence{Numeric: 0.95, IsNum: true},
		},
		Checks: pipeline.CriteriaSet{
			{
				CheckID: "N-01", Category: pipeline.CategoryAccessControl,
				Title: "Restrict VTY access", Description: "d",
				Severity: pipeline.SeverityHigh, CheckCommand: "c",
				ExpectedPattern: "p", CompliantExample: "y", NonCompliantExample: "n",
			},
			{
				CheckID: "N-02", Category: pipeline.CategoryEncryption,
				Title: "Require SSHv2", Description: "d",
				Severity: pipeline.SeverityCritical, CheckCommand: "c",
				ExpectedPattern: "p", CompliantExample: "y", NonCompliantExample: "n",
			},
		},
		Results: []pipeline.AssessmentResult{
			{CheckID: "N-01", Status: pipeline.StatusPass, Finding: "Access list applied."},
			{CheckID: "N-02", Status: pipeline.StatusFail, RiskLevel: "critical",
				Finding: "Telnet enabled.", Recommendation: "Enable ip ssh version 2."},
		},
		Summary: &pipeline.Summary{
			TotalChecks: 2, Passed: 1, Failed: 1,
			CriticalFindings: 1, ComplianceScore: 50,
		},
		State:     pipeline.StateAssembled,
		StartedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResult()))

	var round map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &round))
	assert.Equal(t, "core-sw-01", round["asset"].(map[string]any)["hostname"])
	assert.Equal(t, 50.0, round["summary"].(map[string]any)["compliance_score"])

	// Evidence and commands must survive without HTML escaping.
	assert.NotContains(t, buf.String(), `<`)
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "core-sw-01")
	assert.Contains(t, out, "Restrict VTY access")
	assert.Contains(t, out, `class="status-fail"`)
	assert.Contains(t, out, "Enable ip ssh version 2.")
	assert.Contains(t, out, "50.0")
}

func TestWriteHTMLEscapesConfigText(t *testing.T) {
	res := sampleResult()
	res.Results[0].Finding = `<script>alert("x")</script>`

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, res))
	assert.NotContains(t, buf.String(), "<script>alert")
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	paths, err := Save(dir, "both", sampleResult())
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, filepath.Join(dir, "core-sw-01_0f8fad5b.json"), paths[0])
	assert.Equal(t, filepath.Join(dir, "core-sw-01_0f8fad5b.html"), paths[1])
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
}

func TestSavePartialResultWithoutAsset(t *testing.T) {
	res := sampleResult()
	res.Asset = nil
	res.Results = nil
	res.Summary = nil
	res.State = pipeline.StateFailed

	paths, err := Save(t.TempDir(), "json", res)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(filepath.Base(paths[0]), "assessment_"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "core-sw-01", sanitizeFilename("core-sw-01"))
	assert.Equal(t, "rack_3_unit_7", sanitizeFilename("rack 3/unit 7"))
}
