package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"confsentry/internal/backend"
	"confsentry/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubGen answers every stage with a canned valid document. A stage 1
// prompt whose configuration text contains "TRIP-BACKEND" fails instead,
// so individual files can be made to fail deterministically.
type stubGen struct{}

func (stubGen) Generate(_ context.Context, prompt string, _ int) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "Analyze the following"):
		if strings.Contains(prompt, "TRIP-BACKEND") {
			return "", fmt.Errorf("%w: injected", backend.ErrUnavailable)
		}
		return `{
			"device_vendor": "Cisco", "device_model": "Catalyst 9300",
			"os_type": "IOS-XE", "os_version": "17.3",
			"device_role": "core_switch", "hostname": "core-sw-01",
			"confidence": "high"
		}`, nil
	case strings.HasPrefix(prompt, "Produce a security compliance baseline"):
		checks := make([]map[string]any, 10)
		for i := range checks {
			checks[i] = map[string]any{
				"check_id":              fmt.Sprintf("N-%02d", i+1),
				"category":              "access_control",
				"title":                 "t",
				"description":           "d",
				"severity":              "low",
				"check_command":         "c",
				"expected_pattern":      "p",
				"compliant_example":     "y",
				"non_compliant_example": "n",
			}
		}
		doc, _ := json.Marshal(map[string]any{"checks": checks})
		return string(doc), nil
	case strings.HasPrefix(prompt, "Assess the following"):
		results := make(map[string]map[string]any, 10)
		for i := 0; i < 10; i++ {
			results[fmt.Sprintf("N-%02d", i+1)] = map[string]any{
				"status": "pass", "risk_level": "low",
				"finding": "f", "evidence": "e", "recommendation": "r",
			}
		}
		doc, _ := json.Marshal(map[string]any{"assessment_results": results})
		return string(doc), nil
	}
	return "", fmt.Errorf("unexpected prompt: %.60q", prompt)
}

func writeConfigs(t *testing.T, contents map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestRunnerProcessesAllFiles(t *testing.T) {
	dir := writeConfigs(t, map[string]string{
		"sw1.cfg": "hostname sw1\n! cisco ios\n",
		"sw2.cfg": "hostname sw2\n! cisco ios\n",
		"sw3.cfg": "hostname sw3\n! cisco ios\n",
	})

	r := NewRunner(pipeline.New(stubGen{}), 2, zap.NewNop())
	outcomes, err := r.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	// Outcomes are ordered by path regardless of completion order.
	assert.Equal(t, filepath.Join(dir, "sw1.cfg"), outcomes[0].Path)
	assert.Equal(t, filepath.Join(dir, "sw3.cfg"), outcomes[2].Path)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		require.NotNil(t, o.Result)
		assert.Equal(t, pipeline.StateAssembled, o.Result.State)
	}
}

func TestRunnerFailedRunDoesNotStopBatch(t *testing.T) {
	dir := writeConfigs(t, map[string]string{
		"bad.cfg":  "hostname bad\nTRIP-BACKEND\n! cisco ios\n",
		"good.cfg": "hostname good\n! cisco ios\n",
	})

	p := pipeline.New(stubGen{}, pipeline.WithRetryPolicy(pipeline.RetryPolicy{MaxAttempts: 1}))
	r := NewRunner(p, 4, zap.NewNop())
	outcomes, err := r.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Error(t, outcomes[0].Err)
	require.NotNil(t, outcomes[0].Result, "failed runs still carry the partial result")
	assert.Equal(t, pipeline.StateFailed, outcomes[0].Result.State)

	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, pipeline.StateAssembled, outcomes[1].Result.State)
}

func TestRunnerEmptyDir(t *testing.T) {
	r := NewRunner(pipeline.New(stubGen{}), 1, nil)
	_, err := r.Run(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestRunnerMissingDir(t *testing.T) {
	r := NewRunner(pipeline.New(stubGen{}), 1, nil)
	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRunnerCancellation(t *testing.T) {
	dir := writeConfigs(t, map[string]string{"sw1.cfg": "hostname sw1\n! cisco ios\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(pipeline.New(stubGen{}), 1, zap.NewNop())
	_, err := r.Run(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
