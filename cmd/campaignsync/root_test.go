package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Isha1703/campaign-dashboard-sub001/internal/config"
	"github.com/Isha1703/campaign-dashboard-sub001/internal/testutil"
)

func runCommand(t *testing.T, m *testutil.MockBackend, args ...string) (string, string, error) {
	t.Helper()

	cfg := config.Config{
		Backend: config.BackendConfig{URL: m.URL(), TimeoutSeconds: 5},
		Media:   config.MediaConfig{Dir: "media"},
		Log:     config.LogConfig{Level: "info"},
	}
	cmd := newRootCmd(cfg, testutil.DiscardLogger())

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestHealthCommand(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	out, _, err := runCommand(t, m, "health")
	require.NoError(t, err)

	assert.Contains(t, out, "backend reachable")
	assert.Contains(t, out, "backend healthy")
	assert.Equal(t, 1, m.RequestCount("test"))
	assert.Equal(t, 1, m.RequestCount("health"))
}

func TestHealthCommand_Unreachable(t *testing.T) {
	m := testutil.NewMockBackend()
	m.Close()

	_, _, err := runCommand(t, m, "health")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unreachable")
}

func TestStartCommand(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	out, _, err := runCommand(t, m,
		"start", "--product", "solar panels", "--budget", "5000")
	require.NoError(t, err)

	assert.Contains(t, out, "session-test-1")
	assert.Equal(t, 1, m.RequestCount("start"))
}

func TestStartCommand_RequiresProduct(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	_, _, err := runCommand(t, m, "start")
	require.Error(t, err)
}

func TestTransientFailurePrintsRetryNotice(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	var calls atomic.Int32
	m.FeedbackFunc = func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily overloaded", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	}

	out, errOut, err := runCommand(t, m, "approve", "session_1", "ad_1")
	require.NoError(t, err)

	assert.Contains(t, out, "approved ad_1")
	assert.Contains(t, errOut, "retrying")
	assert.Contains(t, errOut, "attempt 1")
	assert.Equal(t, int32(2), calls.Load())
}

func TestApproveCommand(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	var captured map[string]any
	m.FeedbackFunc = func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	}

	out, _, err := runCommand(t, m, "approve", "session_1", "ad_2")
	require.NoError(t, err)

	assert.Contains(t, out, "approved ad_2")
	assert.Equal(t, "session_1", captured["session_id"])
	assert.Equal(t, "ad_2", captured["ad_id"])
	assert.Equal(t, "approve", captured["action"])
}

func TestReviseCommand_ScoresCategory(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	var captured map[string]any
	m.RevisionFunc = func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "message": "revision dispatched"}`))
	}

	out, _, err := runCommand(t, m,
		"revise", "session_1", "ad_1",
		"--feedback", "make the tone more casual and friendly")
	require.NoError(t, err)

	assert.Contains(t, out, "revision of ad_1 dispatched (tone)")
	assert.Equal(t, "tone", captured["revision_type"])
	assert.Equal(t, "make the tone more casual and friendly", captured["feedback"])
}

func TestReviseCommand_RequiresFeedback(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	_, _, err := runCommand(t, m, "revise", "session_1", "ad_1")
	require.Error(t, err)
}

func TestFetchCommand_NoAssets(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	out, _, err := runCommand(t, m, "fetch", "session_1")
	require.NoError(t, err)

	assert.Contains(t, out, "no generated assets yet")
}

func TestFetchCommand_ResolvesRemoteAssets(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	m.SetResults(map[string]map[string]any{
		"ContentGenerationAgent": {
			"agent": "ContentGenerationAgent",
			"stage": "content_generation",
			"result": map[string]any{
				"ads": []any{
					map[string]any{
						"asset_id": "ad_1",
						"content":  "s3://campaign-assets/session_1/ad_1.png",
					},
				},
			},
		},
	})

	out, errOut, err := runCommand(t, m, "fetch", "session_1")
	require.NoError(t, err)

	assert.Empty(t, errOut)
	assert.Contains(t, out, "ad_1")
	assert.Contains(t, out, "resolved 1 of 1 assets")
	assert.Equal(t, 1, m.RequestCount("download"))
}
