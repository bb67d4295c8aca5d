package backend

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
	"github.com/Isha1703/campaign-dashboard-sub001/internal/testutil"
	"github.com/Isha1703/campaign-dashboard-sub001/retry"
)

func newTestClient(m *testutil.MockBackend) *Client {
	return New(
		WithBaseURL(m.URL()),
		WithLogger(testutil.DiscardLogger()),
		WithRetryOptions(
			retry.WithMaxAttempts(3),
			retry.WithBaseDelay(time.Millisecond),
			retry.WithMaxDelay(5*time.Millisecond),
		),
	)
}

func TestStartCampaign(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	resp, err := newTestClient(m).StartCampaign(context.Background(), StartCampaignRequest{
		Product:     "smart mug",
		ProductCost: 29.99,
		Budget:      5000,
	})
	require.NoError(t, err)
	assert.Equal(t, "session-test-1", resp.SessionID())
}

func TestStartCampaign_RetriesServerFailures(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	var calls atomic.Int32
	m.StartFunc = func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"session_id":"session-test-2"}}`))
	}

	resp, err := newTestClient(m).StartCampaign(context.Background(), StartCampaignRequest{Product: "x"})
	require.NoError(t, err)
	assert.Equal(t, "session-test-2", resp.SessionID())
	assert.Equal(t, int32(3), calls.Load())
}

func TestSession_NotFoundIsNotRetried(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	m.SessionFunc = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Session not found", http.StatusNotFound)
	}

	_, err := newTestClient(m).Session(context.Background(), "missing")
	assert.True(t, apierrors.IsNotFound(err))
	assert.Equal(t, 1, m.RequestCount("session"))
}

func TestResults_MapsAgentsToStages(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	m.SetResults(map[string]map[string]any{
		"AudienceAgent": {
			"agent":     "AudienceAgent",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"stage":     "audience_analysis",
			"status":    "completed",
			"result":    map[string]any{"audiences": []any{"gamers"}},
		},
		"BudgetAgent": {
			"agent":     "BudgetAgent",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"stage":     "budget_allocation",
			"status":    "completed",
			"result":    map[string]any{"total": 5000},
		},
	})

	results, err := newTestClient(m).Results(context.Background(), "session-test-1")
	require.NoError(t, err)
	require.Len(t, results, 2)

	aud, ok := results[campaign.StageAudienceAnalysis]
	require.True(t, ok)
	assert.NotEmpty(t, aud.Digest)
	assert.Equal(t, []any{"gamers"}, aud.Payload["audiences"])

	_, ok = results[campaign.StageBudgetAllocation]
	assert.True(t, ok)
}

func TestProgress(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	m.SetProgress(map[string]any{
		"stage":            "prompt_strategy",
		"percentage":       60,
		"completed_stages": []string{"audience_analysis", "budget_allocation"},
		"status":           "running",
	})

	p, err := newTestClient(m).Progress(context.Background(), "session-test-1")
	require.NoError(t, err)
	assert.Equal(t, campaign.StagePromptStrategy, p.Stage)
	assert.Equal(t, 60, p.Percentage)
	assert.Len(t, p.CompletedStages, 2)
}

func TestOutput(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()
	m.AppendOutput("AudienceAgent: analyzing demographics", "BudgetAgent: allocating budget")

	lines, err := newTestClient(m).Output(context.Background(), "session-test-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"AudienceAgent: analyzing demographics", "BudgetAgent: allocating budget"}, lines)
}

func TestSendFeedback_RequiresRevisionFeedback(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	err := newTestClient(m).SendFeedback(context.Background(), FeedbackRequest{
		SessionID: "s",
		AdID:      "asset-1",
		Action:    ActionRevise,
	})
	assert.True(t, apierrors.IsValidation(err))
	assert.Equal(t, 0, m.RequestCount("feedback"))

	err = newTestClient(m).SendFeedback(context.Background(), FeedbackRequest{
		SessionID: "s",
		AdID:      "asset-1",
		Action:    ActionApprove,
	})
	assert.NoError(t, err)
}

func TestAdvancedRevision(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	resp, err := newTestClient(m).AdvancedRevision(context.Background(), RevisionRequest{
		SessionID:    "s",
		AssetID:      "asset-1",
		Feedback:     "make the tone more playful",
		RevisionType: "standard",
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.RevisionResult["status"])
}

func TestDownloadContent(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	resp, err := newTestClient(m).DownloadContent(context.Background(), DownloadRequest{
		S3Path:  "s3://agentcore-demo-172/image-outputs/a.png",
		AssetID: "asset-1",
		AdType:  campaign.AdTypeImage,
	})
	require.NoError(t, err)
	assert.Equal(t, "/public/media/asset.png", resp.LocalURL)
}

func TestHealthAndPing_NeverRetried(t *testing.T) {
	m := testutil.NewMockBackend()
	defer m.Close()

	fail := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}
	m.HealthFunc = fail
	m.PingFunc = fail

	c := newTestClient(m)

	err := c.Health(context.Background())
	assert.Equal(t, apierrors.ClassServer, apierrors.ClassOf(err))
	assert.Equal(t, 1, m.RequestCount("health"))

	err = c.Ping(context.Background())
	assert.Equal(t, apierrors.ClassServer, apierrors.ClassOf(err))
	assert.Equal(t, 1, m.RequestCount("test"))
}

func TestTransportFailureIsNetworkClass(t *testing.T) {
	c := New(
		WithBaseURL("http://127.0.0.1:1"),
		WithLogger(testutil.DiscardLogger()),
		WithRetryOptions(retry.WithMaxAttempts(1)),
		WithTimeout(200*time.Millisecond),
	)
	_, err := c.Sessions(context.Background())
	require.Error(t, err)
	class := apierrors.ClassOf(err)
	assert.Contains(t, []apierrors.Class{apierrors.ClassNetwork, apierrors.ClassTimeout}, class)
}
