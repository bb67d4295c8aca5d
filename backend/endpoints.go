package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
	"github.com/Isha1703/campaign-dashboard-sub001/canonical"
)

// StartCampaignRequest is the payload for starting a pipeline run.
type StartCampaignRequest struct {
	Product     string  `json:"product"`
	ProductCost float64 `json:"product_cost"`
	Budget      float64 `json:"budget"`
}

// StartCampaignResponse carries the new session.
type StartCampaignResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
}

// SessionID extracts the session identifier from the start response.
func (r *StartCampaignResponse) SessionID() string {
	if id, ok := r.Data["session_id"].(string); ok {
		return id
	}
	return ""
}

// AgentResult is how the backend persists one stage's output.
type AgentResult struct {
	Agent     string         `json:"agent"`
	Timestamp time.Time      `json:"timestamp"`
	Stage     campaign.Stage `json:"stage"`
	Status    string         `json:"status"`
	Result    map[string]any `json:"result"`
}

// StageResult converts the wire shape into the immutable model type,
// computing the content digest used for change detection.
func (a *AgentResult) StageResult() (campaign.StageResult, error) {
	d, err := canonical.Digest(a.Result)
	if err != nil {
		return campaign.StageResult{}, apierrors.New("stageResult", apierrors.ClassValidation, err)
	}
	return campaign.StageResult{
		Stage:      a.Stage,
		ProducedAt: a.Timestamp,
		Payload:    a.Result,
		Digest:     d,
	}, nil
}

type resultsEnvelope struct {
	Success   bool                   `json:"success"`
	SessionID string                 `json:"session_id"`
	Results   map[string]AgentResult `json:"results"`
}

type progressEnvelope struct {
	Success   bool              `json:"success"`
	SessionID string            `json:"session_id"`
	Progress  campaign.Progress `json:"progress"`
}

type sessionEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
}

type sessionsEnvelope struct {
	Success  bool     `json:"success"`
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

type agentEnvelope struct {
	Success   bool        `json:"success"`
	SessionID string      `json:"session_id"`
	Agent     string      `json:"agent"`
	Data      AgentResult `json:"data"`
}

type outputEnvelope struct {
	Success bool     `json:"success"`
	Output  []string `json:"output"`
	Count   int      `json:"count"`
}

// FeedbackAction is the approval decision sent with feedback.
type FeedbackAction string

const (
	ActionApprove FeedbackAction = "approve"
	ActionRevise  FeedbackAction = "revise"
)

// FeedbackRequest is the payload for the feedback endpoint.
type FeedbackRequest struct {
	SessionID string         `json:"session_id"`
	AdID      string         `json:"ad_id"`
	Action    FeedbackAction `json:"action"`
	Feedback  string         `json:"feedback,omitempty"`
}

// RevisionRequest is the payload for the advanced revision endpoint.
type RevisionRequest struct {
	SessionID    string `json:"session_id"`
	AssetID      string `json:"asset_id"`
	Feedback     string `json:"feedback"`
	RevisionType string `json:"revision_type"`
}

// RevisionResponse is the advanced revision result.
type RevisionResponse struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message,omitempty"`
	Error          string         `json:"error,omitempty"`
	RevisionResult map[string]any `json:"revision_result,omitempty"`
}

// DownloadRequest asks the backend to fetch a content-store object and
// serve it from its public media directory.
type DownloadRequest struct {
	S3Path  string `json:"s3_path"`
	AssetID string `json:"asset_id,omitempty"`
	AdType  string `json:"ad_type,omitempty"`
}

// DownloadResponse reports where the fetched object is served from.
type DownloadResponse struct {
	Success   bool   `json:"success"`
	LocalURL  string `json:"local_url,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StartCampaign starts a new pipeline run and returns its session.
func (c *Client) StartCampaign(ctx context.Context, req StartCampaignRequest) (*StartCampaignResponse, error) {
	var resp StartCampaignResponse
	if err := c.doRetry(ctx, "startCampaign", http.MethodPost, "/api/campaign/start", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID() == "" {
		return nil, apierrors.Newf("startCampaign", apierrors.ClassServer, "response carried no session id")
	}
	return &resp, nil
}

// Session fetches the raw session snapshot.
func (c *Client) Session(ctx context.Context, sessionID string) (map[string]any, error) {
	var resp sessionEnvelope
	if err := c.doRetry(ctx, "session", http.MethodGet, sessionPath(sessionID, ""), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Sessions lists known session identifiers.
func (c *Client) Sessions(ctx context.Context) ([]string, error) {
	var resp sessionsEnvelope
	if err := c.doRetry(ctx, "sessions", http.MethodGet, "/api/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Results fetches every stage result produced so far, keyed by stage.
func (c *Client) Results(ctx context.Context, sessionID string) (map[campaign.Stage]campaign.StageResult, error) {
	var resp resultsEnvelope
	if err := c.doRetry(ctx, "results", http.MethodGet, sessionPath(sessionID, "/results"), nil, &resp); err != nil {
		return nil, err
	}

	out := make(map[campaign.Stage]campaign.StageResult, len(resp.Results))
	for _, agent := range resp.Results {
		if agent.Stage == "" {
			continue
		}
		sr, err := agent.StageResult()
		if err != nil {
			return nil, err
		}
		out[sr.Stage] = sr
	}
	return out, nil
}

// Progress fetches the session progress snapshot.
func (c *Client) Progress(ctx context.Context, sessionID string) (campaign.Progress, error) {
	var resp progressEnvelope
	if err := c.doRetry(ctx, "progress", http.MethodGet, sessionPath(sessionID, "/progress"), nil, &resp); err != nil {
		return campaign.Progress{}, err
	}
	return resp.Progress, nil
}

// StageResult fetches one stage's result by agent name.
func (c *Client) StageResult(ctx context.Context, sessionID, agentName string) (campaign.StageResult, error) {
	var resp agentEnvelope
	if err := c.doRetry(ctx, "stageResult", http.MethodGet, sessionPath(sessionID, "/agent/"+agentName), nil, &resp); err != nil {
		return campaign.StageResult{}, err
	}
	return resp.Data.StageResult()
}

// Output fetches the ordered pipeline log lines.
func (c *Client) Output(ctx context.Context, sessionID string) ([]string, error) {
	var resp outputEnvelope
	if err := c.doRetry(ctx, "output", http.MethodGet, sessionPath(sessionID, "/output"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Output, nil
}

// OpenStream opens the server-push channel for a session and returns the
// raw response. The caller owns the body; frames are decoded by the stream
// package. No retry here: reconnects are the stream channel's concern.
func (c *Client) OpenStream(ctx context.Context, sessionID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+sessionPath(sessionID, "/stream"), nil)
	if err != nil {
		return nil, apierrors.New("openStream", apierrors.ClassValidation, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierrors.FromTransport("openStream", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, apierrors.FromHTTP("openStream", resp.StatusCode, nil)
	}
	return resp, nil
}

// SendFeedback submits an approval decision for one asset.
func (c *Client) SendFeedback(ctx context.Context, req FeedbackRequest) error {
	if req.Action == ActionRevise && req.Feedback == "" {
		return apierrors.Newf("sendFeedback", apierrors.ClassValidation, "revision feedback cannot be empty")
	}
	return c.doRetry(ctx, "sendFeedback", http.MethodPost, "/api/campaign/feedback", req, nil)
}

// AdvancedRevision dispatches a revision of one asset with typed feedback.
func (c *Client) AdvancedRevision(ctx context.Context, req RevisionRequest) (*RevisionResponse, error) {
	if req.Feedback == "" {
		return nil, apierrors.Newf("advancedRevision", apierrors.ClassValidation, "revision feedback cannot be empty")
	}

	var resp RevisionResponse
	if err := c.doRetry(ctx, "advancedRevision", http.MethodPost, "/api/campaign/advanced-revision", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apierrors.Newf("advancedRevision", apierrors.ClassServer, "revision failed: %s", resp.Error)
	}
	return &resp, nil
}

// DownloadContent asks the backend to mirror a content-store object locally.
func (c *Client) DownloadContent(ctx context.Context, req DownloadRequest) (*DownloadResponse, error) {
	var resp DownloadResponse
	if err := c.doRetry(ctx, "downloadContent", http.MethodPost, "/api/download-s3-content", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apierrors.Newf("downloadContent", apierrors.ClassNotFound, "backend download failed: %s", resp.Error)
	}
	return &resp, nil
}

// Health probes backend liveness. Never retried.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/health", nil, nil)
}

// Ping probes backend connectivity. Never retried.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/test", nil, nil)
}
