// Package syncer owns a session's lifecycle. It runs the push and pull
// channels side by side, merges their events into one callback surface,
// and suppresses duplicate stage results arriving from both.
package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/approval"
	"github.com/Isha1703/campaign-dashboard-sub001/backend"
	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
	"github.com/Isha1703/campaign-dashboard-sub001/canonical"
	"github.com/Isha1703/campaign-dashboard-sub001/poll"
	"github.com/Isha1703/campaign-dashboard-sub001/stream"
)

// StreamChannel is the push channel seam.
type StreamChannel interface {
	Connect(ctx context.Context, sessionID string) error
	SubscribeAll(fn stream.Handler) func()
	Disconnect()
	Status() stream.Status
}

// PollChannel is the pull channel seam.
type PollChannel interface {
	Start(ctx context.Context, sessionID string, cb poll.Callbacks) error
	Stop()
	PollNow()
	Status() poll.Status
}

// ChannelStatus reports both channels' connection states.
type ChannelStatus struct {
	Stream stream.Status
	Poll   poll.Status
}

// Callbacks is the merged outward-facing event surface. Errors are always
// normalized before delivery.
type Callbacks struct {
	OnAgentOutput    func(line string)
	OnProgressUpdate func(progress campaign.Progress)
	OnResultsUpdate  func(results map[campaign.Stage]campaign.StageResult)
	OnStatusChange   func(status ChannelStatus)
	OnError          func(failure apierrors.Normalized)
}

type dedupKey struct {
	stage  campaign.Stage
	digest digest.Digest
}

// Config holds orchestrator settings.
type Config struct {
	Stream        StreamChannel
	Poller        PollChannel
	StreamOptions []stream.Option
	PollOptions   []poll.Option
	Logger        *slog.Logger
}

// Option configures the orchestrator.
type Option func(*Config)

// WithLogger sets the orchestrator logger. Channel construction inherits it
// unless the channels are injected directly.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithStreamChannel injects a prebuilt push channel.
func WithStreamChannel(s StreamChannel) Option {
	return func(c *Config) { c.Stream = s }
}

// WithPollChannel injects a prebuilt pull channel.
func WithPollChannel(p PollChannel) Option {
	return func(c *Config) { c.Poller = p }
}

// WithStreamOptions forwards options to the default push channel.
func WithStreamOptions(opts ...stream.Option) Option {
	return func(c *Config) { c.StreamOptions = append(c.StreamOptions, opts...) }
}

// WithPollOptions forwards options to the default pull channel.
func WithPollOptions(opts ...poll.Option) Option {
	return func(c *Config) { c.PollOptions = append(c.PollOptions, opts...) }
}

// Orchestrator coordinates one session at a time.
type Orchestrator struct {
	client *backend.Client
	stream StreamChannel
	poller PollChannel
	logger *slog.Logger

	mu          sync.Mutex
	connected   bool
	session     *campaign.Session
	results     map[campaign.Stage]campaign.StageResult
	seen        map[dedupKey]struct{}
	callbacks   Callbacks
	workflow    *approval.Workflow
	unsubscribe func()
}

// New creates a disconnected orchestrator over the API client.
func New(client *backend.Client, opts ...Option) *Orchestrator {
	cfg := Config{Logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stream == nil {
		cfg.Stream = stream.NewChannel(client,
			append([]stream.Option{stream.WithLogger(cfg.Logger)}, cfg.StreamOptions...)...)
	}
	if cfg.Poller == nil {
		cfg.Poller = poll.NewChannel(client,
			append([]poll.Option{poll.WithLogger(cfg.Logger)}, cfg.PollOptions...)...)
	}
	return &Orchestrator{
		client: client,
		stream: cfg.Stream,
		poller: cfg.Poller,
		logger: cfg.Logger,
	}
}

// StartCampaign starts a new pipeline run and connects to its session.
func (o *Orchestrator) StartCampaign(
	ctx context.Context,
	req backend.StartCampaignRequest,
	cb Callbacks,
) (string, error) {
	resp, err := o.client.StartCampaign(ctx, req)
	if err != nil {
		return "", err
	}
	id := resp.SessionID()
	if err := o.ConnectToSession(ctx, id, cb); err != nil {
		return "", err
	}
	return id, nil
}

// ConnectToSession binds the orchestrator to a session. The push channel is
// best-effort: its failure is logged and the session continues on polling
// alone. The pull channel always starts.
func (o *Orchestrator) ConnectToSession(ctx context.Context, sessionID string, cb Callbacks) error {
	const op = "connectToSession"

	o.mu.Lock()
	if o.connected {
		o.mu.Unlock()
		return apierrors.Newf(op, apierrors.ClassWorkflow,
			"already connected to session %q", o.session.ID)
	}
	o.connected = true
	o.callbacks = cb
	o.session = &campaign.Session{
		ID:        sessionID,
		CreatedAt: time.Now(),
		State:     campaign.SessionInitializing,
	}
	o.results = make(map[campaign.Stage]campaign.StageResult)
	o.seen = make(map[dedupKey]struct{})
	o.workflow = approval.NewWorkflow(sessionID,
		approval.Dispatcher{Client: o.client},
		approval.WithLogger(o.logger))
	o.unsubscribe = o.stream.SubscribeAll(o.handleFrame)
	o.mu.Unlock()

	if err := o.stream.Connect(ctx, sessionID); err != nil {
		o.logger.Warn("live update channel unavailable, continuing with polling only",
			"session", sessionID, "error", err)
	}

	if err := o.poller.Start(ctx, sessionID, poll.Callbacks{
		OnResults:  func(r map[campaign.Stage]campaign.StageResult) { o.handleResults(r) },
		OnProgress: o.handleProgress,
		OnError:    o.fail,
	}); err != nil {
		o.Disconnect()
		return err
	}
	return nil
}

// handleFrame folds push events into the same handlers the poller feeds.
func (o *Orchestrator) handleFrame(frame stream.Frame) {
	if !o.isConnected() {
		return
	}
	cb := o.currentCallbacks()

	switch frame.Kind {
	case stream.KindAgentOutput:
		line := frame.Raw
		if content, ok := frame.Data["content"].(string); ok {
			line = content
		}
		if cb.OnAgentOutput != nil {
			cb.OnAgentOutput(line)
		}
	case stream.KindProgressUpdate:
		if results, ok := resultsFromFrame(frame.Data); ok {
			o.handleResults(results)
		}
		if progress, ok := progressFromFrame(frame.Data); ok {
			o.handleProgress(progress)
		}
	case stream.KindError:
		msg, _ := frame.Data["error"].(string)
		o.fail(apierrors.Newf("stream", apierrors.ClassStream, "%s", msg))
	case stream.KindStatusChange:
		if cb.OnStatusChange != nil {
			cb.OnStatusChange(o.ChannelStatus())
		}
	}
}

// handleResults filters stage results through the seen set. Whichever
// channel delivers a logical update first wins; the duplicate is dropped.
func (o *Orchestrator) handleResults(results map[campaign.Stage]campaign.StageResult) {
	o.mu.Lock()
	if !o.connected {
		o.mu.Unlock()
		return
	}
	fresh := make(map[campaign.Stage]campaign.StageResult)
	for stage, result := range results {
		if result.Digest == "" {
			if d, err := canonical.Digest(result.Payload); err == nil {
				result.Digest = d
			}
		}
		key := dedupKey{stage: stage, digest: result.Digest}
		if _, dup := o.seen[key]; dup {
			continue
		}
		o.seen[key] = struct{}{}
		o.results[stage] = result
		fresh[stage] = result
	}
	workflow := o.workflow
	cb := o.callbacks
	o.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	for _, result := range fresh {
		workflow.Track(campaign.AssetsFromResult(result)...)
	}
	if cb.OnResultsUpdate != nil {
		cb.OnResultsUpdate(fresh)
	}
}

// handleProgress updates the session snapshot and forwards the event.
func (o *Orchestrator) handleProgress(progress campaign.Progress) {
	o.mu.Lock()
	if !o.connected {
		o.mu.Unlock()
		return
	}
	o.session.CurrentStage = progress.Stage
	o.session.Progress = progress.Percentage
	o.session.CompletedStages = append([]campaign.Stage(nil), progress.CompletedStages...)
	o.session.State = stateForStatus(progress.Status)
	cb := o.callbacks
	o.mu.Unlock()

	if cb.OnProgressUpdate != nil {
		cb.OnProgressUpdate(progress)
	}
}

func (o *Orchestrator) fail(err error) {
	if !o.isConnected() {
		return
	}
	cb := o.currentCallbacks()
	if cb.OnError != nil {
		cb.OnError(apierrors.Normalize(err))
	}
}

func stateForStatus(status string) campaign.SessionState {
	switch status {
	case "completed":
		return campaign.SessionCompleted
	case "error", "failed":
		return campaign.SessionFailed
	case "":
		return campaign.SessionInitializing
	default:
		return campaign.SessionRunning
	}
}

// resultsFromFrame extracts embedded stage results from a push frame, if
// the frame carries any.
func resultsFromFrame(data map[string]any) (map[campaign.Stage]campaign.StageResult, bool) {
	raw, ok := data["results"]
	if !ok {
		return nil, false
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, false
	}
	var payloads map[campaign.Stage]map[string]any
	if err := json.Unmarshal(encoded, &payloads); err != nil {
		return nil, false
	}
	results := make(map[campaign.Stage]campaign.StageResult, len(payloads))
	for stage, payload := range payloads {
		d, err := canonical.Digest(payload)
		if err != nil {
			continue
		}
		results[stage] = campaign.StageResult{
			Stage:      stage,
			ProducedAt: time.Now(),
			Payload:    payload,
			Digest:     d,
		}
	}
	return results, len(results) > 0
}

// progressFromFrame extracts a progress snapshot from a push frame.
func progressFromFrame(data map[string]any) (campaign.Progress, bool) {
	var progress campaign.Progress
	found := false
	if stage, ok := data["stage"].(string); ok {
		progress.Stage = campaign.Stage(stage)
		found = true
	}
	if pct, ok := data["percentage"].(float64); ok {
		progress.Percentage = int(pct)
		found = true
	} else if pct, ok := data["progress"].(float64); ok {
		progress.Percentage = int(pct)
		found = true
	}
	if status, ok := data["status"].(string); ok {
		progress.Status = status
	}
	if stages, ok := data["completed_stages"].([]any); ok {
		for _, s := range stages {
			if name, ok := s.(string); ok {
				progress.CompletedStages = append(progress.CompletedStages, campaign.Stage(name))
			}
		}
	}
	return progress, found
}

func (o *Orchestrator) isConnected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.connected
}

func (o *Orchestrator) currentCallbacks() Callbacks {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.callbacks
}

// Session returns a copy of the current session snapshot, or false when no
// session is active.
func (o *Orchestrator) Session() (campaign.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return campaign.Session{}, false
	}
	s := *o.session
	s.CompletedStages = append([]campaign.Stage(nil), s.CompletedStages...)
	return s, true
}

// Results returns the current stage results, one per stage.
func (o *Orchestrator) Results() map[campaign.Stage]campaign.StageResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[campaign.Stage]campaign.StageResult, len(o.results))
	for stage, result := range o.results {
		out[stage] = result
	}
	return out
}

// Workflow returns the session's approval workflow, or nil when no session
// is active.
func (o *Orchestrator) Workflow() *approval.Workflow {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.workflow
}

// CanProceed reports the approval gate for the next pipeline stage.
func (o *Orchestrator) CanProceed() (bool, []approval.Blocker) {
	w := o.Workflow()
	if w == nil {
		return false, nil
	}
	return w.CanProceed()
}

// SessionID reports the active session, or empty when disconnected.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return ""
	}
	return o.session.ID
}

// ChannelStatus reports both channels' states. Never fails.
func (o *Orchestrator) ChannelStatus() ChannelStatus {
	return ChannelStatus{
		Stream: o.stream.Status(),
		Poll:   o.poller.Status(),
	}
}

// RefreshData forces one immediate poll cycle. No-op without an active
// session.
func (o *Orchestrator) RefreshData() {
	if !o.isConnected() {
		return
	}
	o.poller.PollNow()
}

// Disconnect tears down both channels and clears all session state. Safe
// to call more than once.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	if !o.connected && o.session == nil {
		o.mu.Unlock()
		return
	}
	unsubscribe := o.unsubscribe
	o.connected = false
	o.session = nil
	o.results = nil
	o.seen = nil
	o.workflow = nil
	o.unsubscribe = nil
	o.callbacks = Callbacks{}
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	o.stream.Disconnect()
	o.poller.Stop()
}
