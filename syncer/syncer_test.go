package syncer

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
	"github.com/Isha1703/campaign-dashboard-sub001/canonical"
	"github.com/Isha1703/campaign-dashboard-sub001/internal/testutil"
	"github.com/Isha1703/campaign-dashboard-sub001/poll"
	"github.com/Isha1703/campaign-dashboard-sub001/stream"
)

// mockStream drives the push seam by hand.
type mockStream struct {
	mu          sync.Mutex
	handlers    map[int]stream.Handler
	next        int
	connectErr  error
	status      stream.Status
	disconnects int
}

func newMockStream() *mockStream {
	return &mockStream{handlers: map[int]stream.Handler{}, status: stream.StatusDisconnected}
}

func (m *mockStream) Connect(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.status = stream.StatusConnected
	return nil
}

func (m *mockStream) SubscribeAll(fn stream.Handler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next
	m.next++
	m.handlers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
	}
}

func (m *mockStream) emit(frame stream.Frame) {
	m.mu.Lock()
	handlers := make([]stream.Handler, 0, len(m.handlers))
	for _, fn := range m.handlers {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()
	for _, fn := range handlers {
		fn(frame)
	}
}

func (m *mockStream) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.status = stream.StatusDisconnected
}

func (m *mockStream) Status() stream.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// mockPoll records lifecycle calls and exposes the registered callbacks.
type mockPoll struct {
	mu       sync.Mutex
	cb       poll.Callbacks
	status   poll.Status
	starts   int
	stops    int
	pollNows int
}

func newMockPoll() *mockPoll {
	return &mockPoll{status: poll.StatusStopped}
}

func (m *mockPoll) Start(_ context.Context, _ string, cb poll.Callbacks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
	m.starts++
	m.status = poll.StatusPolling
	return nil
}

func (m *mockPoll) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.status = poll.StatusStopped
}

func (m *mockPoll) PollNow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollNows++
}

func (m *mockPoll) Status() poll.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockPoll) callbacks() poll.Callbacks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cb
}

func newTestOrchestrator(s StreamChannel, p PollChannel) *Orchestrator {
	return New(nil,
		WithLogger(testutil.DiscardLogger()),
		WithStreamChannel(s),
		WithPollChannel(p),
	)
}

func stageResult(stage campaign.Stage, payload map[string]any) campaign.StageResult {
	d, _ := canonical.Digest(payload)
	return campaign.StageResult{Stage: stage, Payload: payload, Digest: d}
}

func TestConnect_StreamFailureFallsBackToPolling(t *testing.T) {
	s := newMockStream()
	s.connectErr = apierrors.Newf("streamConnect", apierrors.ClassStream, "refused")
	p := newMockPoll()
	o := newTestOrchestrator(s, p)

	require.NoError(t, o.ConnectToSession(context.Background(), "session_1", Callbacks{}))
	t.Cleanup(o.Disconnect)

	assert.Equal(t, 1, p.starts)
	status := o.ChannelStatus()
	assert.Equal(t, stream.StatusDisconnected, status.Stream)
	assert.Equal(t, poll.StatusPolling, status.Poll)
	assert.Equal(t, "session_1", o.SessionID())
}

func TestConnect_WhileConnected(t *testing.T) {
	o := newTestOrchestrator(newMockStream(), newMockPoll())
	require.NoError(t, o.ConnectToSession(context.Background(), "session_1", Callbacks{}))
	t.Cleanup(o.Disconnect)

	err := o.ConnectToSession(context.Background(), "session_2", Callbacks{})
	require.Error(t, err)
	assert.Equal(t, apierrors.ClassWorkflow, apierrors.ClassOf(err))
	assert.Equal(t, "session_1", o.SessionID())
}

func TestResults_DedupedAcrossChannels(t *testing.T) {
	s := newMockStream()
	p := newMockPoll()
	o := newTestOrchestrator(s, p)

	var mu sync.Mutex
	var updates []map[campaign.Stage]campaign.StageResult
	require.NoError(t, o.ConnectToSession(context.Background(), "session_1", Callbacks{
		OnResultsUpdate: func(r map[campaign.Stage]campaign.StageResult) {
			mu.Lock()
			defer mu.Unlock()
			updates = append(updates, r)
		},
	}))
	t.Cleanup(o.Disconnect)

	payload := map[string]any{"segments": []any{"urban professionals"}}
	p.callbacks().OnResults(map[campaign.Stage]campaign.StageResult{
		campaign.StageAudienceAnalysis: stageResult(campaign.StageAudienceAnalysis, payload),
	})
	require.Len(t, updates, 1)

	// The same logical update arriving over the push channel is dropped.
	s.emit(stream.Frame{
		Kind: stream.KindProgressUpdate,
		Data: map[string]any{
			"results": map[string]any{"audience_analysis": payload},
		},
	})
	assert.Len(t, updates, 1)

	// A changed payload goes through.
	changed := map[string]any{"segments": []any{"urban professionals", "students"}}
	p.callbacks().OnResults(map[campaign.Stage]campaign.StageResult{
		campaign.StageAudienceAnalysis: stageResult(campaign.StageAudienceAnalysis, changed),
	})
	require.Len(t, updates, 2)

	current := o.Results()
	assert.Equal(t, changed, current[campaign.StageAudienceAnalysis].Payload)
}

func TestProgress_UpdatesSessionSnapshot(t *testing.T) {
	p := newMockPoll()
	o := newTestOrchestrator(newMockStream(), p)

	var got campaign.Progress
	require.NoError(t, o.ConnectToSession(context.Background(), "session_1", Callbacks{
		OnProgressUpdate: func(progress campaign.Progress) { got = progress },
	}))
	t.Cleanup(o.Disconnect)

	session, ok := o.Session()
	require.True(t, ok)
	assert.Equal(t, campaign.SessionInitializing, session.State)

	p.callbacks().OnProgress(campaign.Progress{
		Stage:           campaign.StageBudgetAllocation,
		Percentage:      50,
		CompletedStages: []campaign.Stage{campaign.StageAudienceAnalysis},
		Status:          "running",
	})

	assert.Equal(t, 50, got.Percentage)
	session, _ = o.Session()
	assert.Equal(t, campaign.StageBudgetAllocation, session.CurrentStage)
	assert.Equal(t, 50, session.Progress)
	assert.Equal(t, campaign.SessionRunning, session.State)
	assert.Equal(t, []campaign.Stage{campaign.StageAudienceAnalysis}, session.CompletedStages)

	p.callbacks().OnProgress(campaign.Progress{
		Stage:      campaign.StageContentGeneration,
		Percentage: 100,
		Status:     "completed",
	})
	session, _ = o.Session()
	assert.Equal(t, campaign.SessionCompleted, session.State)
}

func TestStreamFrames_ForwardOutputAndProgress(t *testing.T) {
	s := newMockStream()
	o := newTestOrchestrator(s, newMockPoll())

	var lines []string
	var progress []campaign.Progress
	require.NoError(t, o.ConnectToSession(context.Background(), "session_1", Callbacks{
		OnAgentOutput:    func(line string) { lines = append(lines, line) },
		OnProgressUpdate: func(p campaign.Progress) { progress = append(progress, p) },
	}))
	t.Cleanup(o.Disconnect)

	s.emit(stream.Frame{
		Kind: stream.KindAgentOutput,
		Data: map[string]any{"content": "AudienceAgent: analyzing demographics"},
	})
	s.emit(stream.Frame{Kind: stream.KindAgentOutput, Raw: "plain log line"})
	s.emit(stream.Frame{
		Kind: stream.KindProgressUpdate,
		Data: map[string]any{"stage": "prompt_strategy", "percentage": float64(75), "status": "running"},
	})

	assert.Equal(t, []string{"AudienceAgent: analyzing demographics", "plain log line"}, lines)
	require.Len(t, progress, 1)
	assert.Equal(t, campaign.StagePromptStrategy, progress[0].Stage)
	assert.Equal(t, 75, progress[0].Percentage)
}

func TestStreamError_Normalized(t *testing.T) {
	s := newMockStream()
	o := newTestOrchestrator(s, newMockPoll())

	var failures []apierrors.Normalized
	require.NoError(t, o.ConnectToSession(context.Background(), "session_1", Callbacks{
		OnError: func(n apierrors.Normalized) { failures = append(failures, n) },
	}))
	t.Cleanup(o.Disconnect)

	s.emit(stream.Frame{
		Kind: stream.KindError,
		Data: map[string]any{"error": "gave up after 10 reconnect attempts"},
	})

	require.Len(t, failures, 1)
	assert.Equal(t, apierrors.ClassStream, failures[0].Code)
	assert.Contains(t, failures[0].Message, "reconnect attempts")
}

func TestResults_TrackAssetsForGating(t *testing.T) {
	p := newMockPoll()
	o := newTestOrchestrator(newMockStream(), p)
	require.NoError(t, o.ConnectToSession(context.Background(), "session_1", Callbacks{}))
	t.Cleanup(o.Disconnect)

	// No assets yet: the gate stays shut with nothing to name.
	ok, blockers := o.CanProceed()
	assert.False(t, ok)
	assert.Empty(t, blockers)

	p.callbacks().OnResults(map[campaign.Stage]campaign.StageResult{
		campaign.StageContentGeneration: stageResult(campaign.StageContentGeneration, map[string]any{
			"ads": []any{
				map[string]any{"asset_id": "ad_1", "ad_type": "text_ad", "content": "Buy our coffee"},
				map[string]any{"asset_id": "ad_2", "ad_type": "image_ad", "content": "s3://campaign-assets/ad_2.png"},
			},
		}),
	})

	ok, blockers = o.CanProceed()
	assert.False(t, ok)
	assert.Len(t, blockers, 2)

	require.NoError(t, o.Workflow().Approve("ad_1"))
	ok, blockers = o.CanProceed()
	assert.False(t, ok)
	require.Len(t, blockers, 1)
	assert.Equal(t, "ad_2", blockers[0].AssetID)

	require.NoError(t, o.Workflow().Approve("ad_2"))
	ok, _ = o.CanProceed()
	assert.True(t, ok)
}

func TestRefreshData(t *testing.T) {
	p := newMockPoll()
	o := newTestOrchestrator(newMockStream(), p)

	// Without a session it is a no-op.
	o.RefreshData()
	assert.Equal(t, 0, p.pollNows)

	require.NoError(t, o.ConnectToSession(context.Background(), "session_1", Callbacks{}))
	o.RefreshData()
	assert.Equal(t, 1, p.pollNows)

	o.Disconnect()
	o.RefreshData()
	assert.Equal(t, 1, p.pollNows)
}

func TestDisconnect_TearsDownBothChannels(t *testing.T) {
	s := newMockStream()
	p := newMockPoll()
	o := newTestOrchestrator(s, p)

	var updates int
	require.NoError(t, o.ConnectToSession(context.Background(), "session_1", Callbacks{
		OnResultsUpdate: func(map[campaign.Stage]campaign.StageResult) { updates++ },
	}))
	cb := p.callbacks()

	o.Disconnect()
	o.Disconnect()

	assert.Equal(t, 1, s.disconnects)
	assert.Equal(t, 1, p.stops)
	assert.Empty(t, o.SessionID())
	_, ok := o.Session()
	assert.False(t, ok)
	assert.Nil(t, o.Workflow())

	// A late poll result from the in-flight cycle is discarded.
	cb.OnResults(map[campaign.Stage]campaign.StageResult{
		campaign.StageAudienceAnalysis: stageResult(campaign.StageAudienceAnalysis, map[string]any{"late": true}),
	})
	assert.Zero(t, updates)
}
