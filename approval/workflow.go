// Package approval tracks generated assets through a per-asset approval
// state machine and computes the aggregate gate that blocks the pipeline's
// next stage until every asset is approved.
package approval

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/backend"
	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
)

// RevisionDispatcher sends a revision request to the pipeline and returns
// the revised content, if any. *backend.Client is adapted via Dispatcher.
type RevisionDispatcher interface {
	Dispatch(ctx context.Context, req backend.RevisionRequest) (*backend.RevisionResponse, error)
}

// Dispatcher adapts the API client to the RevisionDispatcher seam.
type Dispatcher struct {
	Client *backend.Client
}

// Dispatch forwards the request to the advanced revision endpoint.
func (d Dispatcher) Dispatch(ctx context.Context, req backend.RevisionRequest) (*backend.RevisionResponse, error) {
	return d.Client.AdvancedRevision(ctx, req)
}

// Blocker names one asset that is holding the gate shut.
type Blocker struct {
	AssetID string
	Status  campaign.ApprovalStatus
}

// Config holds workflow settings.
type Config struct {
	Scorer   Scorer
	TieBreak string
	Logger   *slog.Logger
	newID    func() string
	now      func() time.Time
}

// Option configures the workflow.
type Option func(*Config)

// WithScorer replaces the revision category scorer.
func WithScorer(s Scorer) Option {
	return func(c *Config) { c.Scorer = s }
}

// WithTieBreak sets the category used when keyword scoring ties.
func WithTieBreak(category string) Option {
	return func(c *Config) { c.TieBreak = category }
}

// WithLogger sets the workflow logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Workflow owns the approval records for one session. Safe for concurrent
// use.
type Workflow struct {
	dispatcher RevisionDispatcher
	sessionID  string
	scorer     Scorer
	logger     *slog.Logger
	newID      func() string
	now        func() time.Time

	mu      sync.Mutex
	assets  map[string]campaign.Asset
	records map[string]*campaign.ApprovalRecord

	// superseded maps a revised asset to its replacement; superseded
	// assets no longer count toward the gate.
	superseded map[string]string

	// order preserves first-seen order for deterministic blocker lists.
	order []string
}

// NewWorkflow creates an empty workflow for the session.
func NewWorkflow(sessionID string, dispatcher RevisionDispatcher, opts ...Option) *Workflow {
	cfg := Config{
		TieBreak: CategoryContent,
		Logger:   slog.Default(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Scorer == nil {
		cfg.Scorer = NewKeywordScorer(cfg.TieBreak)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Workflow{
		dispatcher: dispatcher,
		sessionID:  sessionID,
		scorer:     cfg.Scorer,
		logger:     cfg.Logger,
		newID:      cfg.newID,
		now:        cfg.now,
		assets:     make(map[string]campaign.Asset),
		records:    make(map[string]*campaign.ApprovalRecord),
		superseded: make(map[string]string),
	}
}

// Track registers an asset, creating its pending record the first time it
// is seen. Tracking an already known asset is a no-op.
func (w *Workflow) Track(assets ...campaign.Asset) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, asset := range assets {
		w.trackLocked(asset)
	}
}

func (w *Workflow) trackLocked(asset campaign.Asset) {
	if _, ok := w.records[asset.ID]; ok {
		return
	}
	w.assets[asset.ID] = asset
	w.records[asset.ID] = &campaign.ApprovalRecord{
		AssetID: asset.ID,
		Status:  campaign.ApprovalPending,
	}
	w.order = append(w.order, asset.ID)
}

// Record returns a copy of the asset's approval record.
func (w *Workflow) Record(assetID string) (campaign.ApprovalRecord, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.records[assetID]
	if !ok {
		return campaign.ApprovalRecord{}, false
	}
	return *rec, true
}

// Approve marks the asset approved. The asset must currently be pending or
// revision_requested; approving an already approved asset is a failed
// no-op, and unknown assets are a workflow error.
func (w *Workflow) Approve(assetID string) error {
	const op = "approve"

	w.mu.Lock()
	defer w.mu.Unlock()
	rec, ok := w.records[assetID]
	if !ok {
		return apierrors.Newf(op, apierrors.ClassWorkflow, "unknown asset %q", assetID)
	}
	switch rec.Status {
	case campaign.ApprovalPending, campaign.ApprovalRevisionRequested:
		rec.Status = campaign.ApprovalApproved
		return nil
	case campaign.ApprovalApproved:
		return apierrors.Newf(op, apierrors.ClassWorkflow,
			"asset %q is already approved", assetID)
	default:
		return apierrors.Newf(op, apierrors.ClassWorkflow,
			"asset %q cannot be approved while %s", assetID, rec.Status)
	}
}

// RequestRevision sends the feedback to the revision pipeline and, on
// completion, creates the superseding asset. The new asset re-enters the
// machine at pending; the original drops out of the gate and its record's
// final history entry links to the replacement. The asset must be pending
// or revision_requested, the latter so a failed dispatch can be retried.
func (w *Workflow) RequestRevision(ctx context.Context, assetID, feedback string) (campaign.Asset, error) {
	const op = "requestRevision"

	if strings.TrimSpace(feedback) == "" {
		return campaign.Asset{}, apierrors.Newf(op, apierrors.ClassValidation,
			"revision feedback cannot be empty")
	}

	w.mu.Lock()
	rec, ok := w.records[assetID]
	if !ok {
		w.mu.Unlock()
		return campaign.Asset{}, apierrors.Newf(op, apierrors.ClassWorkflow,
			"unknown asset %q", assetID)
	}
	// revision_requested is re-enterable so a revision whose dispatch
	// failed can be retried.
	if rec.Status != campaign.ApprovalPending &&
		rec.Status != campaign.ApprovalRevisionRequested {
		status := rec.Status
		w.mu.Unlock()
		return campaign.Asset{}, apierrors.Newf(op, apierrors.ClassWorkflow,
			"asset %q cannot be revised while %s", assetID, status)
	}
	category := w.scorer.Score(feedback)
	rec.Status = campaign.ApprovalRevisionRequested
	rec.Feedback = feedback
	predecessor := w.assets[assetID]
	w.mu.Unlock()

	w.logger.Info("dispatching revision",
		"asset", assetID, "category", category)

	w.setStatus(assetID, campaign.ApprovalRevising)
	resp, err := w.dispatcher.Dispatch(ctx, backend.RevisionRequest{
		SessionID:    w.sessionID,
		AssetID:      assetID,
		Feedback:     feedback,
		RevisionType: category,
	})
	if err != nil {
		w.setStatus(assetID, campaign.ApprovalRevisionRequested)
		return campaign.Asset{}, err
	}

	revised := w.supersede(predecessor, resp, feedback, category)
	return revised, nil
}

// supersede creates the replacement asset, registers it pending, and
// appends the history entry on the predecessor's record.
func (w *Workflow) supersede(
	predecessor campaign.Asset,
	resp *backend.RevisionResponse,
	feedback, category string,
) campaign.Asset {
	revised := campaign.Asset{
		ID:            w.newID(),
		Stage:         predecessor.Stage,
		Kind:          predecessor.Kind,
		Content:       predecessor.Content,
		Reference:     predecessor.Reference,
		PredecessorID: predecessor.ID,
	}
	if content, ok := resp.RevisionResult["revised_content"].(string); ok && content != "" {
		if strings.HasPrefix(content, "s3://") || strings.HasPrefix(content, "https://") {
			revised.Kind = campaign.AssetRemote
			revised.Reference = content
			revised.Content = ""
		} else {
			revised.Kind = campaign.AssetInline
			revised.Content = content
			revised.Reference = ""
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.trackLocked(revised)
	w.superseded[predecessor.ID] = revised.ID
	if rec, ok := w.records[predecessor.ID]; ok {
		rec.History = append(rec.History, campaign.RevisionHistoryEntry{
			Timestamp: w.now(),
			Feedback:  feedback,
			Category:  category,
			AssetID:   revised.ID,
		})
	}
	return revised
}

func (w *Workflow) setStatus(assetID string, status campaign.ApprovalStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.records[assetID]; ok {
		rec.Status = status
	}
}

// CanProceed reports whether every tracked asset's current lineage is
// approved. The gate stays shut while no assets are tracked at all.
func (w *Workflow) CanProceed() (bool, []Blocker) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var blockers []Blocker
	counted := 0
	for _, id := range w.order {
		if _, gone := w.superseded[id]; gone {
			continue
		}
		counted++
		rec := w.records[id]
		if rec.Status != campaign.ApprovalApproved {
			blockers = append(blockers, Blocker{AssetID: id, Status: rec.Status})
		}
	}
	if counted == 0 {
		return false, nil
	}
	return len(blockers) == 0, blockers
}

// CanProceedFor evaluates the gate for an explicit asset list and approval
// map, independent of the workflow's own tracking state.
func CanProceedFor(assets []campaign.Asset, records map[string]campaign.ApprovalRecord) (bool, []Blocker) {
	if len(assets) == 0 {
		return false, nil
	}
	var blockers []Blocker
	for _, asset := range assets {
		rec, ok := records[asset.ID]
		if !ok {
			blockers = append(blockers, Blocker{AssetID: asset.ID, Status: campaign.ApprovalPending})
			continue
		}
		if rec.Status != campaign.ApprovalApproved {
			blockers = append(blockers, Blocker{AssetID: asset.ID, Status: rec.Status})
		}
	}
	return len(blockers) == 0, blockers
}
