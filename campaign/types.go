// Package campaign defines the data model shared by the synchronization
// engine: sessions, pipeline stage results, generated assets, and the
// approval records that gate stage progression.
package campaign

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// Stage names one step of the backend pipeline. The pipeline runs four
// agents in order, each producing a named JSON result.
type Stage string

const (
	StageAudienceAnalysis  Stage = "audience_analysis"
	StageBudgetAllocation  Stage = "budget_allocation"
	StagePromptStrategy    Stage = "prompt_strategy"
	StageContentGeneration Stage = "content_generation"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageAudienceAnalysis,
		StageBudgetAllocation,
		StagePromptStrategy,
		StageContentGeneration,
	}
}

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	SessionInitializing SessionState = "initializing"
	SessionRunning      SessionState = "running"
	SessionCompleted    SessionState = "completed"
	SessionFailed       SessionState = "failed"
)

// Session is the client-side view of one pipeline run. It is owned by the
// orchestrator and mutated only by channel event handlers.
type Session struct {
	ID              string       `json:"session_id"`
	CreatedAt       time.Time    `json:"created_at"`
	CompletedStages []Stage      `json:"completed_stages"`
	CurrentStage    Stage        `json:"current_stage"`
	Progress        int          `json:"progress"`
	State           SessionState `json:"state"`
}

// StageResult is one stage's output. Immutable once created; a newer result
// for the same stage supersedes rather than mutates it.
type StageResult struct {
	Stage      Stage          `json:"stage"`
	ProducedAt time.Time      `json:"produced_at"`
	Payload    map[string]any `json:"payload"`

	// Digest is the content digest of the canonical payload, used for
	// change detection and cross-channel dedup.
	Digest digest.Digest `json:"digest"`
}

// AssetKind distinguishes inline content from remote binary references.
type AssetKind string

const (
	// AssetInline carries its content directly (ad copy, text).
	AssetInline AssetKind = "inline"

	// AssetRemote points at a binary object in the content store.
	AssetRemote AssetKind = "remote"
)

// Asset is a unit of generated content produced by a stage. Assets are never
// mutated; a revision produces a new Asset that supersedes its predecessor.
type Asset struct {
	ID    string    `json:"asset_id"`
	Stage Stage     `json:"stage"`
	Kind  AssetKind `json:"kind"`

	// Content is the inline text for AssetInline assets.
	Content string `json:"content,omitempty"`

	// Reference is the content-store address for AssetRemote assets,
	// e.g. "s3://bucket/key.png".
	Reference string `json:"reference,omitempty"`

	// PredecessorID links a revised asset back to the asset it supersedes.
	PredecessorID string `json:"predecessor_id,omitempty"`
}

// ApprovalStatus is the per-asset approval state.
type ApprovalStatus string

const (
	ApprovalPending           ApprovalStatus = "pending"
	ApprovalApproved          ApprovalStatus = "approved"
	ApprovalRevisionRequested ApprovalStatus = "revision_requested"
	ApprovalRevising          ApprovalStatus = "revising"
)

// RevisionHistoryEntry records one completed revision round. Append-only.
type RevisionHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Feedback  string    `json:"feedback"`
	Category  string    `json:"category"`
	AssetID   string    `json:"asset_id"`
}

// ApprovalRecord tracks one asset through the approval workflow. Records
// are created pending the moment an asset first appears and are never
// deleted within a session.
type ApprovalRecord struct {
	AssetID  string                 `json:"asset_id"`
	Status   ApprovalStatus         `json:"status"`
	Feedback string                 `json:"feedback,omitempty"`
	History  []RevisionHistoryEntry `json:"revision_history,omitempty"`
}

// Progress is the session progress snapshot reported by the backend.
type Progress struct {
	Stage           Stage   `json:"stage"`
	Percentage      int     `json:"percentage"`
	CompletedStages []Stage `json:"completed_stages"`
	Status          string  `json:"status"`
}

// OutputLine is one textual log line emitted by the pipeline.
type OutputLine struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}
