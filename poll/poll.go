// Package poll is the pull-based fallback for session updates. It
// periodically fetches stage results and progress, hashes each canonically,
// and fires callbacks only when the content actually changed.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
	"github.com/Isha1703/campaign-dashboard-sub001/canonical"
)

// Status describes the loop's state.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusPolling Status = "polling"
	StatusError   Status = "error"
)

// Backend is the slice of the API client the poller needs. *backend.Client
// satisfies it.
type Backend interface {
	Results(ctx context.Context, sessionID string) (map[campaign.Stage]campaign.StageResult, error)
	Progress(ctx context.Context, sessionID string) (campaign.Progress, error)
}

// Callbacks receive poll outcomes. OnResults and OnProgress fire only when
// the fetched content differs from the previous cycle. OnError fires once,
// when consecutive failures exhaust the retry budget.
type Callbacks struct {
	OnResults  func(map[campaign.Stage]campaign.StageResult)
	OnProgress func(campaign.Progress)
	OnError    func(error)
}

// Config holds poll loop settings.
type Config struct {
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
	MaxRetries  int
	Logger      *slog.Logger
}

// Option configures the channel.
type Option func(*Config)

// WithInterval sets the baseline delay between cycles.
func WithInterval(d time.Duration) Option {
	return func(c *Config) { c.Interval = d }
}

// WithMultiplier sets the backoff growth applied per consecutive failure.
func WithMultiplier(m float64) Option {
	return func(c *Config) { c.Multiplier = m }
}

// WithMaxInterval caps the backed-off delay.
func WithMaxInterval(d time.Duration) Option {
	return func(c *Config) { c.MaxInterval = d }
}

// WithMaxRetries sets how many consecutive failures stop the loop.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithLogger sets the poller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// Channel polls one session. Each cycle schedules the next only after its
// own callbacks have fired, so cycles never overlap.
type Channel struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	mu           sync.Mutex
	status       Status
	sessionID    string
	callbacks    Callbacks
	retries      int
	lastResults  digest.Digest
	lastProgress digest.Digest
	stop         chan struct{}
	kick         chan struct{}
}

// NewChannel creates a stopped poller over the given backend.
func NewChannel(backend Backend, opts ...Option) *Channel {
	cfg := Config{
		Interval:    3 * time.Second,
		Multiplier:  2,
		MaxInterval: 30 * time.Second,
		MaxRetries:  5,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Channel{
		backend: backend,
		cfg:     cfg,
		logger:  cfg.Logger,
		status:  StatusStopped,
	}
}

// Start begins polling the session. The first cycle runs immediately.
func (p *Channel) Start(ctx context.Context, sessionID string, cb Callbacks) error {
	const op = "pollStart"

	p.mu.Lock()
	if p.status == StatusPolling {
		p.mu.Unlock()
		return apierrors.Newf(op, apierrors.ClassWorkflow, "poller is already running")
	}
	p.status = StatusPolling
	p.sessionID = sessionID
	p.callbacks = cb
	p.retries = 0
	p.lastResults = ""
	p.lastProgress = ""
	p.stop = make(chan struct{})
	p.kick = make(chan struct{}, 1)
	stop, kick := p.stop, p.kick
	p.mu.Unlock()

	go p.loop(ctx, sessionID, stop, kick)
	return nil
}

func (p *Channel) loop(ctx context.Context, sessionID string, stop, kick chan struct{}) {
	for {
		if !p.cycle(ctx, sessionID, stop) {
			return
		}
		select {
		case <-time.After(p.interval()):
		case <-kick:
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cycle fetches results and progress concurrently and fires callbacks for
// whatever changed. It returns false when the loop should stop.
func (p *Channel) cycle(ctx context.Context, sessionID string, stop chan struct{}) bool {
	var (
		results  map[campaign.Stage]campaign.StageResult
		progress campaign.Progress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		results, err = p.backend.Results(gctx, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		progress, err = p.backend.Progress(gctx, sessionID)
		return err
	})
	err := g.Wait()

	// A stop that raced the fetch wins; its results are discarded.
	select {
	case <-stop:
		return false
	default:
	}

	if err != nil {
		return p.recordFailure(err)
	}
	p.recordSuccess(results, progress)
	return true
}

func (p *Channel) recordFailure(err error) bool {
	p.mu.Lock()
	p.retries++
	retries := p.retries
	exhausted := retries >= p.cfg.MaxRetries
	var onError func(error)
	if exhausted {
		p.status = StatusError
		onError = p.callbacks.OnError
	}
	p.mu.Unlock()

	if !exhausted {
		p.logger.Warn("poll cycle failed",
			"retries", retries, "max", p.cfg.MaxRetries, "error", err)
		return true
	}
	p.logger.Error("polling stopped after repeated failures", "error", err)
	if onError != nil {
		onError(err)
	}
	return false
}

func (p *Channel) recordSuccess(
	results map[campaign.Stage]campaign.StageResult,
	progress campaign.Progress,
) {
	resultsDigest, err := canonical.Digest(results)
	if err != nil {
		resultsDigest = ""
	}
	progressDigest, err := canonical.Digest(progress)
	if err != nil {
		progressDigest = ""
	}

	p.mu.Lock()
	p.retries = 0
	resultsChanged := resultsDigest != p.lastResults
	progressChanged := progressDigest != p.lastProgress
	p.lastResults = resultsDigest
	p.lastProgress = progressDigest
	cb := p.callbacks
	p.mu.Unlock()

	if resultsChanged && cb.OnResults != nil {
		cb.OnResults(results)
	}
	if progressChanged && cb.OnProgress != nil {
		cb.OnProgress(progress)
	}
}

// interval returns the delay before the next cycle, backed off by the
// consecutive failure count.
func (p *Channel) interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.cfg.Interval
	for range p.retries {
		d = time.Duration(float64(d) * p.cfg.Multiplier)
		if d >= p.cfg.MaxInterval {
			return p.cfg.MaxInterval
		}
	}
	return d
}

// PollNow forces an immediate out-of-band cycle. It does nothing when the
// loop is not running.
func (p *Channel) PollNow() {
	p.mu.Lock()
	kick := p.kick
	running := p.status == StatusPolling
	p.mu.Unlock()
	if !running || kick == nil {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

// Status reports the loop state.
func (p *Channel) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Stop halts the loop and clears all change-detection state. Safe to call
// more than once.
func (p *Channel) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
		p.kick = nil
	}
	p.status = StatusStopped
	p.retries = 0
	p.lastResults = ""
	p.lastProgress = ""
}
