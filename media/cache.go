package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/opencontainers/go-digest"

	"github.com/Isha1703/campaign-dashboard-sub001/apierrors"
	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
	"github.com/Isha1703/campaign-dashboard-sub001/retry"
)

// Handle is a resolved, displayable piece of content. URL is always set;
// LocalPath is set additionally when the bytes were staged locally.
type Handle struct {
	Reference   string
	Category    Category
	URL         string
	LocalPath   string
	ContentType string
	ResolvedAt  time.Time
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Coalesced uint64
	Evictions uint64
}

type entry struct {
	handle   *Handle
	storedAt time.Time
	lastUsed time.Time
}

// inflight tracks a resolution in progress so that concurrent callers for
// the same reference share one fetch instead of racing.
type inflight struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// Config holds cache settings. Use the With* options to change them.
type Config struct {
	TTL             time.Duration
	Capacity        int
	MediaDir        string
	CleanupInterval time.Duration
	FetchTimeout    time.Duration
	Store           billy.Filesystem
	Retry           []retry.Option
	Logger          *slog.Logger
}

// Option configures the cache.
type Option func(*Config)

// WithTTL sets how long a resolved handle stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) { c.TTL = ttl }
}

// WithCapacity sets the maximum number of memoized handles. The least
// recently used entry is evicted when the cache grows past it.
func WithCapacity(n int) Option {
	return func(c *Config) { c.Capacity = n }
}

// WithStore sets the filesystem that staged bytes are written to.
func WithStore(fs billy.Filesystem) Option {
	return func(c *Config) { c.Store = fs }
}

// WithMediaDir sets the staging directory inside the store.
func WithMediaDir(dir string) Option {
	return func(c *Config) { c.MediaDir = dir }
}

// WithRetryOptions overrides the fetch retry policy.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(c *Config) { c.Retry = opts }
}

// WithLogger sets the cache logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Config) { c.CleanupInterval = d }
}

// WithFetchTimeout bounds a single shared fetch, retries included. The
// fetch runs detached from the caller that started it, so this is the only
// limit once callers give up.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Config) { c.FetchTimeout = d }
}

// Cache memoizes resolved content handles. It is safe for concurrent use.
type Cache struct {
	fetcher Fetcher
	cfg     Config
	logger  *slog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]*inflight
	stats    Stats
	closed   bool

	cleanupTicker *time.Ticker
	cleanupDone   chan struct{}
}

// NewCache creates a cache over the given fetcher and starts the background
// sweep of expired entries.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	cfg := Config{
		TTL:             30 * time.Minute,
		Capacity:        256,
		MediaDir:        "media",
		CleanupInterval: 5 * time.Minute,
		FetchTimeout:    2 * time.Minute,
		Store:           memfs.New(),
		Retry: []retry.Option{
			retry.WithMaxAttempts(4),
			retry.WithBaseDelay(2 * time.Second),
		},
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Cache{
		fetcher:     fetcher,
		cfg:         cfg,
		logger:      cfg.Logger,
		entries:     make(map[string]*entry),
		inflight:    make(map[string]*inflight),
		cleanupDone: make(chan struct{}),
	}
	c.cleanupTicker = time.NewTicker(cfg.CleanupInterval)
	go c.sweep()
	return c
}

// Resolve turns a content-store reference into a displayable handle. The
// reference is validated before any network work, results are memoized for
// the configured TTL, and concurrent calls for the same reference share a
// single fetch.
func (c *Cache) Resolve(ctx context.Context, raw string) (*Handle, error) {
	const op = "resolve"

	ref, err := ParseReference(raw)
	if err != nil {
		return nil, err
	}
	key := ref.String()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, apierrors.Newf(op, apierrors.ClassValidation, "cache is closed")
	}
	if e, ok := c.entries[key]; ok {
		if time.Since(e.storedAt) < c.cfg.TTL {
			e.lastUsed = time.Now()
			c.stats.Hits++
			h := *e.handle
			c.mu.Unlock()
			return &h, nil
		}
		delete(c.entries, key)
	}
	if inf, ok := c.inflight[key]; ok {
		c.stats.Coalesced++
		c.mu.Unlock()
		return c.await(ctx, op, key, inf)
	}
	inf := &inflight{done: make(chan struct{})}
	c.inflight[key] = inf
	c.stats.Misses++
	c.mu.Unlock()

	// The fetch is detached from the initiating caller so its cancellation
	// does not fail every coalesced waiter; FetchTimeout is the bound.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
	go func() {
		defer cancel()
		c.settle(fetchCtx, key, ref, inf)
	}()

	return c.await(ctx, op, key, inf)
}

// await blocks until the shared fetch settles or the caller's own context
// ends. Each caller gets its own copy of the handle.
func (c *Cache) await(ctx context.Context, op, key string, inf *inflight) (*Handle, error) {
	select {
	case <-inf.done:
		if inf.err != nil {
			return nil, inf.err
		}
		h := *inf.handle
		return &h, nil
	case <-ctx.Done():
		class := apierrors.ClassUnknown
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			class = apierrors.ClassTimeout
		}
		return nil, apierrors.New(op, class, ctx.Err()).WithDetail(key)
	}
}

// settle runs the fetch, publishes the outcome to every waiter, and
// memoizes successes. The inflight slot is removed in the same critical
// section that closes done.
func (c *Cache) settle(ctx context.Context, key string, ref Reference, inf *inflight) {
	handle, err := c.fetch(ctx, ref)

	c.mu.Lock()
	delete(c.inflight, key)
	inf.handle, inf.err = handle, err
	close(inf.done)
	if err == nil && !c.closed {
		c.entries[key] = &entry{handle: handle, storedAt: time.Now(), lastUsed: time.Now()}
		c.evictLocked()
	}
	c.mu.Unlock()
}

// ResolveAsset resolves a campaign asset. Inline assets carry their content
// directly and produce a text handle without touching the network.
func (c *Cache) ResolveAsset(ctx context.Context, asset campaign.Asset) (*Handle, error) {
	if asset.Kind == campaign.AssetInline {
		return &Handle{
			Reference:  asset.ID,
			Category:   CategoryText,
			URL:        "",
			ResolvedAt: time.Now(),
		}, nil
	}
	return c.Resolve(ctx, asset.Reference)
}

func (c *Cache) fetch(ctx context.Context, ref Reference) (*Handle, error) {
	result, err := retry.DoValue(ctx, func(ctx context.Context) (*FetchResult, error) {
		return c.fetcher.Fetch(ctx, ref)
	}, c.cfg.Retry...)
	if err != nil {
		c.logger.Warn("content fetch failed", "reference", ref.String(), "error", err)
		return nil, err
	}

	handle := &Handle{
		Reference:   ref.String(),
		Category:    categoryForKey(ref.Key),
		URL:         result.URL,
		ContentType: result.ContentType,
		ResolvedAt:  time.Now(),
	}
	if len(result.Data) > 0 {
		if handle.Category == "" {
			handle.Category = categoryForData(result.Data)
		}
		localPath, err := c.stage(ref, result.Data)
		if err != nil {
			return nil, err
		}
		handle.LocalPath = localPath
		if handle.URL == "" {
			handle.URL = localPath
		}
	}
	if handle.Category == "" {
		// URL-only results come from the backend mirror, which only
		// serves binary media.
		handle.Category = CategoryImage
	}
	return handle, nil
}

// stage writes fetched bytes into the store under a name derived from the
// reference digest, keeping the original extension for display purposes.
func (c *Cache) stage(ref Reference, data []byte) (string, error) {
	const op = "stage"

	name := digest.FromString(ref.String()).Encoded()[:16] + path.Ext(ref.Key)
	localPath := path.Join(c.cfg.MediaDir, name)
	if err := util.WriteFile(c.cfg.Store, localPath, data, 0o644); err != nil {
		return "", apierrors.New(op, apierrors.ClassUnknown, err).
			WithMessage(fmt.Sprintf("failed to stage %s", ref))
	}
	return localPath, nil
}

// evictLocked removes least recently used entries until the cache fits its
// capacity. Caller holds c.mu.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.cfg.Capacity {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.lastUsed.Before(oldest) {
				oldestKey, oldest = k, e.lastUsed
			}
		}
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}

// sweep periodically drops expired entries.
func (c *Cache) sweep() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if time.Since(e.storedAt) >= c.cfg.TTL {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		case <-c.cleanupDone:
			return
		}
	}
}

// Stats reports cache activity counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Close stops the background sweep and drops all entries. It is safe to
// call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cleanupTicker.Stop()
	close(c.cleanupDone)
	c.entries = make(map[string]*entry)
}
