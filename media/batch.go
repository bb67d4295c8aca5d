package media

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Isha1703/campaign-dashboard-sub001/campaign"
)

// BatchHooks observe a batch resolution as it progresses. All hooks are
// optional and may be invoked from multiple goroutines.
type BatchHooks struct {
	// OnProgress reports how many assets have settled so far.
	OnProgress func(done, total int)

	// OnResolved fires for each successfully resolved asset.
	OnResolved func(asset campaign.Asset, handle *Handle)

	// OnFailed fires for each asset whose resolution failed.
	OnFailed func(asset campaign.Asset, err error)
}

// batchConcurrency bounds how many fetches a batch runs at once.
const batchConcurrency = 3

// BatchResolve resolves every asset in the slice, at most three at a time.
// Individual failures are reported through hooks and do not stop the batch;
// the returned map holds a handle for every asset that resolved.
func (c *Cache) BatchResolve(
	ctx context.Context,
	assets []campaign.Asset,
	hooks BatchHooks,
) (map[string]*Handle, error) {
	handles := make([]*Handle, len(assets))
	var done atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, asset := range assets {
		g.Go(func() error {
			h, err := c.ResolveAsset(ctx, asset)
			settled := int(done.Add(1))
			if err != nil {
				if hooks.OnFailed != nil {
					hooks.OnFailed(asset, err)
				}
			} else {
				handles[i] = h
				if hooks.OnResolved != nil {
					hooks.OnResolved(asset, h)
				}
			}
			if hooks.OnProgress != nil {
				hooks.OnProgress(settled, len(assets))
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolved := make(map[string]*Handle, len(assets))
	for i, asset := range assets {
		if handles[i] != nil {
			resolved[asset.ID] = handles[i]
		}
	}
	return resolved, nil
}
