package enrich

import (
	"context"
	"net/url"
	"time"

	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/metal-toolbox/devicesync/internal/store"
	"github.com/metal-toolbox/devicesync/internal/store/vendorapi"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// limitedRepository makes every request wait on a limiter shared by the pool workers.
type limitedRepository struct {
	store.Repository
	limiter *rate.Limiter
}

func (l *limitedRepository) Request(
	ctx context.Context,
	token, method, path string,
	query url.Values,
	body any,
) (*vendorapi.Response, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return l.Repository.Request(ctx, token, method, path, query, body)
}

// requestsPerItem is the number of requests one device costs without retries.
func requestsPerItem(fetchCoverage bool) int {
	if fetchCoverage {
		return 3
	}

	return 2
}

// poolLimiter admits the requests of one device per item delay, retries included,
// which is the request ceiling of the sequential pacing.
func poolLimiter(itemDelay time.Duration, fetchCoverage bool) *rate.Limiter {
	burst := requestsPerItem(fetchCoverage)
	if itemDelay <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}

	return rate.NewLimiter(rate.Limit(float64(burst)/itemDelay.Seconds()), burst)
}

// enrichPool enriches refs with a bounded worker pool. All requests go through
// one limiter instead of the per item sleep.
func (p *Pipeline) enrichPool(
	ctx context.Context,
	token string,
	refs []model.DeviceReference,
	lookup model.ServerLookup,
	fetchCoverage bool,
) (*Result, error) {
	pooled := *p
	pooled.repository = &limitedRepository{
		Repository: p.repository,
		limiter:    poolLimiter(p.itemDelay, fetchCoverage),
	}

	records := make([]*model.DeviceRecord, len(refs))
	errs := make([]error, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, ref := range refs {
		if gctx.Err() != nil {
			break
		}

		i, ref := i, ref
		g.Go(func() error {
			record, err := pooled.enrichOne(gctx, token, ref, lookup, fetchCoverage)
			if gctx.Err() != nil {
				return gctx.Err()
			}

			records[i] = record
			errs[i] = err

			if errors.Is(err, model.ErrAuth) {
				return err
			}

			return nil
		})
	}

	waitErr := g.Wait()

	result := &Result{Records: make([]model.DeviceRecord, 0, len(refs))}

	for i, ref := range refs {
		if records[i] == nil && errs[i] == nil {
			// not processed, the context ended first
			continue
		}

		result.add(ref, records[i], errs[i])
	}

	if waitErr != nil {
		return result, waitErr
	}

	return result, ctx.Err()
}
