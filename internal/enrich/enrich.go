package enrich

import (
	"context"
	"net/http"
	"time"

	"github.com/metal-toolbox/devicesync/internal/metrics"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/metal-toolbox/devicesync/internal/pace"
	"github.com/metal-toolbox/devicesync/internal/store"
	"github.com/metal-toolbox/devicesync/internal/store/vendorapi"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	pkgName = "internal/enrich"

	DefaultMaxAttempts = 5
	DefaultBackoffUnit = 2 * time.Second
	DefaultItemDelay   = 500 * time.Millisecond
)

// Result is the aggregate outcome of an enrichment pass.
type Result struct {
	// Records holds the devices whose detail fetch succeeded, in input order.
	Records      []model.DeviceRecord
	SuccessCount int
	ErrorCount   int
	// FailedIDs lists the devices counted in ErrorCount, in input order.
	FailedIDs []string
}

func (r *Result) AsLogFields() []any {
	return []any{
		"success", r.SuccessCount,
		"errors", r.ErrorCount,
		"total", r.SuccessCount + r.ErrorCount,
	}
}

// Pipeline fetches device detail and related resources for collected references.
type Pipeline struct {
	repository  store.Repository
	logger      *logrus.Entry
	maxAttempts int
	backoffUnit time.Duration
	itemDelay   time.Duration
	concurrency int
	sleep       pace.SleepFunc
}

type Option func(*Pipeline)

// WithRetryPolicy sets the detail fetch attempt budget and the linear backoff unit.
func WithRetryPolicy(maxAttempts int, backoffUnit time.Duration) Option {
	return func(p *Pipeline) {
		p.maxAttempts = maxAttempts
		p.backoffUnit = backoffUnit
	}
}

// WithItemDelay sets the pause after each device, in the pool mode it sets the limiter interval.
func WithItemDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		p.itemDelay = d
	}
}

// WithConcurrency enables the worker pool mode when n > 1.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		p.concurrency = n
	}
}

func WithSleepFunc(fn pace.SleepFunc) Option {
	return func(p *Pipeline) {
		p.sleep = fn
	}
}

func New(repository store.Repository, logger *logrus.Entry, opts ...Option) *Pipeline {
	p := &Pipeline{
		repository:  repository,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		backoffUnit: DefaultBackoffUnit,
		itemDelay:   DefaultItemDelay,
		concurrency: 1,
		sleep:       pace.Sleep,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}

	return p
}

// Enrich fetches every reference of refs, single device failures are counted and skipped.
//
// The returned error is non nil only when ctx is done or the token was rejected,
// the partial result is returned with it.
func (p *Pipeline) Enrich(
	ctx context.Context,
	token string,
	refs *model.WorkingSet,
	lookup model.ServerLookup,
	fetchCoverage bool,
) (*Result, error) {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"Pipeline.Enrich",
		trace.WithAttributes(
			attribute.Int("devices", refs.Len()),
			attribute.Int("concurrency", p.concurrency),
			attribute.Bool("coverage", fetchCoverage),
		),
	)
	defer span.End()

	startTS := time.Now()

	var (
		result *Result
		err    error
	)

	if p.concurrency > 1 {
		result, err = p.enrichPool(ctx, token, refs.References(), lookup, fetchCoverage)
	} else {
		result, err = p.enrichSequential(ctx, token, refs.References(), lookup, fetchCoverage)
	}

	metrics.EnrichmentRunTimeSummary.Observe(time.Since(startTS).Seconds())

	logger := p.logger.WithFields(logrus.Fields{
		"success": result.SuccessCount,
		"errors":  result.ErrorCount,
		"total":   refs.Len(),
		"elapsed": time.Since(startTS).String(),
	})

	if result.ErrorCount > 0 {
		logger.WithField("failed", result.FailedIDs).Warn("enrichment complete with failures")
	} else {
		logger.Info("enrichment complete")
	}

	return result, err
}

func (p *Pipeline) enrichSequential(
	ctx context.Context,
	token string,
	refs []model.DeviceReference,
	lookup model.ServerLookup,
	fetchCoverage bool,
) (*Result, error) {
	result := &Result{Records: make([]model.DeviceRecord, 0, len(refs))}

	for _, ref := range refs {
		record, err := p.enrichOne(ctx, token, ref, lookup, fetchCoverage)
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		result.add(ref, record, err)

		if errors.Is(err, model.ErrAuth) {
			return result, err
		}

		if err := p.sleep(ctx, p.itemDelay); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (r *Result) add(ref model.DeviceReference, record *model.DeviceRecord, err error) {
	if err != nil || record == nil {
		r.ErrorCount++
		r.FailedIDs = append(r.FailedIDs, ref.ID)

		return
	}

	r.SuccessCount++
	r.Records = append(r.Records, *record)
}

// enrichOne returns the device record, an error means the primary detail fetch failed.
func (p *Pipeline) enrichOne(
	ctx context.Context,
	token string,
	ref model.DeviceReference,
	lookup model.ServerLookup,
	fetchCoverage bool,
) (*model.DeviceRecord, error) {
	logger := p.logger.WithField("deviceID", ref.ID)

	record, attempts, err := p.FetchDetailWithRetry(ctx, token, ref.ID)
	if err != nil {
		metrics.DeviceFetches.WithLabelValues("failed").Inc()
		logger.WithError(err).WithField("attempts", attempts).Warn("device detail fetch failed")

		return nil, err
	}

	metrics.DeviceFetches.WithLabelValues("ok").Inc()

	record.AssignedServer = p.assignment(ctx, token, ref.ID, lookup, logger)

	if fetchCoverage {
		record.CoverageEntries = p.coverage(ctx, token, ref.ID, logger)
	}

	logger.WithFields(logrus.Fields{
		"serial": record.SerialNumber,
		"server": record.AssignedServer.Name,
	}).Debug("device enriched")

	return record, nil
}

// FetchDetailWithRetry fetches the device detail, retrying rate limited responses
// after attempt*backoffUnit. It returns the number of attempts made.
func (p *Pipeline) FetchDetailWithRetry(ctx context.Context, token, deviceID string) (*model.DeviceRecord, int, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		resp, err := p.repository.Request(ctx, token, http.MethodGet, vendorapi.DevicePath(deviceID), nil, nil)
		if err != nil {
			return nil, attempt, err
		}

		switch resp.Status {
		case http.StatusOK:
			record, err := vendorapi.DecodeDevice(resp.Body)
			return record, attempt, err

		case http.StatusTooManyRequests:
			if attempt == p.maxAttempts {
				continue
			}

			wait := time.Duration(attempt) * p.backoffUnit

			metrics.RateLimitRetries.Inc()
			p.logger.WithFields(logrus.Fields{
				"deviceID": deviceID,
				"attempt":  attempt,
				"wait":     wait.String(),
			}).Debug("rate limited, backing off")

			if err := p.sleep(ctx, wait); err != nil {
				return nil, attempt, err
			}

		default:
			return nil, attempt, resp.StatusError(model.ErrStatus)
		}
	}

	return nil, p.maxAttempts, errors.Wrapf(model.ErrRateLimited, "gave up after %d attempts", p.maxAttempts)
}

// assignment resolves the device's management server, failures resolve to Unassigned.
func (p *Pipeline) assignment(
	ctx context.Context,
	token, deviceID string,
	lookup model.ServerLookup,
	logger *logrus.Entry,
) model.AssignedServer {
	resp, err := p.repository.Request(ctx, token, http.MethodGet, vendorapi.AssignedServerPath(deviceID), nil, nil)
	if err != nil {
		logger.WithError(err).Debug("assignment lookup failed")
		return model.Unassigned()
	}

	if resp.Status != http.StatusOK {
		logger.WithField("status", resp.Status).Debug("assignment lookup returned no server")
		return model.Unassigned()
	}

	serverID, err := vendorapi.DecodeAssignedServer(resp.Body)
	if err != nil || serverID == "" {
		return model.Unassigned()
	}

	return model.AssignedServer{ID: serverID, Name: lookup.Name(serverID)}
}

// coverage returns the device's coverage entries, failures resolve to an empty list.
func (p *Pipeline) coverage(ctx context.Context, token, deviceID string, logger *logrus.Entry) []model.CoverageEntry {
	empty := []model.CoverageEntry{}

	resp, err := p.repository.Request(ctx, token, http.MethodGet, vendorapi.CoveragePath(deviceID), nil, nil)
	if err != nil {
		logger.WithError(err).Debug("coverage lookup failed")
		return empty
	}

	if resp.Status != http.StatusOK {
		logger.WithField("status", resp.Status).Debug("coverage lookup returned no entries")
		return empty
	}

	entries, err := vendorapi.DecodeCoverage(resp.Body)
	if err != nil {
		logger.WithError(err).Debug("coverage decode failed")
		return empty
	}

	return entries
}
