package collector

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
	pkgName = "internal/collector"

	DefaultPageLimit = 1000
	DefaultPageDelay = 200 * time.Millisecond
)

// Collector walks the cursor paginated listings of the vendor API.
type Collector struct {
	repository store.Repository
	logger     *logrus.Entry
	pageDelay  time.Duration
	sleep      pace.SleepFunc
}

type Option func(*Collector)

// WithPageDelay sets the pause between consecutive pages of one listing.
func WithPageDelay(d time.Duration) Option {
	return func(c *Collector) {
		c.pageDelay = d
	}
}

func WithSleepFunc(fn pace.SleepFunc) Option {
	return func(c *Collector) {
		c.sleep = fn
	}
}

func New(repository store.Repository, logger *logrus.Entry, opts ...Option) *Collector {
	c := &Collector{
		repository: repository,
		logger:     logger,
		pageDelay:  DefaultPageDelay,
		sleep:      pace.Sleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Collect gathers the unique device references of every scope, in the given scope order.
//
// A failing page ends the walk of its scope only, references gathered so far are kept.
// The returned error is non nil only when ctx is done or the token was rejected,
// the references gathered up to then are returned with it.
func (c *Collector) Collect(ctx context.Context, token string, scopeIDs []string) (*model.WorkingSet, error) {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"Collector.Collect",
		trace.WithAttributes(attribute.Int("scopes", len(scopeIDs))),
	)
	defer span.End()

	ws := model.NewWorkingSet()

	for _, scopeID := range scopeIDs {
		if err := c.collectScope(ctx, token, scopeID, ws); err != nil {
			return ws, err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"scopes":  len(scopeIDs),
		"devices": ws.Len(),
	}).Info("device collection complete")

	return ws, nil
}

func (c *Collector) collectScope(ctx context.Context, token, scopeID string, ws *model.WorkingSet) error {
	logger := c.logger.WithField("scope", scopeID)

	var (
		cursor string
		pages  int
		added  int
	)

	for {
		if pages > 0 {
			if err := c.sleep(ctx, c.pageDelay); err != nil {
				return err
			}
		}

		page, err := c.fetchDevicePage(ctx, token, scopeID, cursor)
		pages++

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			metrics.PagesFetched.WithLabelValues("devices", "failed").Inc()

			if errors.Is(err, model.ErrAuth) {
				return err
			}

			logger.WithError(err).WithField("page", pages).Warn("device page fetch failed, skipping rest of scope")

			return nil
		}

		metrics.PagesFetched.WithLabelValues("devices", "ok").Inc()

		for _, ref := range page.References {
			if ws.Add(ref) {
				added++
			}
		}

		logger.WithFields(logrus.Fields{
			"page":    pages,
			"fetched": len(page.References),
			"total":   ws.Len(),
		}).Debug("device page fetched")

		if page.NextCursor == "" {
			break
		}

		cursor = page.NextCursor
	}

	logger.WithFields(logrus.Fields{"pages": pages, "added": added}).Info("scope collected")

	return nil
}

func (c *Collector) fetchDevicePage(ctx context.Context, token, scopeID, cursor string) (*vendorapi.DevicePage, error) {
	resp, err := c.repository.Request(
		ctx,
		token,
		http.MethodGet,
		vendorapi.ServerDevicesPath(scopeID),
		vendorapi.PageQuery(DefaultPageLimit, cursor),
		nil,
	)
	if err != nil {
		return nil, err
	}

	if resp.Status != http.StatusOK {
		return nil, resp.StatusError(model.ErrStatus)
	}

	return vendorapi.DecodeDevicePage(resp.Body)
}

// Servers lists every management server, a failure is returned to the caller.
func (c *Collector) Servers(ctx context.Context, token string) ([]model.ManagementServer, error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Collector.Servers")
	defer span.End()

	var (
		servers []model.ManagementServer
		cursor  string
		pages   int
	)

	for {
		if pages > 0 {
			if err := c.sleep(ctx, c.pageDelay); err != nil {
				return nil, err
			}
		}

		resp, err := c.repository.Request(
			ctx,
			token,
			http.MethodGet,
			vendorapi.ServersPath(),
			vendorapi.PageQuery(DefaultPageLimit, cursor),
			nil,
		)
		pages++

		if err != nil {
			metrics.PagesFetched.WithLabelValues("servers", "failed").Inc()
			return nil, errors.Wrap(err, "failed to list management servers")
		}

		if resp.Status != http.StatusOK {
			metrics.PagesFetched.WithLabelValues("servers", "failed").Inc()
			return nil, errors.Wrap(resp.StatusError(model.ErrStatus), "server listing")
		}

		page, err := vendorapi.DecodeServerPage(resp.Body)
		if err != nil {
			metrics.PagesFetched.WithLabelValues("servers", "failed").Inc()
			return nil, err
		}

		metrics.PagesFetched.WithLabelValues("servers", "ok").Inc()

		servers = append(servers, page.Servers...)

		if page.NextCursor == "" {
			break
		}

		cursor = page.NextCursor
	}

	c.logger.WithField("servers", len(servers)).Debug("management servers listed")

	return servers, nil
}
