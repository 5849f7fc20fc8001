package vendorapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultReportRetries = 3
	defaultReportWaitMin = 1 * time.Second
	defaultReportWaitMax = 10 * time.Second
)

// ReportDownloader fetches activity reports from their pre-signed download URL.
//
// Unlike the API client it retries, the report host is not the rate limited API.
type ReportDownloader struct {
	client *retryablehttp.Client
}

type ReportOption func(*retryablehttp.Client)

// WithReportRetries sets the retry budget and wait bounds.
func WithReportRetries(retryMax int, waitMin, waitMax time.Duration) ReportOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = retryMax
		c.RetryWaitMin = waitMin
		c.RetryWaitMax = waitMax
	}
}

func NewReportDownloader(logger *logrus.Entry, opts ...ReportOption) *ReportDownloader {
	client := retryablehttp.NewClient()
	client.RetryMax = defaultReportRetries
	client.RetryWaitMin = defaultReportWaitMin
	client.RetryWaitMax = defaultReportWaitMax
	client.HTTPClient.Transport = otelhttp.NewTransport(client.HTTPClient.Transport)
	client.Logger = logger

	for _, opt := range opts {
		opt(client)
	}

	return &ReportDownloader{client: client}
}

// Download writes the report at rawURL to w and returns the number of bytes written.
func (d *ReportDownloader) Download(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, errors.Wrap(ErrReportDownload, err.Error())
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(ErrReportDownload, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.Wrap(ErrReportDownload, "unexpected status: "+resp.Status)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, errors.Wrap(ErrReportDownload, err.Error())
	}

	return n, nil
}
