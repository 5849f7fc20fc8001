package vendorapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/metal-toolbox/devicesync/internal/configuration"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	contentTypeJSON = "application/json"

	// response bodies larger than this are truncated in error messages
	maxErrorBody = 512
)

// Response is the raw outcome of a vendor API call.
type Response struct {
	Status int
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= http.StatusOK && r.Status < http.StatusMultipleChoices
}

// Snippet returns the start of the body for error messages.
func (r *Response) Snippet() string {
	if len(r.Body) > maxErrorBody {
		return string(r.Body[:maxErrorBody]) + "..."
	}

	return string(r.Body)
}

// StatusError describes a non success response wrapping sentinel,
// 401 and 403 wrap model.ErrAuth instead.
func (r *Response) StatusError(sentinel error) error {
	if r.Status == http.StatusUnauthorized || r.Status == http.StatusForbidden {
		return errors.Wrapf(model.ErrAuth, "status %d: %s", r.Status, r.Snippet())
	}

	return errors.Wrapf(sentinel, "status %d: %s", r.Status, r.Snippet())
}

// Client issues authenticated requests to the vendor API.
//
// It never retries, non 2xx statuses are returned to the caller as data.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *logrus.Entry
}

// New returns a client for the configured endpoint, instrumented with otelhttp.
func New(opts *configuration.VendorAPIOptions, logger *logrus.Entry) (*Client, error) {
	if opts == nil || opts.Endpoint == "" {
		return nil, ErrVendorAPIConfig
	}

	httpClient := &http.Client{
		Timeout:   opts.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return NewClient(opts.Endpoint, httpClient, logger), nil
}

// NewClient returns a client using the given http client.
func NewClient(endpoint string, httpClient *http.Client, logger *logrus.Entry) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Request sends a request to path relative to the endpoint, the body when non nil is JSON encoded.
func (c *Client) Request(
	ctx context.Context,
	token, method, path string,
	query url.Values,
	body any,
) (*Response, error) {
	reqURL := c.endpoint + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader = http.NoBody

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal request body")
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, errors.Wrap(model.ErrTransport, err.Error())
	}

	req.Header.Set("Accept", contentTypeJSON)

	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(model.ErrTransport, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(model.ErrTransport, "failed to read response body: "+err.Error())
	}

	c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
		"bytes":  len(respBody),
	}).Trace("vendor api request")

	return &Response{Status: resp.StatusCode, Body: respBody}, nil
}
