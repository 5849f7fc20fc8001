package store

import (
	"context"
	"net/url"

	"github.com/metal-toolbox/devicesync/internal/configuration"
	"github.com/metal-toolbox/devicesync/internal/store/vendorapi"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	// Request issues an authenticated call against the vendor API and returns the raw response.
	Request(ctx context.Context, token, method, path string, query url.Values, body any) (*vendorapi.Response, error)
}

func NewRepository(config *configuration.Configuration, logger *logrus.Entry) (Repository, error) {
	client, err := vendorapi.New(config.VendorAPI, logger)
	if err != nil {
		return nil, err
	}

	return client, nil
}

func NewTokenProvider(ctx context.Context, config *configuration.Configuration) (vendorapi.TokenProvider, error) {
	return vendorapi.NewTokenProvider(ctx, config.VendorAPI)
}
