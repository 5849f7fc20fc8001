package vendorapi

import "github.com/pkg/errors"

var (
	ErrVendorAPIConfig = errors.New("vendor api configuration error")
	ErrAssertion       = errors.New("client assertion error")
	ErrReportDownload  = errors.New("activity report download error")
)
