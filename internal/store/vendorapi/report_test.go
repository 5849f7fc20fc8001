package vendorapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/metal-toolbox/devicesync/internal/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportDownloaderRetries(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		_, _ = w.Write([]byte("serial,result\nXABC,SUCCESS\n"))
	}))
	t.Cleanup(server.Close)

	d := NewReportDownloader(log.Discard(), WithReportRetries(3, time.Millisecond, 5*time.Millisecond))

	buf := &bytes.Buffer{}
	n, err := d.Download(context.Background(), server.URL+"/report.csv", buf)
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, "serial,result\nXABC,SUCCESS\n", buf.String())
}

func TestReportDownloaderNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	d := NewReportDownloader(log.Discard(), WithReportRetries(0, time.Millisecond, time.Millisecond))

	_, err := d.Download(context.Background(), server.URL, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReportDownload))
}
