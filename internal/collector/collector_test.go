package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/metal-toolbox/devicesync/internal/log"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/metal-toolbox/devicesync/internal/pace"
	"github.com/metal-toolbox/devicesync/internal/store/vendorapi"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct {
	ids        []string
	nextCursor string
	status     int
}

// fakeListing serves /mdmServers/{scope}/relationships/devices keyed by scope and cursor.
type fakeListing struct {
	mu    sync.Mutex
	pages map[string]fakePage
	calls []string
}

func pageKey(scope, cursor string) string {
	return scope + "|" + cursor
}

func (f *fakeListing) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/mdmServers/"), "/")
	scope := parts[0]
	cursor := r.URL.Query().Get("cursor")

	f.mu.Lock()
	f.calls = append(f.calls, pageKey(scope, cursor))
	page, ok := f.pages[pageKey(scope, cursor)]
	f.mu.Unlock()

	if r.URL.Query().Get("limit") != "1000" {
		http.Error(w, "bad limit", http.StatusBadRequest)
		return
	}

	if !ok {
		http.NotFound(w, r)
		return
	}

	if page.status != 0 {
		w.WriteHeader(page.status)
		return
	}

	data := make([]map[string]string, 0, len(page.ids))
	for _, id := range page.ids {
		data = append(data, map[string]string{"type": "orgDevices", "id": id})
	}

	doc := map[string]any{"data": data}
	if page.nextCursor != "" {
		doc["meta"] = map[string]any{"paging": map[string]any{"nextCursor": page.nextCursor, "limit": 1000}}
	}

	_ = json.NewEncoder(w).Encode(doc)
}

func newTestCollector(t *testing.T, handler http.Handler) (*Collector, *pace.Recorder) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := vendorapi.NewClient(server.URL, server.Client(), log.Discard())
	recorder := &pace.Recorder{}

	return New(client, log.Discard(), WithSleepFunc(recorder.Sleep)), recorder
}

func TestCollectDeduplicatesAcrossScopes(t *testing.T) {
	listing := &fakeListing{pages: map[string]fakePage{
		pageKey("S1", ""):   {ids: []string{"A", "B"}, nextCursor: "c1"},
		pageKey("S1", "c1"): {ids: []string{"B", "C"}},
		pageKey("S2", ""):   {ids: []string{"C", "D"}},
	}}

	c, recorder := newTestCollector(t, listing)

	ws, err := c.Collect(context.Background(), "token", []string{"S1", "S2"})
	require.NoError(t, err)

	assert.Equal(t, 4, ws.Len())
	assert.Equal(t, []string{"A", "B", "C", "D"}, ws.IDs())
	assert.Len(t, listing.calls, 3)
	assert.Equal(t, []string{pageKey("S1", ""), pageKey("S1", "c1"), pageKey("S2", "")}, listing.calls)

	// one pause between the two S1 pages
	assert.Equal(t, []time.Duration{DefaultPageDelay}, recorder.Durations)
}

func TestCollectPageCountMatchesCursorChain(t *testing.T) {
	const total = 2500

	pages := map[string]fakePage{}
	cursor := ""

	for start := 0; start < total; start += 1000 {
		ids := []string{}
		for i := start; i < start+1000 && i < total; i++ {
			ids = append(ids, "D"+strconv.Itoa(i))
		}

		next := ""
		if start+1000 < total {
			next = fmt.Sprintf("cursor-%d", start+1000)
		}

		pages[pageKey("S1", cursor)] = fakePage{ids: ids, nextCursor: next}
		cursor = next
	}

	listing := &fakeListing{pages: pages}
	c, _ := newTestCollector(t, listing)

	ws, err := c.Collect(context.Background(), "token", []string{"S1"})
	require.NoError(t, err)

	assert.Equal(t, total, ws.Len())
	assert.Len(t, listing.calls, 3)
}

func TestCollectFailedPageKeepsOtherScopes(t *testing.T) {
	listing := &fakeListing{pages: map[string]fakePage{
		pageKey("S1", ""):   {ids: []string{"A"}, nextCursor: "c1"},
		pageKey("S1", "c1"): {status: http.StatusInternalServerError},
		pageKey("S2", ""):   {ids: []string{"B"}},
	}}

	c, _ := newTestCollector(t, listing)

	ws, err := c.Collect(context.Background(), "token", []string{"S1", "S2"})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, ws.IDs())
	assert.Len(t, listing.calls, 3)
}

func TestCollectUnknownScope(t *testing.T) {
	listing := &fakeListing{pages: map[string]fakePage{
		pageKey("S2", ""): {ids: []string{"B"}},
	}}

	c, _ := newTestCollector(t, listing)

	ws, err := c.Collect(context.Background(), "token", []string{"missing", "S2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ws.IDs())
}

func TestCollectStopsOnEmptyCursor(t *testing.T) {
	listing := &fakeListing{pages: map[string]fakePage{
		pageKey("S1", ""): {ids: []string{"A"}, nextCursor: ""},
	}}

	c, recorder := newTestCollector(t, listing)

	ws, err := c.Collect(context.Background(), "token", []string{"S1"})
	require.NoError(t, err)

	assert.Equal(t, 1, ws.Len())
	assert.Len(t, listing.calls, 1)
	assert.Empty(t, recorder.Durations)
}

func TestCollectCancelled(t *testing.T) {
	listing := &fakeListing{pages: map[string]fakePage{
		pageKey("S1", ""):   {ids: []string{"A"}, nextCursor: "c1"},
		pageKey("S1", "c1"): {ids: []string{"B"}},
	}}

	server := httptest.NewServer(listing)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())

	client := vendorapi.NewClient(server.URL, server.Client(), log.Discard())
	c := New(client, log.Discard(), WithSleepFunc(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	ws, err := c.Collect(ctx, "token", []string{"S1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"A"}, ws.IDs())
}

func TestServers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mdmServers", r.URL.Path)

		switch r.URL.Query().Get("cursor") {
		case "":
			_, _ = w.Write([]byte(`{"data":[{"type":"mdmServers","id":"S1","attributes":{"serverName":"Jamf Pro"}}],
				"meta":{"paging":{"nextCursor":"n1"}}}`))
		case "n1":
			_, _ = w.Write([]byte(`{"data":[{"type":"mdmServers","id":"S2","attributes":{"serverName":"Intune"}}]}`))
		}
	}))
	t.Cleanup(server.Close)

	recorder := &pace.Recorder{}
	c := New(vendorapi.NewClient(server.URL, server.Client(), log.Discard()), log.Discard(), WithSleepFunc(recorder.Sleep))

	servers, err := c.Servers(context.Background(), "token")
	require.NoError(t, err)

	assert.Equal(t, []model.ManagementServer{{ID: "S1", Name: "Jamf Pro"}, {ID: "S2", Name: "Intune"}}, servers)
	assert.Len(t, recorder.Durations, 1)
}

func TestServersUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	c := New(vendorapi.NewClient(server.URL, server.Client(), log.Discard()), log.Discard())

	_, err := c.Servers(context.Background(), "expired")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuth))
}

func TestCollectStopsOnRejectedToken(t *testing.T) {
	listing := &fakeListing{pages: map[string]fakePage{
		pageKey("S1", ""):   {ids: []string{"A"}, nextCursor: "c1"},
		pageKey("S1", "c1"): {status: http.StatusUnauthorized},
		pageKey("S2", ""):   {ids: []string{"B"}},
	}}

	c, _ := newTestCollector(t, listing)

	ws, err := c.Collect(context.Background(), "expired", []string{"S1", "S2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuth))
	assert.Equal(t, []string{"A"}, ws.IDs())
	assert.Len(t, listing.calls, 2)
}
