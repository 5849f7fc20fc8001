package vendorapi

import (
	"encoding/json"
	"testing"

	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDevicePage(t *testing.T) {
	body := []byte(`{
		"data": [{"type":"orgDevices","id":"A"},{"type":"orgDevices","id":"B"}],
		"meta": {"paging": {"nextCursor": "c1", "limit": 1000}}
	}`)

	page, err := DecodeDevicePage(body)
	require.NoError(t, err)
	assert.Equal(t, []model.DeviceReference{{ID: "A"}, {ID: "B"}}, page.References)
	assert.Equal(t, "c1", page.NextCursor)

	page, err = DecodeDevicePage([]byte(`{"data":[]}`))
	require.NoError(t, err)
	assert.Empty(t, page.NextCursor)
}

func TestDecodeDevice(t *testing.T) {
	body := []byte(`{"data":{"type":"orgDevices","id":"XABC","attributes":{
		"serialNumber":"XABC","deviceModel":"iPad Air 11-inch (M2)","productFamily":"iPad",
		"productType":"iPad14,8","status":"ASSIGNED","color":"BLUE","deviceCapacity":"128GB",
		"addedToOrgDateTime":"2024-07-01T10:00:00Z","releasedFromOrgDateTime":"",
		"wifiMacAddress":"AA:BB:CC:DD:EE:FF"}}}`)

	rec, err := DecodeDevice(body)
	require.NoError(t, err)

	assert.Equal(t, "XABC", rec.ID)
	assert.Equal(t, "iPad Air 11-inch (M2)", rec.Model)
	assert.Equal(t, "128GB", rec.Capacity)
	assert.Equal(t, model.Unassigned(), rec.AssignedServer)
	assert.NotNil(t, rec.CoverageEntries)
	assert.Empty(t, rec.CoverageEntries)
}

func TestDecodeDeviceErrors(t *testing.T) {
	_, err := DecodeDevice([]byte(`not json`))
	assert.True(t, errors.Is(err, model.ErrDecode))

	_, err = DecodeDevice([]byte(`{"data":null}`))
	assert.True(t, errors.Is(err, model.ErrDecode))
}

func TestDecodeAssignedServer(t *testing.T) {
	id, err := DecodeAssignedServer([]byte(`{"data":{"type":"mdmServers","id":"S1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "S1", id)

	id, err = DecodeAssignedServer([]byte(`{"data":null}`))
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestDecodeCoverageNoEndDate(t *testing.T) {
	body := []byte(`{"data":[
		{"id":"c1","attributes":{"description":"Limited Warranty","status":"ACTIVE",
		 "startDateTime":"2024-01-01T00:00:00Z","endDateTime":"2025-01-01T00:00:00Z","paymentType":"NONE"}},
		{"id":"c2","attributes":{"description":"AppleCare+","status":"ACTIVE",
		 "startDateTime":"2024-01-01T00:00:00Z","paymentType":"SUBSCRIPTION"}}
	]}`)

	entries, err := DecodeCoverage(body)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2025-01-01T00:00:00Z", entries[0].EndDateTime)
	assert.Equal(t, model.NoEndDate, entries[1].EndDateTime)
}

func TestDecodeServerPage(t *testing.T) {
	body := []byte(`{"data":[{"type":"mdmServers","id":"S1","attributes":{"serverName":"Jamf","serverType":"MDM"}}],
		"meta":{"paging":{"nextCursor":""}}}`)

	page, err := DecodeServerPage(body)
	require.NoError(t, err)
	assert.Equal(t, []model.ManagementServer{{ID: "S1", Name: "Jamf"}}, page.Servers)
}

func TestDecodeActivity(t *testing.T) {
	body := []byte(`{"data":{"type":"orgDeviceActivities","id":"act-1","attributes":{
		"status":"COMPLETED","subStatus":"COMPLETED_WITH_SUCCESS",
		"createdDateTime":"2025-01-01T00:00:00Z","completedDateTime":"2025-01-01T00:01:00Z",
		"downloadUrl":"https://reports.example.test/act-1.csv"}}}`)

	snap, err := DecodeActivity(body)
	require.NoError(t, err)
	assert.Equal(t, "act-1", snap.ID)
	assert.True(t, snap.Terminal())
	assert.Equal(t, "https://reports.example.test/act-1.csv", snap.DownloadURL)

	_, err = DecodeActivity([]byte(`{"data":{"attributes":{}}}`))
	assert.True(t, errors.Is(err, model.ErrDecode))
}

func TestNewActivityRequest(t *testing.T) {
	refs := []model.DeviceReference{{ID: "A"}, {ID: "B"}}

	assign, err := json.Marshal(NewActivityRequest(model.MutationAssign, refs, "S1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"type":"orgDeviceActivities",
		"attributes":{"activityType":"ASSIGN_DEVICES"},
		"relationships":{
			"mdmServer":{"data":{"type":"mdmServers","id":"S1"}},
			"devices":{"data":[{"type":"orgDevices","id":"A"},{"type":"orgDevices","id":"B"}]}}}}`,
		string(assign))

	unassign, err := json.Marshal(NewActivityRequest(model.MutationUnassign, refs[:1], ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"type":"orgDeviceActivities",
		"attributes":{"activityType":"UNASSIGN_DEVICES"},
		"relationships":{"devices":{"data":[{"type":"orgDevices","id":"A"}]}}}}`,
		string(unassign))
}
