package vendorapi

import (
	"net/url"
	"strconv"
)

const (
	mdmServersPath          = "/mdmServers"
	orgDevicesPath          = "/orgDevices"
	orgDeviceActivitiesPath = "/orgDeviceActivities"

	// JSON:API resource types
	typeMdmServers          = "mdmServers"
	typeOrgDevices          = "orgDevices"
	typeOrgDeviceActivities = "orgDeviceActivities"
)

func ServersPath() string {
	return mdmServersPath
}

func ServerDevicesPath(serverID string) string {
	return mdmServersPath + "/" + url.PathEscape(serverID) + "/relationships/devices"
}

func DevicePath(deviceID string) string {
	return orgDevicesPath + "/" + url.PathEscape(deviceID)
}

func AssignedServerPath(deviceID string) string {
	return DevicePath(deviceID) + "/relationships/assignedServer"
}

func CoveragePath(deviceID string) string {
	return DevicePath(deviceID) + "/appleCareCoverage"
}

func ActivitiesPath() string {
	return orgDeviceActivitiesPath
}

func ActivityPath(activityID string) string {
	return orgDeviceActivitiesPath + "/" + url.PathEscape(activityID)
}

// PageQuery returns the listing query for a page, cursor is omitted when empty.
func PageQuery(limit int, cursor string) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	if cursor != "" {
		q.Set("cursor", cursor)
	}

	return q
}
