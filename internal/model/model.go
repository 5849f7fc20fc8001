package model

const (
	AppName = "devicesync"

	// UnassignedServerName is reported for devices without a management server.
	UnassignedServerName = "Unassigned"

	// NoEndDate is reported for coverage entries without an end date.
	NoEndDate = "no end date"
)

// Vendor activity statuses, COMPLETED and FAILED are terminal.
const (
	ActivityStatusPending    = "PENDING"
	ActivityStatusProcessing = "PROCESSING"
	ActivityStatusCompleted  = "COMPLETED"
	ActivityStatusFailed     = "FAILED"
)

// DeviceReference is the minimal device identity gathered during collection.
type DeviceReference struct {
	ID string `json:"id"`
}

// ManagementServer is a device management server registered with the vendor.
type ManagementServer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ServerLookup resolves management server identifiers to names.
type ServerLookup map[string]string

// NewServerLookup builds a lookup table from a server listing.
func NewServerLookup(servers []ManagementServer) ServerLookup {
	lookup := make(ServerLookup, len(servers))
	for _, s := range servers {
		lookup[s.ID] = s.Name
	}

	return lookup
}

// Name returns the server name for id, falling back to the id itself.
func (l ServerLookup) Name(id string) string {
	if name, ok := l[id]; ok && name != "" {
		return name
	}

	return id
}

// AssignedServer is the management server a device is assigned to.
// The zero value is not valid, use Unassigned().
type AssignedServer struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name" yaml:"name"`
}

// Unassigned returns the value for devices with no management server.
func Unassigned() AssignedServer {
	return AssignedServer{Name: UnassignedServerName}
}

// IsAssigned reports whether the device has a management server.
func (a AssignedServer) IsAssigned() bool {
	return a.ID != ""
}

// CoverageEntry is a single warranty/coverage agreement of a device.
type CoverageEntry struct {
	Description   string `json:"description" yaml:"description"`
	Status        string `json:"status" yaml:"status"`
	StartDateTime string `json:"startDateTime" yaml:"startDateTime"`
	EndDateTime   string `json:"endDateTime" yaml:"endDateTime"`
	PaymentType   string `json:"paymentType" yaml:"paymentType"`
}

// nolint:govet // prefer to keep field ordering as is
type DeviceRecord struct {
	ID                      string `json:"id" yaml:"id"`
	SerialNumber            string `json:"serialNumber" yaml:"serialNumber"`
	Model                   string `json:"model" yaml:"model"`
	ProductFamily           string `json:"productFamily" yaml:"productFamily"`
	ProductType             string `json:"productType" yaml:"productType"`
	Status                  string `json:"status" yaml:"status"`
	Color                   string `json:"color" yaml:"color"`
	Capacity                string `json:"capacity" yaml:"capacity"`
	AddedToOrgDateTime      string `json:"addedToOrgDateTime" yaml:"addedToOrgDateTime"`
	ReleasedFromOrgDateTime string `json:"releasedFromOrgDateTime" yaml:"releasedFromOrgDateTime"`
	WifiMacAddress          string `json:"wifiMacAddress" yaml:"wifiMacAddress"`

	AssignedServer  AssignedServer  `json:"assignedServer" yaml:"assignedServer"`
	CoverageEntries []CoverageEntry `json:"coverageEntries" yaml:"coverageEntries"`
}

// ActivitySnapshot is the state of a vendor activity as observed by one poll.
type ActivitySnapshot struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	SubStatus   string `json:"subStatus,omitempty"`
	CreatedAt   string `json:"createdDateTime,omitempty"`
	CompletedAt string `json:"completedDateTime,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// Terminal reports whether the vendor will no longer change this activity.
func (s *ActivitySnapshot) Terminal() bool {
	return s.Status == ActivityStatusCompleted || s.Status == ActivityStatusFailed
}

func (s *ActivitySnapshot) AsLogFields() []any {
	return []any{
		"activity_id", s.ID,
		"status", s.Status,
		"sub_status", s.SubStatus,
		"created", s.CreatedAt,
		"completed", s.CompletedAt,
	}
}

// MutationKind is the kind of bulk device mutation submitted as an activity.
type MutationKind string

const (
	MutationAssign   MutationKind = "ASSIGN"
	MutationUnassign MutationKind = "UNASSIGN"
)

// ActivityType returns the vendor activity type for the mutation.
func (k MutationKind) ActivityType() string {
	switch k {
	case MutationAssign:
		return "ASSIGN_DEVICES"
	case MutationUnassign:
		return "UNASSIGN_DEVICES"
	default:
		return ""
	}
}

// MutationRequest describes a bulk assign/unassign of devices.
type MutationRequest struct {
	Kind           MutationKind
	Devices        []DeviceReference
	TargetServerID string
}

func (r *MutationRequest) AsLogFields() []any {
	return []any{
		"kind", string(r.Kind),
		"devices", len(r.Devices),
		"target_server", r.TargetServerID,
	}
}

// Args are the command line arguments shared by all commands.
type Args struct {
	LogLevel        string
	ConfigFile      string
	EnableProfiling bool
	EnableMetrics   bool
}
