package vendorapi

import (
	"encoding/json"

	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
)

type resourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type pagingMeta struct {
	Paging struct {
		NextCursor string `json:"nextCursor"`
		Limit      int    `json:"limit"`
	} `json:"paging"`
}

type linkageList struct {
	Data []resourceIdentifier `json:"data"`
	Meta pagingMeta           `json:"meta"`
}

// optional to-one linkage, Data is nil for {"data": null}
type linkage struct {
	Data *resourceIdentifier `json:"data"`
}

type serverResource struct {
	ID         string `json:"id"`
	Attributes struct {
		ServerName string `json:"serverName"`
		ServerType string `json:"serverType"`
	} `json:"attributes"`
}

type serverList struct {
	Data []serverResource `json:"data"`
	Meta pagingMeta       `json:"meta"`
}

type deviceAttributes struct {
	SerialNumber            string `json:"serialNumber"`
	DeviceModel             string `json:"deviceModel"`
	ProductFamily           string `json:"productFamily"`
	ProductType             string `json:"productType"`
	Status                  string `json:"status"`
	Color                   string `json:"color"`
	DeviceCapacity          string `json:"deviceCapacity"`
	AddedToOrgDateTime      string `json:"addedToOrgDateTime"`
	ReleasedFromOrgDateTime string `json:"releasedFromOrgDateTime"`
	WifiMacAddress          string `json:"wifiMacAddress"`
}

type deviceDocument struct {
	Data *struct {
		ID         string           `json:"id"`
		Attributes deviceAttributes `json:"attributes"`
	} `json:"data"`
}

type coverageList struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Description   string `json:"description"`
			Status        string `json:"status"`
			StartDateTime string `json:"startDateTime"`
			EndDateTime   string `json:"endDateTime"`
			PaymentType   string `json:"paymentType"`
		} `json:"attributes"`
	} `json:"data"`
}

type activityDocument struct {
	Data *struct {
		ID         string `json:"id"`
		Attributes struct {
			Status            string `json:"status"`
			SubStatus         string `json:"subStatus"`
			CreatedDateTime   string `json:"createdDateTime"`
			CompletedDateTime string `json:"completedDateTime"`
			DownloadURL       string `json:"downloadUrl"`
		} `json:"attributes"`
	} `json:"data"`
}

// DevicePage is one page of a server's device listing.
type DevicePage struct {
	References []model.DeviceReference
	NextCursor string
}

// ServerPage is one page of the management server listing.
type ServerPage struct {
	Servers    []model.ManagementServer
	NextCursor string
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrap(model.ErrDecode, err.Error())
	}

	return nil
}

func DecodeDevicePage(body []byte) (*DevicePage, error) {
	var doc linkageList
	if err := decode(body, &doc); err != nil {
		return nil, err
	}

	page := &DevicePage{
		References: make([]model.DeviceReference, 0, len(doc.Data)),
		NextCursor: doc.Meta.Paging.NextCursor,
	}

	for _, d := range doc.Data {
		page.References = append(page.References, model.DeviceReference{ID: d.ID})
	}

	return page, nil
}

func DecodeServerPage(body []byte) (*ServerPage, error) {
	var doc serverList
	if err := decode(body, &doc); err != nil {
		return nil, err
	}

	page := &ServerPage{
		Servers:    make([]model.ManagementServer, 0, len(doc.Data)),
		NextCursor: doc.Meta.Paging.NextCursor,
	}

	for _, s := range doc.Data {
		page.Servers = append(page.Servers, model.ManagementServer{ID: s.ID, Name: s.Attributes.ServerName})
	}

	return page, nil
}

// DecodeDevice returns the primary device detail, enrichments are left at their defaults.
func DecodeDevice(body []byte) (*model.DeviceRecord, error) {
	var doc deviceDocument
	if err := decode(body, &doc); err != nil {
		return nil, err
	}

	if doc.Data == nil || doc.Data.ID == "" {
		return nil, errors.Wrap(model.ErrDecode, "device document without data")
	}

	a := doc.Data.Attributes

	return &model.DeviceRecord{
		ID:                      doc.Data.ID,
		SerialNumber:            a.SerialNumber,
		Model:                   a.DeviceModel,
		ProductFamily:           a.ProductFamily,
		ProductType:             a.ProductType,
		Status:                  a.Status,
		Color:                   a.Color,
		Capacity:                a.DeviceCapacity,
		AddedToOrgDateTime:      a.AddedToOrgDateTime,
		ReleasedFromOrgDateTime: a.ReleasedFromOrgDateTime,
		WifiMacAddress:          a.WifiMacAddress,
		AssignedServer:          model.Unassigned(),
		CoverageEntries:         []model.CoverageEntry{},
	}, nil
}

// DecodeAssignedServer returns the linked server id, empty for {"data": null}.
func DecodeAssignedServer(body []byte) (string, error) {
	var doc linkage
	if err := decode(body, &doc); err != nil {
		return "", err
	}

	if doc.Data == nil {
		return "", nil
	}

	return doc.Data.ID, nil
}

func DecodeCoverage(body []byte) ([]model.CoverageEntry, error) {
	var doc coverageList
	if err := decode(body, &doc); err != nil {
		return nil, err
	}

	entries := make([]model.CoverageEntry, 0, len(doc.Data))

	for _, c := range doc.Data {
		end := c.Attributes.EndDateTime
		if end == "" {
			end = model.NoEndDate
		}

		entries = append(entries, model.CoverageEntry{
			Description:   c.Attributes.Description,
			Status:        c.Attributes.Status,
			StartDateTime: c.Attributes.StartDateTime,
			EndDateTime:   end,
			PaymentType:   c.Attributes.PaymentType,
		})
	}

	return entries, nil
}

func DecodeActivity(body []byte) (*model.ActivitySnapshot, error) {
	var doc activityDocument
	if err := decode(body, &doc); err != nil {
		return nil, err
	}

	if doc.Data == nil || doc.Data.ID == "" {
		return nil, errors.Wrap(model.ErrDecode, "activity document without id")
	}

	a := doc.Data.Attributes

	return &model.ActivitySnapshot{
		ID:          doc.Data.ID,
		Status:      a.Status,
		SubStatus:   a.SubStatus,
		CreatedAt:   a.CreatedDateTime,
		CompletedAt: a.CompletedDateTime,
		DownloadURL: a.DownloadURL,
	}, nil
}

type relationshipOne struct {
	Data resourceIdentifier `json:"data"`
}

type relationshipMany struct {
	Data []resourceIdentifier `json:"data"`
}

type activityRelationships struct {
	MdmServer *relationshipOne `json:"mdmServer,omitempty"`
	Devices   relationshipMany `json:"devices"`
}

// ActivityRequest is the body of an activity submission.
type ActivityRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			ActivityType string `json:"activityType"`
		} `json:"attributes"`
		Relationships activityRelationships `json:"relationships"`
	} `json:"data"`
}

// NewActivityRequest builds the submission body, the server relationship is
// only set when targetServerID is not empty.
func NewActivityRequest(kind model.MutationKind, refs []model.DeviceReference, targetServerID string) *ActivityRequest {
	req := &ActivityRequest{}
	req.Data.Type = typeOrgDeviceActivities
	req.Data.Attributes.ActivityType = kind.ActivityType()

	if targetServerID != "" {
		req.Data.Relationships.MdmServer = &relationshipOne{
			Data: resourceIdentifier{Type: typeMdmServers, ID: targetServerID},
		}
	}

	devices := make([]resourceIdentifier, 0, len(refs))
	for _, r := range refs {
		devices = append(devices, resourceIdentifier{Type: typeOrgDevices, ID: r.ID})
	}

	req.Data.Relationships.Devices.Data = devices

	return req
}
