// Package export writes enriched device records as JSON, YAML or CSV and summarizes them.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"

	DefaultListSeparator = "; "
)

var (
	ErrFormat    = errors.New("unsupported export format")
	ErrCSVHeader = errors.New("unexpected csv header")
)

// Columns of the tabular form, coverage columns hold one value per entry joined by the separator.
var Columns = []string{
	"id",
	"serialNumber",
	"model",
	"productFamily",
	"productType",
	"status",
	"color",
	"capacity",
	"addedToOrgDateTime",
	"releasedFromOrgDateTime",
	"wifiMacAddress",
	"assignedServerId",
	"assignedServerName",
	"coverageDescriptions",
	"coverageStatuses",
	"coverageStartDates",
	"coverageEndDates",
	"coveragePaymentTypes",
}

const firstCoverageColumn = 13

// Write writes records in the given format.
func Write(w io.Writer, format string, records []model.DeviceRecord, sep string) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, records)
	case FormatYAML:
		return WriteYAML(w, records)
	case FormatCSV:
		return WriteCSV(w, records, sep)
	default:
		return errors.Wrap(ErrFormat, format)
	}
}

// WriteJSON writes all record fields as indented JSON.
func WriteJSON(w io.Writer, records []model.DeviceRecord) error {
	if records == nil {
		records = []model.DeviceRecord{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return errors.Wrap(enc.Encode(records), "json export")
}

// WriteYAML writes all record fields as a YAML sequence.
func WriteYAML(w io.Writer, records []model.DeviceRecord) error {
	if records == nil {
		records = []model.DeviceRecord{}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(records); err != nil {
		return errors.Wrap(err, "yaml export")
	}

	return errors.Wrap(enc.Close(), "yaml export")
}

// WriteCSV writes a header and one row per device.
func WriteCSV(w io.Writer, records []model.DeviceRecord, sep string) error {
	if sep == "" {
		sep = DefaultListSeparator
	}

	cw := csv.NewWriter(w)

	if err := cw.Write(Columns); err != nil {
		return errors.Wrap(err, "csv export")
	}

	for i := range records {
		if err := cw.Write(row(&records[i], sep)); err != nil {
			return errors.Wrap(err, "csv export")
		}
	}

	cw.Flush()

	return errors.Wrap(cw.Error(), "csv export")
}

func row(r *model.DeviceRecord, sep string) []string {
	n := len(r.CoverageEntries)
	descriptions := make([]string, 0, n)
	statuses := make([]string, 0, n)
	starts := make([]string, 0, n)
	ends := make([]string, 0, n)
	payments := make([]string, 0, n)

	for _, c := range r.CoverageEntries {
		descriptions = append(descriptions, c.Description)
		statuses = append(statuses, c.Status)
		starts = append(starts, c.StartDateTime)
		ends = append(ends, c.EndDateTime)
		payments = append(payments, c.PaymentType)
	}

	return []string{
		r.ID,
		r.SerialNumber,
		r.Model,
		r.ProductFamily,
		r.ProductType,
		r.Status,
		r.Color,
		r.Capacity,
		r.AddedToOrgDateTime,
		r.ReleasedFromOrgDateTime,
		r.WifiMacAddress,
		r.AssignedServer.ID,
		r.AssignedServer.Name,
		strings.Join(descriptions, sep),
		strings.Join(statuses, sep),
		strings.Join(starts, sep),
		strings.Join(ends, sep),
		strings.Join(payments, sep),
	}
}

// ReadCSV parses the tabular form written by WriteCSV. Coverage entries whose
// fields are all empty can not be told apart from no entry and are dropped.
func ReadCSV(r io.Reader, sep string) ([]model.DeviceRecord, error) {
	if sep == "" {
		sep = DefaultListSeparator
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(model.ErrDecode, err.Error())
	}

	if len(rows) == 0 {
		return nil, errors.Wrap(ErrCSVHeader, "empty input")
	}

	for i, col := range Columns {
		if rows[0][i] != col {
			return nil, errors.Wrapf(ErrCSVHeader, "column %d is %q, want %q", i, rows[0][i], col)
		}
	}

	records := make([]model.DeviceRecord, 0, len(rows)-1)

	for _, f := range rows[1:] {
		record := model.DeviceRecord{
			ID:                      f[0],
			SerialNumber:            f[1],
			Model:                   f[2],
			ProductFamily:           f[3],
			ProductType:             f[4],
			Status:                  f[5],
			Color:                   f[6],
			Capacity:                f[7],
			AddedToOrgDateTime:      f[8],
			ReleasedFromOrgDateTime: f[9],
			WifiMacAddress:          f[10],
			AssignedServer:          model.AssignedServer{ID: f[11], Name: f[12]},
			CoverageEntries:         coverage(f[firstCoverageColumn:], sep),
		}

		records = append(records, record)
	}

	return records, nil
}

func coverage(fields []string, sep string) []model.CoverageEntry {
	split := make([][]string, len(fields))
	n := 0

	for i, field := range fields {
		if field == "" {
			continue
		}

		split[i] = strings.Split(field, sep)
		if len(split[i]) > n {
			n = len(split[i])
		}
	}

	at := func(col, i int) string {
		if i < len(split[col]) {
			return split[col][i]
		}

		return ""
	}

	entries := make([]model.CoverageEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, model.CoverageEntry{
			Description:   at(0, i),
			Status:        at(1, i),
			StartDateTime: at(2, i),
			EndDateTime:   at(3, i),
			PaymentType:   at(4, i),
		})
	}

	return entries
}
