package export

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/metal-toolbox/devicesync/internal/model"
)

// Count is the number of records sharing a key.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary groups records by a few attributes, each group sorted by count
// descending then key ascending.
type Summary struct {
	Total          int     `json:"total"`
	ProductFamily  []Count `json:"productFamily"`
	Model          []Count `json:"model"`
	Status         []Count `json:"status"`
	AssignedServer []Count `json:"assignedServer"`
}

func Summarize(records []model.DeviceRecord) *Summary {
	return &Summary{
		Total:          len(records),
		ProductFamily:  groupBy(records, func(r *model.DeviceRecord) string { return r.ProductFamily }),
		Model:          groupBy(records, func(r *model.DeviceRecord) string { return r.Model }),
		Status:         groupBy(records, func(r *model.DeviceRecord) string { return r.Status }),
		AssignedServer: groupBy(records, func(r *model.DeviceRecord) string { return r.AssignedServer.Name }),
	}
}

func groupBy(records []model.DeviceRecord, key func(*model.DeviceRecord) string) []Count {
	counts := map[string]int{}
	for i := range records {
		counts[key(&records[i])]++
	}

	out := make([]Count, 0, len(counts))
	for k, n := range counts {
		out = append(out, Count{Key: k, Count: n})
	}

	slices.SortFunc(out, func(a, b Count) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}

		return cmp.Compare(a.Key, b.Key)
	})

	return out
}

// WriteText prints the summary as aligned columns.
func (s *Summary) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "devices\t%d\n", s.Total)

	groups := []struct {
		title  string
		counts []Count
	}{
		{"product family", s.ProductFamily},
		{"model", s.Model},
		{"status", s.Status},
		{"assigned server", s.AssignedServer},
	}

	for _, g := range groups {
		fmt.Fprintf(tw, "\n%s\t\n", g.title)

		for _, c := range g.counts {
			key := c.Key
			if key == "" {
				key = "(none)"
			}

			fmt.Fprintf(tw, "  %s\t%d\n", key, c.Count)
		}
	}

	return tw.Flush()
}
