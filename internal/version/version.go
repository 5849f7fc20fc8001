package version

import (
	"runtime"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// set at build time through ldflags
	AppVersion = "devel"
	GitCommit  = ""
	BuildDate  = ""
)

type Version struct {
	AppVersion string `json:"app_version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
}

// Current returns the build information of the running binary.
func Current() Version {
	v := Version{
		AppVersion: AppVersion,
		GitCommit:  GitCommit,
		BuildDate:  BuildDate,
		GoVersion:  runtime.Version(),
	}

	if v.GitCommit != "" {
		return v
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				v.GitCommit = s.Value
			case "vcs.time":
				v.BuildDate = s.Value
			}
		}
	}

	return v
}

func (v Version) AsMap() map[string]any {
	return map[string]any{
		"app_version": v.AppVersion,
		"git_commit":  v.GitCommit,
		"build_date":  v.BuildDate,
		"go_version":  v.GoVersion,
	}
}

// ExportBuildInfoMetric publishes the build information as a gauge.
func ExportBuildInfoMetric() {
	v := Current()

	buildInfo := promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "devicesync_build_info",
			Help: "A metric with a constant '1' value, labeled by version, revision and go version.",
			ConstLabels: prometheus.Labels{
				"version":    v.AppVersion,
				"revision":   v.GitCommit,
				"go_version": v.GoVersion,
			},
		},
	)

	buildInfo.Set(1)
}
