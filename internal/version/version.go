package version

import "runtime"

// Build information. Populated at build-time via ldflags:
//
//	-X github.com/zgpcy/aliyun-cms-exporter/internal/version.Version=...
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// LabelNames are the label names of the build info metric, in Values order
var LabelNames = []string{"version", "git_commit", "build_date", "go_version"}

// Info returns version information
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}

// Values returns the build information ordered like LabelNames
func Values() []string {
	info := Info()
	values := make([]string, len(LabelNames))
	for i, name := range LabelNames {
		values[i] = info[name]
	}
	return values
}
