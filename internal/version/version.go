// Package version exposes build information for the /version endpoint.
package version

import "runtime/debug"

// Version is overridden at build time via -ldflags.
var Version = "dev"

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Revision  string `json:"revision,omitempty"`
}

// Get returns the build info, pulling the VCS revision from the embedded
// build metadata when available.
func Get() Info {
	info := Info{Version: Version}

	if bi, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = bi.GoVersion
		for _, setting := range bi.Settings {
			if setting.Key == "vcs.revision" {
				info.Revision = setting.Value
			}
		}
	}

	return info
}
