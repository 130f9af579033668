// Package version describes the running guardd build for logs, the
// version subcommand, and the /health endpoint.
package version

import (
	"runtime/debug"
	"strings"
)

// AppName is the application name used in version strings.
const AppName = "guardd"

// Info is the build identity reported by guardd: the VCS revision it
// was built from, whether the working tree was dirty, and the Go
// toolchain that compiled it.
type Info struct {
	App       string `json:"app"`
	Revision  string `json:"revision"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

// String renders the info as a single log-friendly token, e.g.
// "guardd/3f2a91bc" or "guardd/3f2a91bc-dirty".
func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.App)
	b.WriteByte('/')
	b.WriteString(i.Revision)
	if i.Modified {
		b.WriteString("-dirty")
	}
	return b.String()
}

// Build reads the binary's embedded build metadata. A binary without
// VCS stamping (e.g. one produced by `go test`) reports revision
// "dev".
func Build() Info {
	info := Info{App: AppName, Revision: "dev"}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) >= 8 {
				info.Revision = s.Value[:8]
			} else if s.Value != "" {
				info.Revision = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}
