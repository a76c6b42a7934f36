// Package version carries the build identity stamped into release binaries.
package version

import (
	"fmt"
	"runtime"
)

// Stamped at build time through -ldflags "-X github.com/clearlaw/lexengine/pkg/version.<Var>=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes one build of the binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Current returns the build identity of the running binary.
func Current() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String formats the build identity on one line.
func (i Info) String() string {
	return fmt.Sprintf("lexengine %s (commit %s, built %s, %s, %s)",
		i.Version, i.Commit, i.Date, i.GoVersion, i.Platform)
}
