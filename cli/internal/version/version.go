// Package version carries build identification, populated via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// Info is a point-in-time snapshot of the build identification.
type Info struct {
	Version   string
	BuildDate string
	GitCommit string
	GoVersion string
	Platform  string
}

// Get returns the current build's identification.
func Get() Info {
	return Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the one-line form used in logs and errors.
func (i Info) String() string {
	return fmt.Sprintf("schemaflow version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString renders the multi-line form shown by the version command.
func (i Info) FullString() string {
	return fmt.Sprintf(`schemaflow version %s
Build Date: %s
Git Commit: %s
Platform: %s
Go Version: %s`, i.Version, i.BuildDate, i.GitCommit, i.Platform, i.GoVersion)
}
