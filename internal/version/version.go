// Package version reports the build stamped into the binary, e.g.
//
//	go build -ldflags "-X github.com/jmylchreest/versery-api/internal/version.Version=1.4.0 -X ...Commit=$(git rev-parse --short HEAD)" ./cmd/versery-api
package version

import (
	"fmt"
	"log/slog"
	"runtime"
)

// Set via ldflags.
var (
	Version = "0.0.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
	Dirty   = "false"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the version info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Dirty:     Dirty == "true",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the form printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s (%s) built %s %s", i.Short(), i.Commit, i.Date, i.Platform)
}

// Short is the version alone, used for the X-API-Version header.
func (i Info) Short() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}

// LogValue groups the build fields under one log attribute.
func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", i.Short()),
		slog.String("commit", i.Commit),
		slog.String("built", i.Date),
		slog.String("go", i.GoVersion),
		slog.String("platform", i.Platform),
	)
}
