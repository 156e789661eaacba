// Package version carries build metadata injected with
//
//	go build -ldflags "-X failguard/internal/app/version.buildVersion=v1.2.0 -X failguard/internal/app/version.builtAt=$(date -u +%FT%TZ)"
package version

import (
	"fmt"
	"runtime"
)

var (
	buildVersion = "dev"
	builtAt      = "unknown"
)

type Info struct {
	BuildVersion string `json:"build_version"`
	BuiltAt      string `json:"built_at"`
	GoVersion    string `json:"go_version"`
	Platform     string `json:"platform"`
}

func Get() Info {
	return Info{
		BuildVersion: buildVersion,
		BuiltAt:      builtAt,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("failguard %s (built %s, %s, %s)", i.BuildVersion, i.BuiltAt, i.GoVersion, i.Platform)
}
