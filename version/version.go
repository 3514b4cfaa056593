// Package version exposes build metadata set via -ldflags, e.g.
//
//	go build -ldflags "-X github.com/jackzampolin/tracker/version.GitRelease=v0.1.0"
package version

import (
	"fmt"
	"runtime"
)

var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)
