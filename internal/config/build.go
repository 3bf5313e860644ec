package config

// Set with -ldflags at release time:
//
//	go build -ldflags "-X drivewatch/internal/config.version=1.2.3 \
//	    -X drivewatch/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X drivewatch/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo reports the values the binary was linked with.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
