package version

// Name is the product name reported by the health endpoint and probe requests.
const Name = "Pulseboard"

// Set at build time via -ldflags "-X .../version.GitCommit=...".
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// Info returns the build metadata of the running binary.
func Info() BuildInfo {
	return BuildInfo{Service: Name, Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}
}

// Full renders Version with commit and build time when both are known.
func Full() string {
	if BuildTime == "unknown" || GitCommit == "unknown" {
		return Version
	}
	return Version + " (commit: " + GitCommit + ", built: " + BuildTime + ")"
}

// UserAgent identifies outbound health probes.
func UserAgent() string {
	return Name + "-HealthCheck/" + Version
}
