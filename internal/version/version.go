package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const esbuildModule = "github.com/evanw/esbuild"

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version        string    `json:"version"`
	GitCommit      string    `json:"git_commit"`
	BuildTime      time.Time `json:"build_time"`
	GoVersion      string    `json:"go_version"`
	Platform       string    `json:"platform"`
	BundlerVersion string    `json:"esbuild_version"`
}

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version of the application
	Version = "dev"

	// GitCommit is the git commit hash when the binary was built
	GitCommit = "unknown"

	// BuildTime is the time when the binary was built (RFC3339 format)
	BuildTime = "unknown"
)

// Get returns the build information of the running binary.
func Get() BuildInfo {
	info, _ := debug.ReadBuildInfo()

	return BuildInfo{
		Version:        resolveVersion(info),
		GitCommit:      resolveCommit(info),
		BuildTime:      parseBuildTime(BuildTime),
		GoVersion:      runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		BundlerVersion: dependencyVersion(info, esbuildModule),
	}
}

// Short is a one-line version such as "v1.2.0 (abc1234)".
func (b BuildInfo) Short() string {
	if len(b.GitCommit) < 7 || b.GitCommit == "unknown" {
		return b.Version
	}
	commit := b.GitCommit[:7]
	if b.Version == "dev" {
		return "dev-" + commit
	}
	return fmt.Sprintf("%s (%s)", b.Version, commit)
}

// String lists every known field, one per line.
func (b BuildInfo) String() string {
	parts := []string{"Version: " + b.Version}
	if b.GitCommit != "unknown" {
		parts = append(parts, "Commit: "+b.GitCommit)
	}
	if !b.BuildTime.IsZero() {
		parts = append(parts, "Built: "+b.BuildTime.Format(time.RFC3339))
	}
	if b.BundlerVersion != "" {
		parts = append(parts, "esbuild: "+b.BundlerVersion)
	}
	parts = append(parts, "Go: "+b.GoVersion, "Platform: "+b.Platform)

	return strings.Join(parts, "\n")
}

func resolveVersion(info *debug.BuildInfo) string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info == nil {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func resolveCommit(info *debug.BuildInfo) string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := setting(info, "vcs.revision"); rev != "" {
		return rev
	}
	return "unknown"
}

func setting(info *debug.BuildInfo, key string) string {
	if info == nil {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func dependencyVersion(info *debug.BuildInfo, path string) string {
	if info == nil {
		return ""
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return ""
}

// parseBuildTime accepts RFC3339 and a few common variants. Anything else
// yields the zero time.
func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}

	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
