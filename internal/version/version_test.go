package version

import (
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShort(t *testing.T) {
	tests := []struct {
		name string
		info BuildInfo
		want string
	}{
		{"release with commit", BuildInfo{Version: "v1.2.0", GitCommit: "abc1234def"}, "v1.2.0 (abc1234)"},
		{"dev with commit", BuildInfo{Version: "dev", GitCommit: "abc1234def"}, "dev-abc1234"},
		{"unknown commit", BuildInfo{Version: "v1.2.0", GitCommit: "unknown"}, "v1.2.0"},
		{"short commit", BuildInfo{Version: "v1.2.0", GitCommit: "abc"}, "v1.2.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Short())
		})
	}
}

func TestString(t *testing.T) {
	info := BuildInfo{
		Version:        "v1.0.0",
		GitCommit:      "unknown",
		BuildTime:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		GoVersion:      "go1.24.4",
		Platform:       "linux/amd64",
		BundlerVersion: "v0.20.2",
	}

	s := info.String()
	assert.Contains(t, s, "Version: v1.0.0")
	assert.NotContains(t, s, "Commit:")
	assert.Contains(t, s, "Built: 2024-01-02T03:04:05Z")
	assert.Contains(t, s, "esbuild: v0.20.2")
	assert.Contains(t, s, "Platform: linux/amd64")
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("yesterday").IsZero())
	assert.Equal(t, 2024, parseBuildTime("2024-05-06T07:08:09Z").Year())
	assert.Equal(t, 8, parseBuildTime("2024-05-06 08:00:00").Hour())
}

func TestDependencyVersion(t *testing.T) {
	info := &debug.BuildInfo{
		Deps: []*debug.Module{
			{Path: "github.com/spf13/cobra", Version: "v1.9.1"},
			{Path: esbuildModule, Version: "v0.20.2"},
		},
	}
	assert.Equal(t, "v0.20.2", dependencyVersion(info, esbuildModule))
	assert.Empty(t, dependencyVersion(info, "github.com/missing/mod"))
	assert.Empty(t, dependencyVersion(nil, esbuildModule))

	info.Deps[1].Replace = &debug.Module{Path: esbuildModule, Version: "v0.21.0"}
	assert.Equal(t, "v0.21.0", dependencyVersion(info, esbuildModule))
}

func TestResolveUsesLdflags(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version, GitCommit = "v9.9.9", "0123456789"
	info := Get()
	assert.Equal(t, "v9.9.9", info.Version)
	assert.Equal(t, "0123456789", info.GitCommit)
	assert.NotEmpty(t, info.GoVersion)
}
