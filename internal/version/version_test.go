package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, version, commit string) {
	t.Helper()
	origVersion, origCommit := Version, Commit
	Version, Commit = version, commit
	t.Cleanup(func() { Version, Commit = origVersion, origCommit })
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		commit   string
		contains []string
		excludes string
	}{
		{"dev build", "dev", "unknown", []string{"livefeed version dev"}, "commit:"},
		{"release", "1.2.3", "0123456789abcdef", []string{"livefeed version 1.2.3", "commit: 01234567"}, ""},
		{"short commit ignored", "1.2.3", "abc", []string{"livefeed version 1.2.3"}, "commit:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, tt.version, tt.commit)
			s := String()
			for _, want := range tt.contains {
				assert.Contains(t, s, want)
			}
			if tt.excludes != "" {
				assert.NotContains(t, s, tt.excludes)
			}
		})
	}
}

func TestShort(t *testing.T) {
	withBuild(t, "1.0.0", "unknown")
	assert.Equal(t, "1.0.0", Short())

	withBuild(t, "1.0.0", "0123456789abcdef")
	assert.Equal(t, "1.0.0 (01234567)", Short())
}

func TestJSON(t *testing.T) {
	withBuild(t, "2.0.0", "unknown")

	var info Info
	require.NoError(t, json.Unmarshal([]byte(JSON()), &info))
	assert.Equal(t, "2.0.0", info.Version)
}

func TestUserAgent(t *testing.T) {
	withBuild(t, "3.1.4", "unknown")
	assert.Equal(t, "livefeed/3.1.4", UserAgent())
}
