package version

import (
	"runtime"
	"strings"
	"testing"
)

func setBuildInfo(t *testing.T, version, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	})
	Version, Commit, Date = version, commit, date
}

func TestGetInfo(t *testing.T) {
	setBuildInfo(t, "1.2.3", "abc123def456789", "2026-08-24T00:00:00Z")

	info := GetInfo()
	if info.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", info.Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	want := runtime.GOOS + "/" + runtime.GOARCH
	if info.Platform != want {
		t.Errorf("Platform = %q, want %q", info.Platform, want)
	}
}

func TestString(t *testing.T) {
	setBuildInfo(t, "1.2.3", "abc123def456789", "2026-08-24T00:00:00Z")

	s := String()
	for _, want := range []string{ApplicationName, "1.2.3", "abc123de", "2026-08-24"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
	if strings.Contains(s, "abc123def") {
		t.Errorf("String() = %q, commit not truncated", s)
	}
}

func TestString_DevBuild(t *testing.T) {
	setBuildInfo(t, "dev", "unknown", "unknown")

	s := String()
	if strings.Contains(s, "commit") {
		t.Errorf("String() = %q, should omit commit for dev builds", s)
	}
}

func TestShort(t *testing.T) {
	setBuildInfo(t, "1.2.3", "abc123def456789", "unknown")
	if s := Short(); s != "clipstitch 1.2.3 (abc123de)" {
		t.Errorf("Short() = %q", s)
	}

	setBuildInfo(t, "dev", "unknown", "unknown")
	if s := Short(); s != "clipstitch dev" {
		t.Errorf("Short() = %q", s)
	}
}

func TestUserAgent(t *testing.T) {
	setBuildInfo(t, "1.2.3", "unknown", "unknown")
	if ua := UserAgent(); ua != "clipstitch/1.2.3" {
		t.Errorf("UserAgent() = %q", ua)
	}
}
