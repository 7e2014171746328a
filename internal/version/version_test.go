package version

import (
	"runtime/debug"
	"testing"
)

func TestResolveFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	}
	info := resolve(func() (*debug.BuildInfo, bool) { return bi, true })
	if info.Version != "v0.3.1" || info.Commit != "0123456789abcdef0123" || info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Fatalf("info = %+v", info)
	}
	if info.GoVersion == "" {
		t.Fatal("GoVersion empty")
	}
}

func TestResolveDevel(t *testing.T) {
	bi := &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}
	info := resolve(func() (*debug.BuildInfo, bool) { return bi, true })
	if Version == "" && info.Version != "dev" {
		t.Fatalf("Version = %q, want dev", info.Version)
	}
}

func TestShortCommit(t *testing.T) {
	t.Parallel()
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortCommit = %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("shortCommit = %q", got)
	}
}
