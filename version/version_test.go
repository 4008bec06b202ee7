package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestGetVersionInfoDefaults(t *testing.T) {
	info := GetVersionInfo()
	if info.Version != Version {
		t.Errorf("expected version %q, got %q", Version, info.Version)
	}
	if info.GoVersion == "" || info.Platform == "" {
		t.Errorf("expected runtime fields, got %+v", info)
	}
}

func TestApplyBuildSettings(t *testing.T) {
	info := &Info{Version: "1.2.0"}
	applyBuildSettings(info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
	})

	if info.GitCommit != "0123456" {
		t.Errorf("expected short commit, got %q", info.GitCommit)
	}
	if !info.Dirty {
		t.Error("expected dirty build")
	}
	if info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected build time %q", info.BuildTime)
	}
}

func TestApplyBuildSettings_LinkerValuesWin(t *testing.T) {
	info := &Info{Version: "1.2.0", GitCommit: "abc1234", BuildTime: "yesterday"}
	applyBuildSettings(info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "fffffffffff"},
		{Key: "vcs.time", Value: "today"},
	})
	if info.GitCommit != "abc1234" || info.BuildTime != "yesterday" {
		t.Errorf("linker values should win, got %+v", info)
	}
}

func TestIsRelease(t *testing.T) {
	tests := []struct {
		info Info
		want bool
	}{
		{Info{Version: "dev"}, false},
		{Info{Version: "1.0.0"}, true},
		{Info{Version: "1.0.0", Dirty: true}, false},
		{Info{Version: "1.0.0-dirty"}, false},
	}
	for _, tc := range tests {
		if got := tc.info.IsRelease(); got != tc.want {
			t.Errorf("IsRelease(%+v) = %v, want %v", tc.info, got, tc.want)
		}
	}
}

func TestShortAndString(t *testing.T) {
	info := &Info{Version: "1.0.0", GitCommit: "abc1234", Dirty: true, GoVersion: "go1.26.0", Platform: "linux/amd64"}
	if info.Short() != "1.0.0-abc1234-dirty" {
		t.Errorf("unexpected short version %q", info.Short())
	}
	s := info.String()
	if !strings.HasPrefix(s, "dagflow 1.0.0-abc1234-dirty (go1.26.0, linux/amd64)") {
		t.Errorf("unexpected banner %q", s)
	}
	if (&Info{Version: "dev"}).Short() != "dev" {
		t.Error("expected bare version without commit")
	}
}
