package firefox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lotas/tabgroupsync/internal/types"
)

func writeSessionStub(t *testing.T, profileDir, name string) {
	t.Helper()
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(backupDir, name), []byte("dummy"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParseProfilesINI(t *testing.T) {
	dir := t.TempDir()
	absProfileDir := t.TempDir()
	iniContent := `[General]
StartWithLastProfile=1
Version=2

[Profile0]
Name=default-release
IsRelative=1
Path=abc123.default-release
Default=1

[Profile1]
Name=dev-edition
IsRelative=0
Path=` + absProfileDir + `
Default=0

[Profile2]
Name=empty
IsRelative=1
Path=nothing-here

[Install308046B0AF4A39CB]
Default=abc123.default-release
Locked=1
`
	iniPath := filepath.Join(dir, "profiles.ini")
	if err := os.WriteFile(iniPath, []byte(iniContent), 0644); err != nil {
		t.Fatal(err)
	}
	writeSessionStub(t, filepath.Join(dir, "abc123.default-release"), "recovery.jsonlz4")
	writeSessionStub(t, absProfileDir, "previous.jsonlz4")

	profiles, err := ParseProfilesINI(iniPath, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	if profiles[0].Name != "default-release" {
		t.Errorf("expected name 'default-release', got %q", profiles[0].Name)
	}
	if profiles[0].Path != filepath.Join(dir, "abc123.default-release") {
		t.Errorf("expected resolved path, got %q", profiles[0].Path)
	}
	if !profiles[0].IsDefault {
		t.Error("expected profile 0 to be default")
	}

	if profiles[1].Name != "dev-edition" {
		t.Errorf("expected name 'dev-edition', got %q", profiles[1].Name)
	}
	if profiles[1].Path != absProfileDir {
		t.Errorf("expected absolute path %q, got %q", absProfileDir, profiles[1].Path)
	}
	if profiles[1].IsDefault {
		t.Error("expected profile 1 to not be default")
	}
}

func TestParseProfilesINIMissingFile(t *testing.T) {
	if _, err := ParseProfilesINI(filepath.Join(t.TempDir(), "profiles.ini"), ""); err == nil {
		t.Fatal("expected error for missing profiles.ini")
	}
}

func TestFindProfile(t *testing.T) {
	profiles := []types.Profile{
		{Name: "work", Path: "/p/work"},
		{Name: "home", Path: "/p/home", IsDefault: true},
	}

	t.Run("by name", func(t *testing.T) {
		p, err := FindProfile(profiles, "work")
		if err != nil || p.Path != "/p/work" {
			t.Fatalf("got %+v, %v", p, err)
		}
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv(ProfileEnv, "work")
		p, err := FindProfile(profiles, "")
		if err != nil || p.Name != "work" {
			t.Fatalf("got %+v, %v", p, err)
		}
	})

	t.Run("default profile", func(t *testing.T) {
		t.Setenv(ProfileEnv, "")
		p, err := FindProfile(profiles, "")
		if err != nil || p.Name != "home" {
			t.Fatalf("got %+v, %v", p, err)
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := FindProfile(profiles, "nope")
		if !errors.Is(err, ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
	})

	t.Run("no profiles", func(t *testing.T) {
		t.Setenv(ProfileEnv, "")
		if _, err := FindProfile(nil, ""); !errors.Is(err, ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
	})
}

func TestFindFirefoxDir(t *testing.T) {
	dir := FindFirefoxDir()
	if dir == "" {
		t.Skip("no Firefox directory found on this system")
	}
	t.Logf("found Firefox dir: %s", dir)
}
