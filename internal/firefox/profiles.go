package firefox

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lotas/tabgroupsync/internal/types"
)

// ProfileEnv names the default profile to import from.
const ProfileEnv = "TABGROUPSYNC_PROFILE"

var ErrProfileNotFound = errors.New("firefox profile not found")

// FindFirefoxDir returns the platform-specific Firefox profile directory.
func FindFirefoxDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch runtime.GOOS {
	case "linux":
		return filepath.Join(home, ".mozilla", "firefox")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Firefox")
	default:
		return ""
	}
}

// ParseProfilesINI reads profiles.ini and returns the profiles that have a
// session file to import from.
func ParseProfilesINI(iniPath, firefoxDir string) ([]types.Profile, error) {
	f, err := os.Open(iniPath)
	if err != nil {
		return nil, fmt.Errorf("open profiles.ini: %w", err)
	}
	defer f.Close()

	var profiles []types.Profile
	var current *types.Profile
	flush := func() {
		if current != nil {
			profiles = append(profiles, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			if strings.HasPrefix(line[1:len(line)-1], "Profile") {
				current = &types.Profile{}
			}
			continue
		}
		if current == nil {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "Name":
			current.Name = value
		case "Path":
			current.Path = value
		case "IsRelative":
			current.IsRelative = value == "1"
		case "Default":
			current.IsDefault = value == "1"
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan profiles.ini: %w", err)
	}

	var usable []types.Profile
	for _, p := range profiles {
		if p.IsRelative {
			p.Path = filepath.Join(firefoxDir, filepath.FromSlash(p.Path))
		}
		if hasSessionFile(p.Path) {
			usable = append(usable, p)
		}
	}
	return usable, nil
}

func hasSessionFile(profileDir string) bool {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	for _, name := range []string{"recovery.jsonlz4", "previous.jsonlz4"} {
		if _, err := os.Stat(filepath.Join(backupDir, name)); err == nil {
			return true
		}
	}
	return false
}

// DiscoverProfiles finds and parses Firefox profiles on this system.
func DiscoverProfiles() ([]types.Profile, error) {
	dir := FindFirefoxDir()
	if dir == "" {
		return nil, fmt.Errorf("could not find Firefox directory for %s", runtime.GOOS)
	}
	return ParseProfilesINI(filepath.Join(dir, "profiles.ini"), dir)
}

// FindProfile picks a profile by name. An empty name falls back to
// $TABGROUPSYNC_PROFILE, then to the default profile, then to the first one.
func FindProfile(profiles []types.Profile, name string) (types.Profile, error) {
	if name == "" {
		name = os.Getenv(ProfileEnv)
	}
	if name != "" {
		for _, p := range profiles {
			if p.Name == name {
				return p, nil
			}
		}
		return types.Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	if len(profiles) == 0 {
		return types.Profile{}, ErrProfileNotFound
	}
	for _, p := range profiles {
		if p.IsDefault {
			return p, nil
		}
	}
	return profiles[0], nil
}
