package export

import (
	"fmt"

	"github.com/lotas/tabgroupsync/internal/firefox"
	"github.com/lotas/tabgroupsync/internal/types"
)

// Bundle is the JSON export wrapped in mozlz4, the format Firefox uses for
// its own session files.
func Bundle(device string, groups []types.SavedTabGroup) ([]byte, error) {
	doc, err := JSON(device, groups)
	if err != nil {
		return nil, err
	}
	out, err := firefox.CompressMozLz4([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("compress bundle: %w", err)
	}
	return out, nil
}

// ParseBundle reads a bundle written by Bundle.
func ParseBundle(data []byte) ([]types.SavedTabGroup, error) {
	doc, err := firefox.DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress bundle: %w", err)
	}
	return ParseJSON(doc)
}

// Parse reads either a bundle or a plain JSON export.
func Parse(data []byte) ([]types.SavedTabGroup, error) {
	if IsBundle(data) {
		return ParseBundle(data)
	}
	return ParseJSON(data)
}

// IsBundle reports whether data starts with the mozlz4 magic.
func IsBundle(data []byte) bool {
	return len(data) >= 8 && string(data[:8]) == "mozLz40\x00"
}
