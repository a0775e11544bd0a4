package firefox

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/lotas/tabgroupsync/internal/types"
)

// mozlz4 header: 8-byte magic "mozLz40\x00"
var mozLz4Magic = []byte("mozLz40\x00")

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format.
// The format is: 8-byte magic "mozLz40\x00" + 4-byte LE uint32 uncompressed size + lz4 block data.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12 // 8 magic + 4 size

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(mozLz4Magic)], mozLz4Magic) {
		return nil, errors.New("mozlz4: invalid header magic")
	}

	uncompressedSize := binary.LittleEndian.Uint32(data[8:12])
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}
	return dst[:n], nil
}

// CompressMozLz4 wraps data in the mozlz4 format.
func CompressMozLz4(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: compress failed: %w", err)
	}
	block := buf[:n]
	if n == 0 {
		block = literalBlock(data)
	}
	out := make([]byte, 0, 12+len(block))
	out = append(out, mozLz4Magic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(data)))
	return append(out, block...), nil
}

// literalBlock encodes data as a single literal-only lz4 sequence, for input
// the compressor could not shrink.
func literalBlock(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/255+2)
	l := len(data)
	if l < 15 {
		out = append(out, byte(l<<4))
	} else {
		out = append(out, 0xF0)
		for l -= 15; l >= 255; l -= 255 {
			out = append(out, 255)
		}
		out = append(out, byte(l))
	}
	return append(out, data...)
}

// Raw JSON types for Firefox session file parsing.
type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries      []rawEntry `json:"entries"`
	Index        int        `json:"index"`
	LastAccessed int64      `json:"lastAccessed"`
	Group        string     `json:"groupId"`
}

type rawGroup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type rawWindow struct {
	Tabs   []rawTab   `json:"tabs"`
	Groups []rawGroup `json:"groups"`
}

type rawSession struct {
	Windows []rawWindow `json:"windows"`
}

// firefoxColor maps Firefox group colors onto saved group colors.
func firefoxColor(c string) types.Color {
	if c == "gray" {
		return types.ColorGrey
	}
	return types.ParseColor(c)
}

// ParseSession turns the named tab groups of a Firefox session into saved
// groups, in window and definition order. Ungrouped tabs, tabs in groups the
// window does not define and groups without tabs are skipped. Each tab keeps
// only its current history entry.
func ParseSession(data []byte) ([]types.SavedTabGroup, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	var out []types.SavedTabGroup
	for _, window := range raw.Windows {
		byID := make(map[string]*types.SavedTabGroup, len(window.Groups))
		order := make([]string, 0, len(window.Groups))
		for _, rg := range window.Groups {
			if _, dup := byID[rg.ID]; dup {
				continue
			}
			g := types.NewSavedTabGroup(rg.Name, firefoxColor(rg.Color), nil)
			byID[rg.ID] = &g
			order = append(order, rg.ID)
		}

		for _, rt := range window.Tabs {
			g, ok := byID[rt.Group]
			if !ok || len(rt.Entries) == 0 {
				continue
			}
			// index is 1-based; current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]
			tab := types.NewSavedTabGroupTab(entry.URL, entry.Title)
			if rt.LastAccessed > 0 {
				tab.UpdateTime = time.UnixMilli(rt.LastAccessed)
			}
			g.InsertTab(tab, len(g.Tabs))
		}

		for _, id := range order {
			if g := byID[id]; len(g.Tabs) > 0 {
				out = append(out, *g)
			}
		}
	}
	return out, nil
}

// ReadSessionFile reads the tab groups of a Firefox profile.
// It tries recovery.jsonlz4 first (active session), then previous.jsonlz4 (last closed session).
func ReadSessionFile(profileDir string) ([]types.SavedTabGroup, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	var data []byte
	var err error
	for _, name := range []string{"recovery.jsonlz4", "previous.jsonlz4"} {
		data, err = os.ReadFile(filepath.Join(backupDir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no session file found in %s", backupDir)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}
	return ParseSession(decompressed)
}
