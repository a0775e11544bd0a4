package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lotas/tabgroupsync/internal/types"
)

// ErrNoGroups is returned by ParseJSON when the document holds no usable group.
var ErrNoGroups = errors.New("no groups to import")

type jsonExport struct {
	Device     string      `json:"device,omitempty"`
	ExportedAt time.Time   `json:"exported_at"`
	Groups     []jsonGroup `json:"groups"`
}

type jsonGroup struct {
	GUID      string    `json:"guid"`
	Title     string    `json:"title"`
	Color     string    `json:"color,omitempty"`
	Pinned    bool      `json:"pinned,omitempty"`
	Position  int       `json:"position"`
	Open      bool      `json:"open,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Tabs      []jsonTab `json:"tabs"`
}

type jsonTab struct {
	GUID      string    `json:"guid"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JSON formats saved groups as a JSON document. device is the exporting
// install's cache guid and may be empty.
func JSON(device string, groups []types.SavedTabGroup) (string, error) {
	out := jsonExport{
		Device:     device,
		ExportedAt: time.Now(),
		Groups:     make([]jsonGroup, 0, len(groups)),
	}

	for _, g := range groups {
		group := jsonGroup{
			GUID:      g.GUID.String(),
			Title:     g.Title,
			Color:     string(g.Color),
			Pinned:    g.Pinned,
			Position:  g.Position,
			Open:      g.IsOpen(),
			UpdatedAt: g.UpdateTime,
			Tabs:      make([]jsonTab, 0, len(g.Tabs)),
		}
		for _, tab := range g.Tabs {
			group.Tabs = append(group.Tabs, jsonTab{
				GUID:      tab.GUID.String(),
				Title:     tab.Title,
				URL:       tab.URL,
				Domain:    extractDomain(tab.URL),
				UpdatedAt: tab.UpdateTime,
			})
		}
		out.Groups = append(out.Groups, group)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// ParseJSON reads a document written by JSON back into saved groups. Missing
// or malformed guids are replaced with fresh ones, tabs without a URL are
// dropped and groups left without tabs are skipped. Imported groups are never
// bound to a tab strip.
func ParseJSON(data []byte) ([]types.SavedTabGroup, error) {
	var in jsonExport
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}

	var out []types.SavedTabGroup
	for _, jg := range in.Groups {
		g := types.NewSavedTabGroup(jg.Title, types.ParseColor(jg.Color), nil)
		if id, err := uuid.Parse(jg.GUID); err == nil {
			g.GUID = id
		}
		g.Pinned = jg.Pinned
		if !jg.UpdatedAt.IsZero() {
			g.UpdateTime = jg.UpdatedAt
		}
		for _, jt := range jg.Tabs {
			if strings.TrimSpace(jt.URL) == "" {
				continue
			}
			tab := types.NewSavedTabGroupTab(jt.URL, jt.Title)
			if id, err := uuid.Parse(jt.GUID); err == nil {
				tab.GUID = id
			}
			if !jt.UpdatedAt.IsZero() {
				tab.UpdateTime = jt.UpdatedAt
			}
			g.InsertTab(tab, len(g.Tabs))
		}
		if len(g.Tabs) > 0 {
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoGroups
	}
	return out, nil
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Hostname()
}
