package export

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lotas/tabgroupsync/internal/types"
)

func sampleGroups(t *testing.T) []types.SavedTabGroup {
	t.Helper()
	now := time.Now()
	research := types.NewSavedTabGroup("Research", types.ColorBlue, []types.SavedTabGroupTab{
		types.NewSavedTabGroupTab("https://go.dev/doc", "Go docs"),
		types.NewSavedTabGroupTab("https://github.com/charmbracelet/bubbletea", "Bubble Tea"),
	})
	research.Pinned = true
	research.LocalGroupID = "strip-1"
	research.Tabs[0].UpdateTime = now.Add(-3 * 24 * time.Hour)
	research.Tabs[1].UpdateTime = now.Add(-5 * time.Hour)

	later := types.NewSavedTabGroup("", types.ColorGrey, []types.SavedTabGroupTab{
		types.NewSavedTabGroupTab("https://example.com", ""),
	})
	return []types.SavedTabGroup{research, later}
}

func TestJSON(t *testing.T) {
	groups := sampleGroups(t)
	result, err := JSON("device-1", groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed jsonExport
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\noutput:\n%s", err, result)
	}
	if parsed.Device != "device-1" {
		t.Errorf("expected device 'device-1', got %q", parsed.Device)
	}
	if len(parsed.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(parsed.Groups))
	}
	g := parsed.Groups[0]
	if g.Title != "Research" || g.Color != "blue" || !g.Pinned || !g.Open {
		t.Errorf("unexpected first group %+v", g)
	}
	if g.GUID != groups[0].GUID.String() {
		t.Errorf("guid = %q, want %q", g.GUID, groups[0].GUID)
	}
	if len(g.Tabs) != 2 {
		t.Fatalf("expected 2 tabs in Research, got %d", len(g.Tabs))
	}
	if g.Tabs[0].Domain != "go.dev" {
		t.Errorf("expected domain 'go.dev', got %q", g.Tabs[0].Domain)
	}
	if parsed.Groups[1].Open {
		t.Error("second group is not open")
	}
}

func TestParseJSONRoundTrip(t *testing.T) {
	groups := sampleGroups(t)
	doc, err := JSON("", groups)
	if err != nil {
		t.Fatal(err)
	}

	got, err := ParseJSON([]byte(doc))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(got))
	}
	if got[0].GUID != groups[0].GUID || got[0].Tabs[1].GUID != groups[0].Tabs[1].GUID {
		t.Error("guids should survive a round trip")
	}
	if got[0].IsOpen() {
		t.Error("imported groups must not be bound to a tab strip")
	}
	if !got[0].Pinned || got[0].Color != types.ColorBlue {
		t.Errorf("unexpected group %+v", got[0])
	}
	if got[0].Tabs[1].Position != 1 {
		t.Errorf("position = %d, want 1", got[0].Tabs[1].Position)
	}
	if !got[0].Tabs[0].UpdateTime.Equal(groups[0].Tabs[0].UpdateTime) {
		t.Errorf("update time = %v, want %v", got[0].Tabs[0].UpdateTime, groups[0].Tabs[0].UpdateTime)
	}
}

func TestParseJSONRepairsInput(t *testing.T) {
	doc := `{"groups":[
		{"guid":"not-a-uuid","title":"Mixed","color":"magenta","tabs":[
			{"url":"https://a.example"},
			{"url":"  ","title":"blank"}
		]},
		{"guid":"","title":"Hollow","tabs":[{"url":""}]}
	]}`
	got, err := ParseJSON([]byte(doc))
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 group, got %d", len(got))
	}
	g := got[0]
	if g.Color != types.ColorGrey {
		t.Errorf("unknown color should fall back to grey, got %q", g.Color)
	}
	if len(g.Tabs) != 1 || g.Tabs[0].URL != "https://a.example" {
		t.Errorf("unexpected tabs %+v", g.Tabs)
	}
	if g.GUID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("malformed guid should be replaced")
	}
}

func TestParseJSONErrors(t *testing.T) {
	if _, err := ParseJSON([]byte("nope")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseJSON([]byte(`{"groups":[]}`)); !errors.Is(err, ErrNoGroups) {
		t.Errorf("expected ErrNoGroups, got %v", err)
	}
}

func TestBundle(t *testing.T) {
	groups := sampleGroups(t)
	data, err := Bundle("device-1", groups)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if !IsBundle(data) {
		t.Fatal("bundle should start with the mozlz4 magic")
	}

	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse bundle: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Research" {
		t.Fatalf("unexpected groups %+v", got)
	}

	plain, err := JSON("", groups)
	if err != nil {
		t.Fatal(err)
	}
	if IsBundle([]byte(plain)) {
		t.Error("plain JSON is not a bundle")
	}
	if got, err := Parse([]byte(plain)); err != nil || len(got) != 2 {
		t.Errorf("Parse plain: %d groups, %v", len(got), err)
	}
}
