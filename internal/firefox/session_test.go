package firefox

import (
	"encoding/binary"
	"encoding/json"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/lotas/tabgroupsync/internal/types"
)

func TestDecompressMozLz4(t *testing.T) {
	t.Run("valid mozlz4 payload", func(t *testing.T) {
		original := []byte(`{"windows":[{"tabs":[]}]}`)

		dst := make([]byte, lz4.CompressBlockBound(len(original)))
		n, err := lz4.CompressBlock(original, dst, nil)
		if err != nil {
			t.Fatalf("lz4.CompressBlock failed: %v", err)
		}

		// 8-byte magic + 4-byte LE uint32 size + compressed data.
		payload := append([]byte("mozLz40\x00"), 0, 0, 0, 0)
		binary.LittleEndian.PutUint32(payload[8:], uint32(len(original)))
		payload = append(payload, dst[:n]...)

		result, err := DecompressMozLz4(payload)
		if err != nil {
			t.Fatalf("DecompressMozLz4 returned error: %v", err)
		}
		if string(result) != string(original) {
			t.Errorf("expected %q, got %q", string(original), string(result))
		}
	})

	t.Run("invalid header returns error", func(t *testing.T) {
		bad := []byte("BADMAGIC\x00\x00\x00\x00some data here")
		if _, err := DecompressMozLz4(bad); err == nil {
			t.Fatal("expected error for invalid header, got nil")
		}
	})

	t.Run("too short data returns error", func(t *testing.T) {
		if _, err := DecompressMozLz4([]byte("mozLz40")); err == nil {
			t.Fatal("expected error for too-short data, got nil")
		}
	})
}

func TestCompressMozLz4RoundTrip(t *testing.T) {
	original := []byte(`{"groups":[{"title":"Reading","tabs":["https://example.com","https://example.com"]}]}`)
	packed, err := CompressMozLz4(original)
	if err != nil {
		t.Fatalf("CompressMozLz4: %v", err)
	}
	if string(packed[:8]) != "mozLz40\x00" {
		t.Fatalf("missing magic: %q", packed[:8])
	}
	got, err := DecompressMozLz4(packed)
	if err != nil {
		t.Fatalf("DecompressMozLz4: %v", err)
	}
	if string(got) != string(original) {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestParseSession(t *testing.T) {
	session := map[string]any{
		"windows": []map[string]any{
			{
				"tabs": []map[string]any{
					{
						"entries":      []map[string]any{{"url": "https://example.com", "title": "Example"}},
						"index":        1,
						"lastAccessed": 1707654321000,
						"groupId":      "group-1",
					},
					{
						"entries": []map[string]any{
							{"url": "https://old.com", "title": "Old Page"},
							{"url": "https://current.com", "title": "Current Page"},
						},
						"index":   2,
						"groupId": "group-1",
					},
					{
						"entries": []map[string]any{{"url": "https://loose.com", "title": "Loose"}},
						"index":   1,
					},
					{
						"entries": []map[string]any{{"url": "https://ghost.com", "title": "Ghost"}},
						"index":   1,
						"groupId": "undefined-group",
					},
				},
				"groups": []map[string]any{
					{"id": "group-1", "name": "Work", "color": "blue"},
					{"id": "group-2", "name": "Empty", "color": "red"},
				},
			},
			{
				"tabs": []map[string]any{
					{
						"entries": []map[string]any{{"url": "https://news.com", "title": "News"}},
						"index":   1,
						"groupId": "g",
					},
				},
				"groups": []map[string]any{
					{"id": "g", "name": "Later", "color": "gray"},
				},
			},
		},
	}
	data, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	groups, err := ParseSession(data)
	if err != nil {
		t.Fatalf("ParseSession returned error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	work := groups[0]
	if work.Title != "Work" || work.Color != types.ColorBlue {
		t.Errorf("first group = %q/%q, want Work/blue", work.Title, work.Color)
	}
	if work.IsOpen() {
		t.Error("imported group should not be bound to a tab strip")
	}
	if len(work.Tabs) != 2 {
		t.Fatalf("expected 2 tabs in Work, got %d", len(work.Tabs))
	}
	if work.Tabs[0].URL != "https://example.com" || work.Tabs[0].Position != 0 {
		t.Errorf("tab 0 = %+v", work.Tabs[0])
	}
	if !work.Tabs[0].UpdateTime.Equal(time.UnixMilli(1707654321000)) {
		t.Errorf("tab 0 update time = %v", work.Tabs[0].UpdateTime)
	}
	if work.Tabs[1].URL != "https://current.com" || work.Tabs[1].Title != "Current Page" {
		t.Errorf("tab 1 should use the current history entry, got %+v", work.Tabs[1])
	}

	later := groups[1]
	if later.Title != "Later" || later.Color != types.ColorGrey {
		t.Errorf("second group = %q/%q, want Later/grey", later.Title, later.Color)
	}
	if work.GUID == later.GUID {
		t.Error("imported groups must get distinct GUIDs")
	}
}

func TestParseSessionInvalidJSON(t *testing.T) {
	if _, err := ParseSession([]byte("{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestCompressMozLz4Incompressible(t *testing.T) {
	for _, in := range [][]byte{[]byte("x"), []byte("0123456789abcdefghijklmnopqrstuvwxyz")} {
		packed, err := CompressMozLz4(in)
		if err != nil {
			t.Fatalf("CompressMozLz4(%q): %v", in, err)
		}
		got, err := DecompressMozLz4(packed)
		if err != nil {
			t.Fatalf("DecompressMozLz4(%q): %v", in, err)
		}
		if string(got) != string(in) {
			t.Errorf("round trip %q -> %q", in, got)
		}
	}
}
