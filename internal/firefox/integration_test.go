package firefox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIntegration_ReadSessionFile(t *testing.T) {
	profileDir := t.TempDir()
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		t.Fatal(err)
	}

	sessionJSON := `{
		"version": ["sessionrestore", 1],
		"windows": [{
			"tabs": [
				{
					"entries": [{"url": "https://example.com", "title": "Example"}],
					"index": 1,
					"lastAccessed": 1000000000000,
					"groupId": "g1"
				},
				{
					"entries": [{"url": "https://other.com/page", "title": "Other"}],
					"index": 1,
					"lastAccessed": 1707654321000
				}
			],
			"groups": [
				{"id": "g1", "name": "Test Group", "color": "cyan", "collapsed": false}
			]
		}]
	}`
	packed, err := CompressMozLz4([]byte(sessionJSON))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	// Only previous.jsonlz4 exists, so the fallback is exercised.
	if err := os.WriteFile(filepath.Join(backupDir, "previous.jsonlz4"), packed, 0644); err != nil {
		t.Fatal(err)
	}

	groups, err := ReadSessionFile(profileDir)
	if err != nil {
		t.Fatalf("read session: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].Title != "Test Group" || len(groups[0].Tabs) != 1 {
		t.Errorf("unexpected group %+v", groups[0])
	}
}

func TestIntegration_ReadSessionFileMissing(t *testing.T) {
	if _, err := ReadSessionFile(t.TempDir()); err == nil {
		t.Fatal("expected error when no session file exists")
	}
}
