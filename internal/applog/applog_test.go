package applog

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEventsAreWrittenWithFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(Close)

	Info("group.added", "guid", "g1", "tabs", 3)
	Warn("service.group.missing", "local_id", "local-1")
	Error("store.save", errors.New("disk full"), "guid", "g1")

	out := buf.String()
	for _, want := range []string{
		"msg=group.added", "guid=g1", "tabs=3",
		"level=warning", "msg=service.group.missing",
		"level=error", `error="disk full"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLongValuesAreTruncated(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(Close)

	Info("tab.updated", "url", strings.Repeat("x", 500))
	if strings.Contains(buf.String(), strings.Repeat("x", 201)) {
		t.Error("expected value to be truncated to 200 characters")
	}
}

func TestInitRotatesLargeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tabgroupsync.log")
	if err := os.WriteFile(path, bytes.Repeat([]byte("a"), maxFileSize+1), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(Close)

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated file: %v", err)
	}
}
