package syncbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lotas/tabgroupsync/internal/applog"
	"github.com/lotas/tabgroupsync/internal/metrics"
)

// DirTransport syncs through a directory shared between devices, such as a
// network share or a synced folder. Each entity is one JSON file under
// records/, each device one file under devices/. A later write of the same
// entity replaces the file.
type DirTransport struct {
	dir       string
	cacheGUID string
	valid     *validator
	debounce  time.Duration
}

// NewDirTransport prepares dir and publishes this device's record.
func NewDirTransport(dir string, self metrics.DeviceInfo) (*DirTransport, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("sync dir is empty")
	}
	if self.CacheGUID == "" {
		return nil, errors.New("device cache guid is empty")
	}
	for _, sub := range []string{"records", "devices"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create sync dir: %w", err)
		}
	}
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	t := &DirTransport{dir: dir, cacheGUID: self.CacheGUID, valid: v, debounce: 100 * time.Millisecond}

	data, err := json.MarshalIndent(self, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(t.devicePath(self.CacheGUID), data); err != nil {
		return nil, fmt.Errorf("publish device: %w", err)
	}
	return t, nil
}

func (t *DirTransport) recordsDir() string { return filepath.Join(t.dir, "records") }

func (t *DirTransport) devicePath(cacheGUID string) string {
	return filepath.Join(t.dir, "devices", cacheGUID+".json")
}

// Commit writes records, stamping this device as their writer.
func (t *DirTransport) Commit(ctx context.Context, records []Record) error {
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.Writer = t.cacheGUID
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.GUID, err)
		}
		path := filepath.Join(t.recordsDir(), r.GUID.String()+".json")
		if err := writeFileAtomic(path, data); err != nil {
			return fmt.Errorf("write record %s: %w", r.GUID, err)
		}
	}
	return nil
}

// ReadAll returns every valid record in the directory, in file name order.
// Invalid files are logged and skipped.
func (t *DirTransport) ReadAll() ([]Record, error) {
	matches, err := filepath.Glob(filepath.Join(t.recordsDir(), "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	var out []Record
	for _, path := range matches {
		r, err := t.readRecord(path)
		if err != nil {
			applog.Warn("transport.record.skipped", "path", path, "error", err.Error())
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *DirTransport) readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	if err := t.valid.validate(data); err != nil {
		return Record{}, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return r, nil
}

// Watch calls fn with batches of records other devices write until ctx is
// done. Writes that land close together are delivered as one batch. fn runs
// on the watcher goroutine.
func (t *DirTransport) Watch(ctx context.Context, fn func([]Record)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(t.recordsDir()); err != nil {
		return fmt.Errorf("watch %s: %w", t.recordsDir(), err)
	}
	applog.Info("transport.watch", "dir", t.dir)

	pending := make(map[string]bool)
	var flush <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			pending[ev.Name] = true
			if flush == nil {
				flush = time.After(t.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			applog.Error("transport.watch", err)
		case <-flush:
			flush = nil
			if batch := t.collect(pending); len(batch) > 0 {
				fn(batch)
			}
			pending = make(map[string]bool)
		}
	}
}

func (t *DirTransport) collect(paths map[string]bool) []Record {
	names := make([]string, 0, len(paths))
	for p := range paths {
		names = append(names, p)
	}
	sort.Strings(names)

	var out []Record
	for _, path := range names {
		r, err := t.readRecord(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			applog.Warn("transport.record.skipped", "path", path, "error", err.Error())
			continue
		}
		if r.Writer == t.cacheGUID {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DeviceInfo looks up a device that published itself to the directory.
func (t *DirTransport) DeviceInfo(cacheGUID string) (metrics.DeviceInfo, bool) {
	if cacheGUID == "" || strings.ContainsAny(cacheGUID, `/\`) {
		return metrics.DeviceInfo{}, false
	}
	data, err := os.ReadFile(t.devicePath(cacheGUID))
	if err != nil {
		return metrics.DeviceInfo{}, false
	}
	var info metrics.DeviceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		applog.Warn("transport.device.invalid", "cache_guid", cacheGUID)
		return metrics.DeviceInfo{}, false
	}
	return info, true
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
