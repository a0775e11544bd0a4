package applog

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	maxFileSize = 5 << 20 // 5 MB
	maxValueLen = 200
	truncSuffix = "…"
)

var (
	mu     sync.Mutex
	file   *os.File
	logger = newLogger(io.Discard)
)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
		DisableSorting:   true,
		QuoteEmptyFields: true,
	})
	return l
}

// Init opens the log file for appending. Call once at startup.
// If the file exceeds 5 MB, it is rotated (renamed to .log.1) before opening.
// Safe to skip: log calls discard output until Init runs.
func Init(dir string) error {
	path := filepath.Join(dir, "tabgroupsync.log")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil && info.Size() > maxFileSize {
		os.Rename(path, path+".1")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	mu.Lock()
	file = f
	logger.SetOutput(f)
	mu.Unlock()
	return nil
}

// SetOutput redirects logging, mainly for tests and the foreground CLI.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// Close flushes and closes the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
	logger.SetOutput(io.Discard)
}

// Info logs a structured event line.
//
//	applog.Info("group.added", "guid", g.GUID, "tabs", len(g.Tabs))
func Info(event string, kv ...any) {
	entry(kv).Info(event)
}

// Warn logs an expected but noteworthy condition, e.g. a lookup miss.
//
//	applog.Warn("service.group.missing", "local_id", id)
func Warn(event string, kv ...any) {
	entry(kv).Warn(event)
}

// Error logs an event with an error.
//
//	applog.Error("store.save", err, "guid", guid)
func Error(event string, err error, kv ...any) {
	entry(kv).WithError(err).Error(event)
}

func entry(kv []any) *logrus.Entry {
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = truncate(kv[i+1])
	}
	return logger.WithFields(fields)
}

func truncate(v any) any {
	s, ok := v.(string)
	if !ok {
		if st, isStringer := v.(interface{ String() string }); isStringer {
			s = st.String()
		} else {
			return v
		}
	}
	if len(s) > maxValueLen {
		s = s[:maxValueLen] + truncSuffix
	}
	return strings.TrimSpace(s)
}
