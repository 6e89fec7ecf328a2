package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultBackups is how many rolled files are kept next to the live one.
const DefaultBackups = 3

// FileWriter appends to a single log file. Once a write would push it past
// MaxBytes the file is rolled: chorus.log becomes chorus.log.1, the old .1
// becomes .2, and so on up to Backups; the oldest is removed.
type FileWriter struct {
	Path     string
	MaxBytes int64
	Backups  int

	mu   sync.Mutex
	file *os.File
	size int64
}

// OpenFile opens path for appending. A path of "-" discards output.
func OpenFile(path string, maxBytes int64, backups int) (io.WriteCloser, error) {
	if strings.TrimSpace(path) == "-" {
		return discard{}, nil
	}
	w := &FileWriter{Path: path, MaxBytes: maxBytes, Backups: backups}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	if w.MaxBytes > 0 && w.size > 0 && w.size+int64(len(p)) > w.MaxBytes {
		if err := w.roll(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *FileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(w.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file, w.size = f, st.Size()
	return nil
}

// roll shifts the backups up by one and starts an empty live file.
// Caller holds mu.
func (w *FileWriter) roll() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	w.file = nil

	if w.Backups <= 0 {
		if err := os.Remove(w.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("truncate log file: %w", err)
		}
		return w.open()
	}

	_ = os.Remove(backupName(w.Path, w.Backups))
	for i := w.Backups - 1; i >= 1; i-- {
		if err := os.Rename(backupName(w.Path, i), backupName(w.Path, i+1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("roll log file: %w", err)
		}
	}
	if err := os.Rename(w.Path, backupName(w.Path, 1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("roll log file: %w", err)
	}
	return w.open()
}

func backupName(path string, i int) string {
	return fmt.Sprintf("%s.%d", path, i)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
func (discard) Close() error                { return nil }
