package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupStamp = "20060102-150405.000"

// execSink is the file target of the execution log. When the current file
// would exceed the size limit it is renamed to <path>.<timestamp> and a
// fresh file is started; old backups are pruned by count and age.
type execSink struct {
	mu      sync.Mutex
	out     *os.File
	path    string
	limit   int64
	keep    int
	maxAge  time.Duration
	written int64
}

func newExecSink(path string, maxSizeMB, maxBackups, maxAgeDays int) (*execSink, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create execution log directory: %w", err)
	}
	return &execSink{
		path:   path,
		limit:  int64(maxSizeMB) * 1024 * 1024,
		keep:   maxBackups,
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (s *execSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.out == nil {
		if err := s.open(); err != nil {
			return 0, err
		}
	}
	if s.limit > 0 && s.written+int64(len(p)) > s.limit {
		if err := s.rollover(); err != nil {
			return 0, err
		}
	}
	n, err := s.out.Write(p)
	s.written += int64(n)
	return n, err
}

func (s *execSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	err := s.out.Close()
	s.out = nil
	s.written = 0
	return err
}

func (s *execSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open execution log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat execution log: %w", err)
	}
	s.out = f
	s.written = info.Size()
	return nil
}

// rollover closes the current file, moves it aside under a timestamped name
// and opens a fresh one. Pruning failures are ignored; losing an old backup
// must not fail a live write.
func (s *execSink) rollover() error {
	if s.out != nil {
		_ = s.out.Close()
		s.out = nil
		s.written = 0
	}
	backup := s.path + "." + time.Now().UTC().Format(backupStamp)
	if _, err := os.Stat(s.path); err == nil {
		if err := os.Rename(s.path, backup); err != nil {
			return fmt.Errorf("rotate execution log: %w", err)
		}
	}
	s.prune()
	return s.open()
}

func (s *execSink) prune() {
	matches, err := filepath.Glob(s.path + ".*")
	if err != nil {
		return
	}
	var backups []string
	for _, m := range matches {
		stamp := strings.TrimPrefix(m, s.path+".")
		if _, err := time.Parse(backupStamp, stamp); err == nil {
			backups = append(backups, m)
		}
	}
	// Lexicographic order of the stamp is chronological order.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	cutoff := time.Now().UTC().Add(-s.maxAge)
	for i, b := range backups {
		if s.keep > 0 && i >= s.keep {
			_ = os.Remove(b)
			continue
		}
		if s.maxAge > 0 {
			stamp := strings.TrimPrefix(b, s.path+".")
			if ts, err := time.Parse(backupStamp, stamp); err == nil && ts.Before(cutoff) {
				_ = os.Remove(b)
			}
		}
	}
}
