package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Exec        ExecLogConfig
}

// ExecLogConfig controls the execution audit log. Every submitted call and
// settlement is recorded there so partially executed strategies can be
// reconstructed after the fact.
type ExecLogConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (c ExecLogConfig) withDefaults() ExecLogConfig {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 7
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
	return c
}

var (
	mu         sync.Mutex
	appLogger  *slog.Logger
	execLogger *slog.Logger
	closers    []io.Closer
)

// Init configures the global logger instances. The first call wins;
// subsequent calls are no-ops so libraries cannot reconfigure the process.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if appLogger != nil {
		return nil
	}

	sink, err := combinedOutput(cfg.OutputPaths)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: true}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(sink, opts)
	} else {
		handler = slog.NewJSONHandler(sink, opts)
	}
	appLogger = slog.New(handler)
	execLogger = appLogger

	if cfg.Exec.Enabled {
		if cfg.Exec.Path == "" {
			return errors.New("execution log path cannot be empty when enabled")
		}
		ec := cfg.Exec.withDefaults()
		writer, err := newExecSink(ec.Path, ec.MaxSizeMB, ec.MaxBackups, ec.MaxAgeDays)
		if err != nil {
			return err
		}
		closers = append(closers, writer)
		execLogger = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return nil
}

// combinedOutput resolves the configured paths into a single writer.
// "stdout" and "stderr" are recognised names; anything else is a file path
// opened for append. An empty list means stdout.
func combinedOutput(paths []string) (io.Writer, error) {
	if len(paths) == 0 {
		return os.Stdout, nil
	}
	writers := make([]io.Writer, 0, len(paths))
	for _, p := range paths {
		switch strings.ToLower(p) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", p, err)
			}
			closers = append(closers, f)
			writers = append(writers, f)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the structured logger instance.
func L() *slog.Logger {
	mu.Lock()
	ready := appLogger != nil
	mu.Unlock()
	if !ready {
		_ = Init(Config{})
	}
	mu.Lock()
	defer mu.Unlock()
	return appLogger
}

// Exec returns the execution audit logger.
func Exec() *slog.Logger {
	mu.Lock()
	l := execLogger
	mu.Unlock()
	if l == nil {
		return L()
	}
	return l
}

// Sync closes any file-backed outputs the logger owns.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	for _, closer := range closers {
		err = errors.Join(err, closer.Close())
	}
	closers = nil
	return err
}

// Named returns a child logger with the provided component name.
func Named(name string) *slog.Logger {
	return L().WithGroup(name)
}
