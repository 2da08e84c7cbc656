package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"monitor-hub/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the process logger shared by every component. A nil *Logger
// discards everything, so optional loggers need no guards at call sites.
type Logger struct {
	base  *logrus.Logger
	entry *logrus.Entry
	file  io.Closer
}

func NewLogger() *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true})
	return &Logger{base: base, entry: logrus.NewEntry(base)}
}

func NewLoggerFromConfig(cfg config.LogConfig) (*Logger, error) {
	base := logrus.New()
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)
	if err := setFormatter(base, cfg.Format); err != nil {
		return nil, err
	}
	l := &Logger{base: base, entry: logrus.NewEntry(base)}
	if err := l.setOutput(cfg); err != nil {
		return nil, err
	}
	return l, nil
}

func setFormatter(base *logrus.Logger, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}
	return nil
}

func (l *Logger) setOutput(cfg config.LogConfig) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stdout":
		l.base.SetOutput(os.Stdout)
	case "stderr":
		l.base.SetOutput(os.Stderr)
	case "file":
		if strings.TrimSpace(cfg.FilePath) == "" {
			return fmt.Errorf("log file path is required when output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		rotated := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		l.file = rotated
		if l.base.GetLevel() >= logrus.DebugLevel {
			l.base.SetOutput(io.MultiWriter(os.Stdout, rotated))
		} else {
			l.base.SetOutput(rotated)
		}
	default:
		return fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
	return nil
}

// SetLevel changes the level at runtime; unknown names are ignored.
func (l *Logger) SetLevel(name string) {
	if l == nil {
		return
	}
	level, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return
	}
	l.base.SetLevel(level)
}

func (l *Logger) SetOutput(w io.Writer) {
	if l == nil {
		return
	}
	l.base.SetOutput(w)
}

func (l *Logger) WithField(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{base: l.base, entry: l.entry.WithField(key, value), file: l.file}
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{base: l.base, entry: l.entry.WithFields(logrus.Fields(fields)), file: l.file}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.entry.Infof(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.entry.Infof(format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.entry.Debugf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.entry.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.entry.Errorf(format, args...)
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
