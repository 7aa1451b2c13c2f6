package log

import (
	"context"
	"io"
	"log"
	"os"
)

// FileLogger ghi log ra file đồng thời vẫn in ra console.
type FileLogger struct {
	verbose bool
	file    *os.File
	lg      *log.Logger
}

func NewFileLogger(path string, verbose bool) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		verbose: verbose,
		file:    f,
		lg:      log.New(io.MultiWriter(os.Stderr, f), "", log.LstdFlags),
	}, nil
}

func (l *FileLogger) Close() error {
	return l.file.Close()
}

func (l *FileLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.lg.Printf("[INFO] "+format, args...)
}

func (l *FileLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.lg.Printf("[WARN] "+format, args...)
}

func (l *FileLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.lg.Printf("[ERROR] "+format, args...)
}

func (l *FileLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.lg.Printf("[DEBUG] "+format, args...)
}

func (l *FileLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	l.lg.Printf("[CRITICAL] "+format, args...)
}
