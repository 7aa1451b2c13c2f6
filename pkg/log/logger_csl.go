package log

import (
	"context"
	"log"
)

type CslLogger struct {
	verbose bool
}

func NewCslLogger() (*CslLogger, error) {
	return &CslLogger{}, nil
}

// NewVerboseCslLogger bật thêm mức DEBUG.
func NewVerboseCslLogger() (*CslLogger, error) {
	return &CslLogger{verbose: true}, nil
}

func (l *CslLogger) Info(ctx context.Context, format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}

func (l *CslLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	log.Printf("[WARN] "+format, args...)
}

func (l *CslLogger) Error(ctx context.Context, format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}

func (l *CslLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

func (l *CslLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	log.Printf("[CRITICAL] "+format, args...)
}
