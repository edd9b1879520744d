package logutil

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// InitLogger builds the process-wide logger. MON_DEBUG switches to the
// human readable development encoder.
func InitLogger() {
	once.Do(func() {
		var err error
		if os.Getenv("MON_DEBUG") != "" {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			logger = zap.NewNop()
		}
	})
}

func GetLogger() *zap.Logger {
	InitLogger()
	return logger
}

// SetLogger replaces the process-wide logger. Used by tests.
func SetLogger(l *zap.Logger) {
	InitLogger()
	logger = l
}
