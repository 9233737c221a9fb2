// Package utils
package utils

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// GetLogger returns the process-wide logger, writing to ml-trader.log and stdout.
func GetLogger() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})

		file, err := os.OpenFile("ml-trader.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger.Warnf("Logger | Failed to open log file, using stdout only: %v", err)
			return
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
	})
	return logger
}

// SetLevel adjusts the log level from its config string form ("debug", "info", ...).
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		GetLogger().Warnf("Logger | Unknown log level %q, keeping %s", level, GetLogger().GetLevel())
		return
	}
	GetLogger().SetLevel(parsed)
}
