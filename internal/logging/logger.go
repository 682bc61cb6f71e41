// Package logging configures the shared logrus logger: formatter, level,
// optional rotated file output, and an in-memory buffer of recent entries
// that backs the serve-mode /v1/logs endpoint.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupBaseLogger applies the default formatter and level. Call once at
// startup, before configuration is available.
func SetupBaseLogger() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(log.InfoLevel)
	log.SetOutput(os.Stderr)
	log.AddHook(defaultRecentBuffer)
}

// Configure applies configuration-dependent logging settings: debug level
// and the optional rotated log file.
func Configure(debug bool, logFile string) {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if logFile == "" {
		return
	}
	rotated := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))
}
