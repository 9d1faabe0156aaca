package utils

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var logger *logrus.Logger

// InitLogger configures the process-wide logger from the notifier's
// logging config section (level, format json|text, output stdout|file).
func InitLogger(level, format, output, file string) error {
	l := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(parsed)

	switch format {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}

	if output == "file" && file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		l.SetOutput(f)
	} else {
		l.SetOutput(os.Stdout)
	}

	logger = l
	return nil
}

// GetLogger returns the process-wide logger. Before InitLogger runs it
// falls back to the notifier's config defaults (info, json, stdout).
func GetLogger() *logrus.Logger {
	if logger == nil {
		InitLogger("info", "json", "stdout", "")
	}
	return logger
}

// ComponentLogger returns an entry tagged with the component name.
// Every subsystem of the notifier logs through one of these.
func ComponentLogger(name string) *logrus.Entry {
	return GetLogger().WithField("component", name)
}
