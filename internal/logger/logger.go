// Package logger builds the structured logger shared by the service and the
// sweeper CLI.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New creates a logrus logger. Production uses JSON output, everything else
// the text formatter.
func New(level, env string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(parseLevel(level))

	if env == "production" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Payment returns an entry scoped to one payment of one chair.
func Payment(l logrus.FieldLogger, chairID, paymentID string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"chair_id":   chairID,
		"payment_id": paymentID,
	})
}

// Chair returns an entry scoped to one chair.
func Chair(l logrus.FieldLogger, chairID string) *logrus.Entry {
	return l.WithField("chair_id", chairID)
}
