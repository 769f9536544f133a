package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a JSON logger at the level named by LOG_LEVEL
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
	return logger
}

// NewLoggerWithService creates a logger that stamps every entry with the service name
func NewLoggerWithService(serviceName string) *logrus.Logger {
	logger := NewLogger()
	logger.AddHook(serviceHook{service: serviceName})
	return logger
}

// ParseLevel maps a LOG_LEVEL value to a logrus level, defaulting to info
func ParseLevel(s string) logrus.Level {
	switch s {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

type serviceHook struct {
	service string
}

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = h.service
	}
	return nil
}
