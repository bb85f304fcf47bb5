package logger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
)

// Setup configures the process-wide logrus logger and attaches warn and above
// records to the active span.
func Setup(level string, json bool) error {
	lvl := logrus.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("logger.Setup: %w", err)
		}

		lvl = parsed
	}

	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stdout)

	if json {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logrus.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
	)))

	return nil
}

// LogrusLogger routes third-party client logs (go-redis) through logrus.
type LogrusLogger struct {
	logger *logrus.Logger
	source string
}

func NewLogrusLogger(source string) *LogrusLogger {
	return &LogrusLogger{
		logger: logrus.StandardLogger(),
		source: source,
	}
}

func (l *LogrusLogger) Printf(ctx context.Context, format string, v ...interface{}) {
	l.logger.WithContext(ctx).WithField("source", l.source).Warnf(format, v...)
}
