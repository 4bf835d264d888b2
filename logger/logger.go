package logger

import (
	"io"
	"os"
	"strings"

	"github.com/Scalingo/github-repo-stats/config"
	"github.com/sirupsen/logrus"
)

// Setup configures the logrus standard logger on stderr, stdout carrying the CSV output
func Setup(cfg config.Config) {
	SetupWithOutput(cfg, os.Stderr)
}

// SetupWithOutput is Setup writing to out
func SetupWithOutput(cfg config.Config, out io.Writer) {
	var formatter logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if cfg.Logs.OutputLogsAsJSON {
		formatter = &logrus.JSONFormatter{}
	}

	logrus.SetOutput(out)
	logrus.SetFormatter(formatter)
	logrus.SetLevel(ParseLevel(cfg.Logs.Level))
}

// ParseLevel converts the configured level, anything unknown means error
func ParseLevel(logLevel string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}
