package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/imos/sshpod/pkg/config"
)

// NewLogger returns the process-wide structured logger. Debug mode logs at
// debug level to stderr as JSON; production mode discards all log output,
// since sshpod's normal output channel is stdout (the bridged bytes) and
// main writes the final error line to stderr itself.
func NewLogger(cfg *config.AppConfig) *logrus.Entry {
	var log *logrus.Logger
	if cfg.Debug || os.Getenv("DEBUG") == "TRUE" {
		log = newDevelopmentLogger()
	} else {
		log = newProductionLogger()
	}

	log.Formatter = &logrus.JSONFormatter{}

	return log.WithFields(logrus.Fields{
		"debug":     cfg.Debug,
		"version":   cfg.Version,
		"commit":    cfg.Commit,
		"buildDate": cfg.BuildDate,
	})
}

func getLogLevel() logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDevelopmentLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(getLogLevel())
	log.Out = os.Stderr
	return log
}

func newProductionLogger() *logrus.Logger {
	log := logrus.New()
	log.Out = io.Discard
	log.SetLevel(logrus.ErrorLevel)
	return log
}
