package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	logg *logrus.Logger
)

func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(levelFromEnv("LOG_LEVEL", logrus.InfoLevel))
	logg.SetOutput(os.Stdout)
}

func levelFromEnv(key string, def logrus.Level) logrus.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	lvl, err := logrus.ParseLevel(v)
	if err != nil {
		return def
	}
	return lvl
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	if logger == nil || err == nil {
		return
	}
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
