package config

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// ParseLevel accepts the logrus level names (debug, info, warn, error ...).
func ParseLevel(s string) (logrus.Level, error) {
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// NewLogger returns a JSON logger writing to w (stdout when nil).
func NewLogger(level string, w io.Writer) (*logrus.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stdout
	}
	logg := logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(lvl)
	logg.SetOutput(w)
	return logg, nil
}

// LogError logs err with the module/function it came from and optional data.
func LogError(logger logrus.FieldLogger, moduleName, funcName, context string, data any, err error) {
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
