package scsi

import (
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the logger used by this package and the transports.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	logger = l
}

// Logger returns the package logger. Transports log through it.
func Logger() logrus.FieldLogger {
	return logger
}
