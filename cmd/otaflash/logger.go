package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// logrusLogger adapts logrus to bootloader.Logger.
type logrusLogger struct {
	log *logrus.Logger
}

func (l logrusLogger) Debug(msg string, kv ...interface{}) {
	l.log.WithFields(fields(kv)).Debug(msg)
}

func (l logrusLogger) Info(msg string, kv ...interface{}) {
	l.log.WithFields(fields(kv)).Info(msg)
}

func (l logrusLogger) Warn(msg string, kv ...interface{}) {
	l.log.WithFields(fields(kv)).Warn(msg)
}

func (l logrusLogger) Error(msg string, kv ...interface{}) {
	l.log.WithFields(fields(kv)).Error(msg)
}

// fields pairs up keys and values. A trailing key without a value is kept
// under "extra".
func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	if len(kv)%2 == 1 {
		f["extra"] = kv[len(kv)-1]
	}
	return f
}
