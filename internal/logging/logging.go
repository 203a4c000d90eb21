// Package logging builds the driver logger from connection settings.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/SimonWaldherr/tsodbc/internal/config"
)

// Rotation limits for driver log files.
const (
	maxLogSizeMB  = 20
	maxLogBackups = 5
	maxLogAgeDays = 14
)

// New returns a logger honouring LogLevel and LogOutput. With LogOutput set,
// records go to a rotating file tsodbc_<yyyymmdd>.log in that directory;
// otherwise to stderr. LogLevel OFF discards everything.
func New(c *config.Config) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	if c == nil {
		l.SetLevel(logrus.WarnLevel)
		return l
	}
	l.SetLevel(Level(c.LogLevel))
	switch {
	case c.LogLevel == config.LogOff:
		l.SetOutput(io.Discard)
	case c.LogOutput != "":
		l.SetOutput(fileWriter(c.LogOutput, time.Now()))
	default:
		l.SetOutput(os.Stderr)
	}
	return l
}

// Level maps the driver log level onto logrus levels.
func Level(lv config.LogLevel) logrus.Level {
	switch lv {
	case config.LogError:
		return logrus.ErrorLevel
	case config.LogWarning:
		return logrus.WarnLevel
	case config.LogInfo:
		return logrus.InfoLevel
	case config.LogDebug:
		return logrus.DebugLevel
	default:
		return logrus.PanicLevel
	}
}

// FileName returns the log file name used for day t.
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, "tsodbc_"+t.Format("20060102")+".log")
}

func fileWriter(dir string, now time.Time) io.Writer {
	return &lumberjack.Logger{
		Filename:   FileName(dir, now),
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
	}
}

// Discard returns a logger that drops everything. Packages use it when the
// caller did not supply one.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}
