package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

//Fields is an alias so callers don't need to import logrus
type Fields = logrus.Fields

//Initialize sets up the package logger from the options
func Initialize(cfg Options) error {
	if err := cfg.Verify(); err != nil {
		return err
	}

	switch strings.ToUpper(cfg.Level) {
	case LevelDebug:
		logger.Level = logrus.DebugLevel
	case LevelInfo:
		logger.Level = logrus.InfoLevel
	case LevelWarn:
		logger.Level = logrus.WarnLevel
	case LevelError:
		logger.Level = logrus.ErrorLevel
	default:
		logger.Level = logrus.InfoLevel
	}

	if cfg.Format == FormatJSON {
		logger.Formatter = &logrus.JSONFormatter{}
	} else {
		logger.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}

	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			return fmt.Errorf("failed to open log file for writing: %w", err)
		}
		logger.Out = io.MultiWriter(os.Stdout, f)
	} else {
		logger.Out = os.Stdout
	}

	return nil
}

//Get returns the underlying logrus logger object
func Get() *logrus.Logger {
	return logger
}

//WithFields starts a structured entry
func WithFields(f Fields) *logrus.Entry {
	return logger.WithFields(f)
}

//WithError starts an entry carrying err
func WithError(err error) *logrus.Entry {
	return logger.WithError(err)
}

//Debugf logs a debug message using formatting like fmt.Printf
func Debugf(str string, args ...interface{}) {
	logger.Debugf(str, args...)
}

//Info logs an info message
func Info(args ...interface{}) {
	logger.Info(args...)
}

//Infof logs an info message using formatting like fmt.Printf
func Infof(str string, args ...interface{}) {
	logger.Infof(str, args...)
}

//Warnf logs a warning message using formatting like fmt.Printf
func Warnf(str string, args ...interface{}) {
	logger.Warnf(str, args...)
}

//Errorf logs an error message using formatting like fmt.Printf
func Errorf(str string, args ...interface{}) {
	logger.Errorf(str, args...)
}

//Err logs an error message from an error object, the last
//argument being the error.
//	log.Err("failed on id '%s'", id, err)
func Err(msg string, args ...interface{}) {
	logger.WithFields(logrus.Fields{
		"err": args[len(args)-1],
	}).Error(fmt.Sprintf(msg, args[:len(args)-1]...))
}

//Fatalf logs then exits the process
func Fatalf(str string, args ...interface{}) {
	logger.Fatalf(str, args...)
}
