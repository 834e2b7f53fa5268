// Package logging configures the go-logging backend shared by every package.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
)

const format = `%{time:2006-01-02 15:04:05} %{level:.5s} %{module:-8s} %{message}`

// MustGetLogger returns the module logger for a package.
func MustGetLogger(module string) *logging.Logger {
	return logging.MustGetLogger(module)
}

// Init receives the log level as a string, parses it and installs a leveled
// stdout backend. An invalid level string is returned as an error.
func Init(level string) error {
	return InitWriter(os.Stdout, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level string) error {
	baseBackend := logging.NewLogBackend(w, "", 0)
	backendFormatter := logging.NewBackendFormatter(baseBackend, logging.MustStringFormatter(format))

	backendLeveled := logging.AddModuleLevel(backendFormatter)
	logLevelCode, err := logging.LogLevel(strings.ToUpper(strings.TrimSpace(level)))
	if err != nil {
		return err
	}
	backendLeveled.SetLevel(logLevelCode, "")

	logging.SetBackend(backendLeveled)
	return nil
}
