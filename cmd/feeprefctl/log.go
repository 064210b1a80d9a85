// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/txengine/exrates"
	"github.com/btcsuite/txengine/feeprefs"
	"github.com/btcsuite/txengine/quote"
	"github.com/btcsuite/txengine/quote/wsquote"
	"github.com/btcsuite/txengine/txengine"
	"github.com/jrick/logrotate/rotator"
)

const (
	logFileThresholdKB = 10 * 1024
	logFileMaxRolls    = 3
	logDirPerm         = 0o700
)

// logWriter implements an io.Writer that outputs to stderr and, once the
// rotator is initialized, to the log file.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	_, _ = os.Stderr.Write(p)
	if logRotatorPipe != nil {
		_, _ = logRotatorPipe.Write(p)
	}

	return len(p), nil
}

// Loggers per subsystem. A single backend logger is created and all subsystem
// loggers created from it will write to the backend. When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Output only reaches the log file once initLogRotator has been called.
var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	// logRotatorPipe is the write end of the pipe feeding logRotator.
	logRotatorPipe *io.PipeWriter

	log     = backendLog.Logger("FPCL")
	txenLog = backendLog.Logger("TXEN")
	fprfLog = backendLog.Logger("FPRF")
	quotLog = backendLog.Logger("QUOT")
	wsqtLog = backendLog.Logger("WSQT")
	exrtLog = backendLog.Logger("EXRT")
)

// Initialize package-global logger variables.
func init() {
	txengine.UseLogger(txenLog)
	feeprefs.UseLogger(fprfLog)
	quote.UseLogger(quotLog)
	wsquote.UseLogger(wsqtLog)
	exrates.UseLogger(exrtLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"FPCL": log,
	"TXEN": txenLog,
	"FPRF": fprfLog,
	"QUOT": quotLog,
	"WSQT": wsqtLog,
	"EXRT": exrtLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile and
// create roll files in the same directory. It must be called before the
// package-global log rotator variables are used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, logDirPerm); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	r, err := rotator.New(
		logFile, logFileThresholdKB, false, logFileMaxRolls,
	)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		_ = r.Run(pr)
	}()

	logRotator = r
	logRotatorPipe = pw

	return nil
}

// closeLogRotator flushes and closes the log file, if one is open.
func closeLogRotator() {
	if logRotatorPipe != nil {
		_ = logRotatorPipe.Close()
		logRotatorPipe = nil
	}

	if logRotator != nil {
		_ = logRotator.Close()
		logRotator = nil
	}
}

// setLogLevel sets the logging level for provided subsystem. Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, level btclog.Level) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.
func setLogLevels(level btclog.Level) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, level)
	}
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	sort.Strings(subsystems)

	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly. An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimiters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") &&
		!strings.Contains(debugLevel, "=") {

		level, ok := btclog.LevelFromString(debugLevel)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", debugLevel)
		}

		setLogLevels(level)

		return nil
	}

	// Split the specified string into subsystem/level pairs while
	// detecting issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains "+
				"an invalid subsystem/level pair [%v]",
				logLevelPair)
		}

		fields := strings.Split(logLevelPair, "=")
		subsysID, levelStr := fields[0], fields[1]

		if _, exists := subsystemLoggers[subsysID]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsystems %v", subsysID,
				supportedSubsystems())
		}

		level, ok := btclog.LevelFromString(levelStr)
		if !ok {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", levelStr)
		}

		setLogLevel(subsysID, level)
	}

	return nil
}
