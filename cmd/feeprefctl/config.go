// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "feeprefctl.conf"
	defaultDBFilename     = "prefs.db"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "feeprefctl.log"
	defaultLogLevel       = "info"
	defaultBackend        = backendSQLite
	defaultDBTimeout      = 30 * time.Second

	backendSQLite   = "sqlite"
	backendPostgres = "postgres"
)

var (
	defaultAppDataDir = btcutil.AppDataDir("feeprefctl", false)
	defaultConfigFile = filepath.Join(
		defaultAppDataDir, defaultConfigFilename,
	)
	defaultDBPath = filepath.Join(defaultAppDataDir, defaultDBFilename)
	defaultLogDir = filepath.Join(defaultAppDataDir, defaultLogDirname)

	// errNoSQLitePath is returned when the sqlite backend is selected
	// without a database path.
	errNoSQLitePath = errors.New("sqlite backend requires --sqlite.path")

	// errNoDSN is returned when the postgres backend is selected without a
	// connection string.
	errNoDSN = errors.New("postgres backend requires --postgres.dsn")
)

type sqliteConfig struct {
	Path string `long:"path" description:"Path to the SQLite database file"`
}

type postgresConfig struct {
	DSN string `long:"dsn" description:"PostgreSQL connection string"`
}

// config defines the configuration options for feeprefctl.
type config struct {
	ConfigFile string        `short:"C" long:"configfile" description:"Path to configuration file"`
	Backend    string        `long:"backend" description:"Database backend" choice:"sqlite" choice:"postgres"`
	DBTimeout  time.Duration `long:"dbtimeout" description:"Timeout for each database command"`
	LogDir     string        `long:"logdir" description:"Directory to log output; empty logs to stderr only"`
	DebugLevel string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	SQLite   sqliteConfig   `group:"SQLite" namespace:"sqlite"`
	Postgres postgresConfig `group:"PostgreSQL" namespace:"postgres"`
}

// defaultConfig returns a config populated with default values.
func defaultConfig() config {
	return config{
		ConfigFile: defaultConfigFile,
		Backend:    defaultBackend,
		DBTimeout:  defaultDBTimeout,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		SQLite: sqliteConfig{
			Path: defaultDBPath,
		},
	}
}

// cleanAndExpandPath expands environment variables and a leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}

// validate checks the parsed config and normalizes its paths.
func (c *config) validate() error {
	c.ConfigFile = cleanAndExpandPath(c.ConfigFile)
	c.LogDir = cleanAndExpandPath(c.LogDir)
	c.SQLite.Path = cleanAndExpandPath(c.SQLite.Path)

	if c.DBTimeout <= 0 {
		return fmt.Errorf("invalid dbtimeout %v", c.DBTimeout)
	}

	switch c.Backend {
	case backendSQLite:
		if c.SQLite.Path == "" {
			return errNoSQLitePath
		}

	case backendPostgres:
		if c.Postgres.DSN == "" {
			return errNoDSN
		}

	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	return parseAndSetDebugLevels(c.DebugLevel)
}

// loadConfig pre-parses the command line for the config file path and loads
// it when present. Options on the command line override the file. The
// returned parser is ready to execute args.
func loadConfig(cfg *config, a *app, args []string) (*flags.Parser, error) {
	// Pre-parse the command line options to see if an alternative config
	// file was specified.
	preCfg := *cfg
	preParser := flags.NewParser(&preCfg, flags.IgnoreUnknown)
	if _, err := preParser.ParseArgs(args); err != nil {
		return nil, err
	}

	parser, err := newParser(cfg, a)
	if err != nil {
		return nil, err
	}

	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	switch {
	// A missing default config file is fine. An explicit one must exist.
	case errors.Is(err, os.ErrNotExist) &&
		preCfg.ConfigFile == defaultConfigFile:

	case err != nil:
		return nil, fmt.Errorf("load config file %s: %w", configFile,
			err)
	}

	return parser, nil
}
