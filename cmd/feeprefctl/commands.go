// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/btcsuite/txengine/feeprefs"
	"github.com/btcsuite/txengine/pkg/money"
	"github.com/btcsuite/txengine/txengine"
	"github.com/jessevdk/go-flags"
)

// errUnexpectedArgs is returned when a command gets trailing arguments.
var errUnexpectedArgs = errors.New("unexpected arguments")

// app carries the state shared by every command: the parsed config, the
// open database and where command output goes.
type app struct {
	ctx context.Context
	cfg *config
	out io.Writer

	db      *sql.DB
	store   feeprefs.Store
	migrate func(*sql.DB) (uint, error)
}

// newParser builds the command line parser over cfg with every command
// bound to a.
func newParser(cfg *config, a *app) (*flags.Parser, error) {
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	parser.CommandHandler = a.runCommand

	commands := []struct {
		name  string
		short string
		long  string
		data  any
	}{{
		name:  "migrate",
		short: "Apply the schema migrations",
		long: "Brings the fee preference schema up to the latest " +
			"version and prints it.",
		data: &migrateCommand{app: a},
	}, {
		name:  "get",
		short: "Print the fee level saved for an asset",
		long: "Prints the saved fee level of ASSET, or none when " +
			"nothing has been saved.",
		data: &getCommand{app: a},
	}, {
		name:  "set",
		short: "Save the fee level for an asset",
		long: "Saves LEVEL (none, regular, priority or custom) as " +
			"the fee level of ASSET.",
		data: &setCommand{app: a},
	}, {
		name:  "list",
		short: "List every saved fee level",
		long:  "Lists every saved fee level ordered by asset.",
		data:  &listCommand{app: a},
	}}

	for _, c := range commands {
		_, err := parser.AddCommand(c.name, c.short, c.long, c.data)
		if err != nil {
			return nil, err
		}
	}

	return parser, nil
}

// runCommand validates the config, sets up logging and the store, and then
// executes cmd.
func (a *app) runCommand(cmd flags.Commander, args []string) error {
	if cmd == nil {
		return nil
	}

	if err := a.cfg.validate(); err != nil {
		return err
	}

	if a.cfg.LogDir != "" {
		logFile := filepath.Join(a.cfg.LogDir, defaultLogFilename)
		if err := initLogRotator(logFile); err != nil {
			return err
		}
		defer closeLogRotator()
	}

	if err := a.openStore(); err != nil {
		return err
	}
	defer a.closeStore()

	return cmd.Execute(args)
}

// openStore opens the configured backend.
func (a *app) openStore() error {
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.DBTimeout)
	defer cancel()

	switch a.cfg.Backend {
	case backendSQLite:
		dir := filepath.Dir(a.cfg.SQLite.Path)
		if err := os.MkdirAll(dir, logDirPerm); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}

		db, err := feeprefs.OpenSQLite(a.cfg.SQLite.Path)
		if err != nil {
			return err
		}

		store, err := feeprefs.NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return err
		}

		a.db, a.store = db, store
		a.migrate = feeprefs.ApplySQLiteMigrations

	case backendPostgres:
		db, err := feeprefs.OpenPostgres(ctx, a.cfg.Postgres.DSN)
		if err != nil {
			return err
		}

		store, err := feeprefs.NewPostgresStore(db)
		if err != nil {
			_ = db.Close()
			return err
		}

		a.db, a.store = db, store
		a.migrate = feeprefs.ApplyPostgresMigrations

	default:
		return fmt.Errorf("unknown backend %q", a.cfg.Backend)
	}

	log.Debugf("Opened %s fee preference store", a.cfg.Backend)

	return nil
}

func (a *app) closeStore() {
	if a.db == nil {
		return
	}

	if err := a.db.Close(); err != nil {
		log.Errorf("Unable to close database: %v", err)
	}

	a.db, a.store = nil, nil
}

// withTimeout returns a context bounded by the configured db timeout.
func (a *app) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(a.ctx, a.cfg.DBTimeout)
}

type migrateCommand struct {
	app *app
}

// Execute applies the migrations of the configured backend.
func (c *migrateCommand) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: %v", errUnexpectedArgs, args)
	}

	version, err := c.app.migrate(c.app.db)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(c.app.out, "schema version %d\n", version)

	return err
}

type getCommand struct {
	Args struct {
		Asset string `positional-arg-name:"asset"`
	} `positional-args:"yes" required:"yes"`

	app *app
}

// Execute prints the saved level of the asset.
func (c *getCommand) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: %v", errUnexpectedArgs, args)
	}

	asset, err := money.AssetByCode(c.Args.Asset)
	if err != nil {
		return err
	}

	ctx, cancel := c.app.withTimeout()
	defer cancel()

	level, err := c.app.store.FeeLevelFor(ctx, asset)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(
		c.app.out, level.UnwrapOr(txengine.FeeLevelNone),
	)

	return err
}

type setCommand struct {
	Args struct {
		Asset string `positional-arg-name:"asset"`
		Level string `positional-arg-name:"level"`
	} `positional-args:"yes" required:"yes"`

	app *app
}

// Execute saves the level of the asset.
func (c *setCommand) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: %v", errUnexpectedArgs, args)
	}

	asset, err := money.AssetByCode(c.Args.Asset)
	if err != nil {
		return err
	}

	level, err := txengine.ParseFeeLevel(c.Args.Level)
	if err != nil {
		return err
	}

	ctx, cancel := c.app.withTimeout()
	defer cancel()

	if err := c.app.store.SaveFeeLevel(ctx, asset, level); err != nil {
		return err
	}

	log.Infof("Fee level of %v set to %v", asset, level)

	return nil
}

type listCommand struct {
	app *app
}

// Execute prints every saved preference as a table.
func (c *listCommand) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: %v", errUnexpectedArgs, args)
	}

	ctx, cancel := c.app.withTimeout()
	defer cancel()

	prefs, err := c.app.store.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.app.out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ASSET\tLEVEL\tUPDATED")
	for _, pref := range prefs {
		fmt.Fprintf(w, "%s\t%v\t%s\n", pref.Asset, pref.Level,
			pref.UpdatedAt.UTC().Format(time.RFC3339))
	}

	return w.Flush()
}
