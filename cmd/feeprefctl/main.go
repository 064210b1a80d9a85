// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// feeprefctl manages the fee level preferences that the transaction engines
// read when a source is initialised.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout)
	cancel()

	var flagsErr *flags.Error
	switch {
	case err == nil:

	case errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp:
		fmt.Fprintln(os.Stdout, err)

	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses args, loading the config file first, and executes the selected
// command with its output written to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	cfg := defaultConfig()
	a := &app{ctx: ctx, cfg: &cfg, out: out}

	parser, err := loadConfig(&cfg, a, args)
	if err != nil {
		return err
	}

	_, err = parser.ParseArgs(args)

	return err
}
