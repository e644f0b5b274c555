// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Command varda is the library's command-line front end: a thin
// flag-based multi-command dispatcher over the internal packages,
// playing the same role the teacher's cmd.go handler map does (minus the
// Arvados container-submission half, which has no equivalent here: see
// DESIGN.md). It is used for local, single-process operation and as the
// worker process that drains the task queue; the HTTP/JSON surface named
// in spec §6 is out of scope and would be a second, separate front end
// over the same internal packages.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

// handler mirrors the teacher's RunCommand contract so each subcommand can
// be tested in isolation with swapped-in stdin/stdout/stderr.
type handler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

type handlerFunc func(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int

func (f handlerFunc) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return f(prog, args, stdin, stdout, stderr)
}

var commands = map[string]handler{
	"version":          handlerFunc(versionCommand),
	"serve":            &serveCmd{},
	"import-variation": &importCmd{kind: "variation"},
	"import-coverage":  &importCmd{kind: "coverage"},
	"annotate":         &annotateCmd{},
	"activate":         &activateCmd{active: true},
	"deactivate":       &activateCmd{active: false},
}

func versionCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fmt.Fprintln(stdout, "varda (unreleased)")
	return 0
}

func main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.StandardLogger().Formatter = &log.TextFormatter{DisableTimestamp: true}
	}
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <command> [args]\n", os.Args[0])
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", os.Args[0], os.Args[1])
		os.Exit(2)
	}
	os.Exit(cmd.RunCommand(os.Args[0], os.Args[2:], os.Stdin, os.Stdout, os.Stderr))
}

// backgroundContext is shared by every subcommand; none of them currently
// need to react to a signal, so it's never cancelled short of process exit.
func backgroundContext() context.Context {
	return context.Background()
}
