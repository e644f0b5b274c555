// Copyright (C) The Varda Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"flag"
	"fmt"
	"io"
)

// activateCmd flips a sample's active state through the guarded
// Manager.Activate/Deactivate transactions of §4.9.
type activateCmd struct {
	active bool
}

func (c *activateCmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	flags.SetOutput(stderr)
	sampleID := flags.Int64("sample", 0, "sample `id`")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *sampleID == 0 {
		fmt.Fprintln(stderr, "usage: -sample <id>")
		return 2
	}

	e, err := newEnv()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer e.close()
	ctx := backgroundContext()

	if c.active {
		err = e.manager.Activate(ctx, *sampleID)
	} else {
		err = e.manager.Deactivate(ctx, *sampleID)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "sample %d active=%v\n", *sampleID, c.active)
	return 0
}
