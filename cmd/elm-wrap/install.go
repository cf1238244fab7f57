// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"strings"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap"
	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/registry"
)

const installShortHelp = "Install a package, or everything the project already pins"
const installLongHelp = `
Install resolves and downloads dependencies. With no argument, the
project's pinned versions are verified and fetched. With a PACKAGE
argument the package is added, trying the least disruptive strategy first
and escalating only when the solver finds no solution: exact pins, then
upgradable indirect dependencies, then minor upgrades, then a cross-major
change of the requested package.

An explicit PACKAGE@VERSION forces that version, cascading as far as
needed to honor it.
`

type installCommand struct {
	dryRun bool
}

func (cmd *installCommand) Name() string      { return "install" }
func (cmd *installCommand) Args() string      { return "[PACKAGE[@VERSION]]" }
func (cmd *installCommand) ShortHelp() string { return installShortHelp }
func (cmd *installCommand) LongHelp() string  { return installLongHelp }
func (cmd *installCommand) Hidden() bool      { return false }

func (cmd *installCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.dryRun, "dry-run", false, "plan only, change nothing")
}

// parseRequest splits "author/name[@x.y.z]".
func parseRequest(arg string) (*wrap.Request, error) {
	spec := arg
	var version *elmver.Version
	if at := strings.IndexByte(arg, '@'); at >= 0 {
		v, err := elmver.ParseVersion(arg[at+1:])
		if err != nil {
			return nil, err
		}
		version = &v
		spec = arg[:at]
	}
	n, err := registry.SplitName(spec)
	if err != nil {
		return nil, err
	}
	return &wrap.Request{Name: n, Version: version}, nil
}

func (cmd *installCommand) Run(ctx *wrap.Ctx, args []string) error {
	if len(args) > 1 {
		return errors.New("install takes at most one PACKAGE argument")
	}

	var req *wrap.Request
	if len(args) == 1 {
		var err error
		if req, err = parseRequest(args[0]); err != nil {
			return err
		}
	}

	project, err := ctx.LoadProject(".")
	if err != nil {
		return err
	}
	reg, err := ctx.LoadRegistry()
	if err != nil {
		return err
	}
	defer ctx.Close()

	planner := &wrap.Planner{
		Registry: reg,
		Fetcher:  ctx.Fetcher(false),
	}
	if ctx.Verbose {
		planner.Trace = ctx.Err
	}

	res, err := planner.Plan(project.Manifest, req, wrap.InstallCascade)
	if err != nil {
		return err
	}

	if res.Plan.Empty() {
		ctx.Out.Println("nothing to change")
	} else {
		ctx.Out.Println(res.Plan)
	}
	if cmd.dryRun {
		return nil
	}

	// Fetch the whole assignment, so an argument-less install repairs a
	// cache missing packages the project already pins.
	if err := planner.Materialize(context.Background(), res.Selected); err != nil {
		return err
	}
	if res.Plan.Empty() {
		return nil
	}
	wrap.Commit(project.Manifest, req, res)
	return project.WriteManifest()
}
