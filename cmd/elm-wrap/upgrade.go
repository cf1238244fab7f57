// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap"
)

const upgradeShortHelp = "Upgrade every dependency"
const upgradeLongHelp = `
Upgrade moves the project's dependencies to their newest versions within
each package's current major version, test dependencies included. With
-major, packages may cross major versions while test dependencies stay
pinned.
`

type upgradeCommand struct {
	major  bool
	dryRun bool
}

func (cmd *upgradeCommand) Name() string      { return "upgrade" }
func (cmd *upgradeCommand) Args() string      { return "[-major]" }
func (cmd *upgradeCommand) ShortHelp() string { return upgradeShortHelp }
func (cmd *upgradeCommand) LongHelp() string  { return upgradeLongHelp }
func (cmd *upgradeCommand) Hidden() bool      { return false }

func (cmd *upgradeCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.major, "major", false, "allow upgrades across major versions")
	fs.BoolVar(&cmd.dryRun, "dry-run", false, "plan only, change nothing")
}

func (cmd *upgradeCommand) Run(ctx *wrap.Ctx, args []string) error {
	if len(args) != 0 {
		return errors.New("upgrade takes no arguments")
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

	strategy := wrap.UpgradableWithinMajor
	if cmd.major {
		strategy = wrap.CrossMajorForTarget
	}
	res, err := planner.Plan(project.Manifest, nil, []wrap.Strategy{strategy})
	if err != nil {
		return err
	}

	if res.Plan.Empty() {
		ctx.Out.Println("everything is already up to date")
		return nil
	}
	ctx.Out.Println(res.Plan)
	if cmd.dryRun {
		return nil
	}

	if err := planner.Apply(context.Background(), res.Plan); err != nil {
		return err
	}
	wrap.Commit(project.Manifest, nil, res)
	return project.WriteManifest()
}
