// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap"
	"github.com/elmwrap/wrap/registry"
)

const removeShortHelp = "Remove a direct dependency"
const removeLongHelp = `
Remove drops a package from the project's dependencies without running the
solver. Indirect dependencies the package pulled in are left in place;
they disappear on the next full solve.
`

type removeCommand struct{}

func (cmd *removeCommand) Name() string          { return "remove" }
func (cmd *removeCommand) Args() string          { return "PACKAGE" }
func (cmd *removeCommand) ShortHelp() string     { return removeShortHelp }
func (cmd *removeCommand) LongHelp() string      { return removeLongHelp }
func (cmd *removeCommand) Hidden() bool          { return false }
func (cmd *removeCommand) Register(*flag.FlagSet) {}

func (cmd *removeCommand) Run(ctx *wrap.Ctx, args []string) error {
	if len(args) != 1 {
		return errors.New("remove takes exactly one PACKAGE argument")
	}
	n, err := registry.SplitName(args[0])
	if err != nil {
		return err
	}

	project, err := ctx.LoadProject(".")
	if err != nil {
		return err
	}
	plan, err := wrap.RemovePackage(project.Manifest, n)
	if err != nil {
		return err
	}
	ctx.Out.Println(plan)
	return project.WriteManifest()
}
