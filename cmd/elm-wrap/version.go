// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"runtime"

	"github.com/elmwrap/wrap"
)

type versionCommand struct{}

func (cmd *versionCommand) Name() string          { return "version" }
func (cmd *versionCommand) Args() string          { return "" }
func (cmd *versionCommand) ShortHelp() string     { return "Show the elm-wrap version" }
func (cmd *versionCommand) LongHelp() string      { return "Show the elm-wrap version." }
func (cmd *versionCommand) Hidden() bool          { return false }
func (cmd *versionCommand) Register(*flag.FlagSet) {}

func (cmd *versionCommand) Run(ctx *wrap.Ctx, args []string) error {
	ctx.Out.Printf("elm-wrap %s (%s/%s)", wrap.Version, runtime.GOOS, runtime.GOARCH)
	return nil
}
