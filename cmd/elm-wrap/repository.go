// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap"
	"github.com/elmwrap/wrap/mirror"
)

const repositoryShortHelp = "Registry mirroring"
const repositoryLongHelp = `
Repository mirror downloads the registry's archives into a
content-addressed layout:

    <out>/manifest.json
    <out>/archives/<sha1>.zip
    <out>/packages/<author>/<name>/<version>/{elm.json,docs.json}

Runs are incremental: versions recorded in the manifest or at or below
the resume marker in $WRAP_HOME/mirror-since.txt are skipped unless -full is
given. Failures land in the fail log, in blacklist format, and do not
stop the run.
`

type repositoryCommand struct{}

func (cmd *repositoryCommand) Name() string          { return "repository" }
func (cmd *repositoryCommand) Args() string          { return "mirror [flags]" }
func (cmd *repositoryCommand) ShortHelp() string     { return repositoryShortHelp }
func (cmd *repositoryCommand) LongHelp() string      { return repositoryLongHelp }
func (cmd *repositoryCommand) Hidden() bool          { return false }
func (cmd *repositoryCommand) Register(*flag.FlagSet) {}

func (cmd *repositoryCommand) Run(ctx *wrap.Ctx, args []string) error {
	if len(args) < 1 || args[0] != "mirror" {
		return errors.New("usage: elm-wrap repository mirror [flags]")
	}

	fs := flag.NewFlagSet("repository mirror", flag.ContinueOnError)
	var flags bulkFlags
	var packages stringsFlag
	outputDir := fs.String("output-dir", "./elm-mirror", "mirror output directory")
	manifestPath := fs.String("manifest", "", "manifest location (default <output-dir>/manifest.json)")
	full := fs.Bool("full", false, "reprocess everything, ignoring the resume marker and manifest")
	latestOnly := fs.Bool("latest-only", false, "only the newest version of each package")
	dryRun := fs.Bool("dry-run", false, "report what would be mirrored, fetch nothing")
	failLog := fs.String("fail-log", "", "append failures to this file in blacklist format")
	fs.Var(&packages, "package", "mirror only this author/name (repeatable)")
	fs.BoolVar(&flags.yes, "y", false, "assume yes, no confirmation prompt")
	fs.BoolVar(&flags.quiet, "q", false, "suppress progress output")
	fs.BoolVar(&flags.verbose, "v", false, "verbose output")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("repository mirror takes no positional arguments")
	}

	reg, err := ctx.LoadRegistry()
	if err != nil {
		return err
	}
	defer ctx.Close()

	bl, err := mirror.LoadBlacklist(ctx.BlacklistPath(), ctx.Err)
	if err != nil {
		return err
	}

	out, errLog := flags.loggers(ctx)

	if !*dryRun {
		ok, cerr := flags.confirm(ctx, fmt.Sprintf("mirror up to %d package versions into %s?",
			reg.TotalVersions(), *outputDir))
		if cerr != nil {
			return cerr
		}
		if !ok {
			return errors.New("aborted")
		}
	}

	b := &mirror.Builder{
		Reg:     reg,
		Fetcher: ctx.Fetcher(true),
		Cache:   ctx.Cache(),
		Opts: mirror.Options{
			OutputDir:    *outputDir,
			ManifestPath: *manifestPath,
			SincePath:    ctx.MirrorSincePath(),
			Full:         *full,
			LatestOnly:   *latestOnly,
			DryRun:       *dryRun,
			Packages:     packages,
			FailLog:      *failLog,
			Blacklist:    bl,
			MaxRetries:   ctx.Config.Mirror.MaxRetries,
			MinDelay:     time.Duration(ctx.Config.Mirror.MinDelaySeconds) * time.Second,
			MaxDelay:     time.Duration(ctx.Config.Mirror.MaxDelaySeconds) * time.Second,
			Source:       ctx.Config.Registry,
		},
		Out:  out,
		Err:  errLog,
		Seed: time.Now().UnixNano(),
	}

	res, err := b.Run(context.Background())
	if err != nil {
		return err
	}
	out.Printf("%d queued, %d mirrored, %d failed", res.Queued, res.Processed, res.Failed)
	if res.Failed > 0 {
		return errors.Errorf("%d package versions failed to mirror", res.Failed)
	}
	return nil
}
