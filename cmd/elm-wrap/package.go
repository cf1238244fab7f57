// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap"
	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/fetch"
	"github.com/elmwrap/wrap/mirror"
	"github.com/elmwrap/wrap/registry"
)

const packageShortHelp = "Package cache operations"
const packageLongHelp = `
Package exposes cache maintenance:

    elm-wrap package cache missing [PATH] [-from-github|-from-registry] [-y] [-q] [-v]
        Fetch every package the project at PATH pins but the cache lacks.

    elm-wrap package cache download-all [-yes] [-quiet] [-verbose] [-dry-run]
                                        [-latest-only] [-fail-log FILE]
        Walk the whole registry and fill the cache, refetching broken
        residue.
`

type packageCommand struct{}

func (cmd *packageCommand) Name() string          { return "package" }
func (cmd *packageCommand) Args() string          { return "cache <missing|download-all> [flags]" }
func (cmd *packageCommand) ShortHelp() string     { return packageShortHelp }
func (cmd *packageCommand) LongHelp() string      { return packageLongHelp }
func (cmd *packageCommand) Hidden() bool          { return false }
func (cmd *packageCommand) Register(*flag.FlagSet) {}

func (cmd *packageCommand) Run(ctx *wrap.Ctx, args []string) error {
	if len(args) < 2 || args[0] != "cache" {
		return errors.New("usage: elm-wrap package cache <missing|download-all> [flags]")
	}
	switch args[1] {
	case "missing":
		return cmd.runMissing(ctx, args[2:])
	case "download-all":
		return cmd.runDownloadAll(ctx, args[2:])
	}
	return errors.Errorf("unknown package cache operation %q", args[1])
}

func (cmd *packageCommand) runMissing(ctx *wrap.Ctx, args []string) error {
	fs := flag.NewFlagSet("package cache missing", flag.ContinueOnError)
	var flags bulkFlags
	fromGitHub := fs.Bool("from-github", false, "clone packages from GitHub instead of the registry")
	fromRegistry := fs.Bool("from-registry", false, "download packages from the registry site (default)")
	fs.BoolVar(&flags.yes, "y", false, "assume yes, no confirmation prompt")
	fs.BoolVar(&flags.quiet, "q", false, "suppress progress output")
	fs.BoolVar(&flags.verbose, "v", false, "verbose output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fromGitHub && *fromRegistry {
		return errors.New("-from-github and -from-registry are mutually exclusive")
	}

	path := "."
	if rest := fs.Args(); len(rest) == 1 {
		path = rest[0]
	} else if len(rest) > 1 {
		return errors.New("package cache missing takes at most one PATH")
	}

	project, err := ctx.LoadProject(path)
	if err != nil {
		return err
	}
	if project.Manifest.Kind != wrap.Application {
		return errors.New("package cache missing needs an application project with pinned versions")
	}

	out, _ := flags.loggers(ctx)
	c := ctx.Cache()

	type missing struct {
		author, name string
		v            elmver.Version
	}
	var todo []missing
	locked := project.Manifest.Locked()
	for _, pkg := range sortedPackages(locked) {
		n, err := registry.SplitName(pkg)
		if err != nil {
			return err
		}
		v := locked[pkg]
		if c.FullyDownloaded(n.Author, n.Name, v) {
			continue
		}
		todo = append(todo, missing{author: n.Author, name: n.Name, v: v})
	}

	if len(todo) == 0 {
		out.Println("all packages are present")
		return nil
	}
	ok, err := flags.confirm(ctx, fmt.Sprintf("download %d missing packages?", len(todo)))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("aborted")
	}

	var github *fetch.GitHubSource
	var fetcher *fetch.Fetcher
	if *fromGitHub {
		github = &fetch.GitHubSource{Cache: c, Offline: ctx.Config.Offline}
	} else {
		fetcher = ctx.Fetcher(false)
	}

	failed := 0
	for _, m := range todo {
		var err error
		if github != nil {
			err = github.FetchPackage(m.author, m.name, m.v)
		} else {
			err = fetcher.FetchPackage(context.Background(), m.author, m.name, m.v)
		}
		if err != nil {
			failed++
			ctx.Err.Printf("failed: %s/%s %s: %s", m.author, m.name, m.v, err)
			continue
		}
		out.Printf("fetched %s/%s %s", m.author, m.name, m.v)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d packages failed to download", failed, len(todo))
	}
	return nil
}

func (cmd *packageCommand) runDownloadAll(ctx *wrap.Ctx, args []string) error {
	fs := flag.NewFlagSet("package cache download-all", flag.ContinueOnError)
	var flags bulkFlags
	dryRun := fs.Bool("dry-run", false, "report what would be downloaded, fetch nothing")
	latestOnly := fs.Bool("latest-only", false, "only the newest version of each package")
	failLog := fs.String("fail-log", "", "append failures to this file in blacklist format")
	fs.BoolVar(&flags.yes, "yes", false, "assume yes, no confirmation prompt")
	fs.BoolVar(&flags.quiet, "quiet", false, "suppress progress output")
	fs.BoolVar(&flags.verbose, "verbose", false, "verbose output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(fs.Args()) != 0 {
		return errors.New("package cache download-all takes no arguments")
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
		ok, cerr := flags.confirm(ctx, fmt.Sprintf("download up to %d package versions?", reg.TotalVersions()))
		if cerr != nil {
			return cerr
		}
		if !ok {
			return errors.New("aborted")
		}
	}

	d := &mirror.Downloader{
		Reg:     reg,
		Fetcher: ctx.Fetcher(true),
		Cache:   ctx.Cache(),
		Opts: mirror.DownloadOptions{
			DryRun:     *dryRun,
			LatestOnly: *latestOnly,
			FailLog:    *failLog,
			Blacklist:  bl,
			MaxRetries: ctx.Config.Mirror.MaxRetries,
		},
		Out: out,
		Err: errLog,
	}

	res, err := d.Run(context.Background())
	if err != nil {
		return err
	}
	out.Printf("%d queued, %d downloaded, %d failed", res.Queued, res.Processed, res.Failed)
	if res.Failed > 0 {
		return errors.Errorf("%d package versions failed to download", res.Failed)
	}
	return nil
}
