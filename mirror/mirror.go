// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mirror

import (
	"context"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	flock "github.com/theckman/go-flock"

	"github.com/elmwrap/wrap/cache"
	"github.com/elmwrap/wrap/fetch"
	"github.com/elmwrap/wrap/internal/fs"
	"github.com/elmwrap/wrap/registry"
)

// Options tune one mirror run.
type Options struct {
	OutputDir    string
	ManifestPath string // defaults to <OutputDir>/manifest.json
	SincePath    string // resume marker; empty disables resume handling

	Full       bool // reprocess everything, ignoring marker and manifest
	LatestOnly bool
	DryRun     bool

	Packages []string // "author/name" filters; empty means the whole registry
	FailLog  string

	Blacklist *Blacklist

	MaxRetries     int
	InitialBackoff time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration

	// Source is recorded in the manifest, conventionally the registry URL
	// the archives came from.
	Source string
}

func (o *Options) fill() {
	if o.ManifestPath == "" {
		o.ManifestPath = filepath.Join(o.OutputDir, "manifest.json")
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MinDelay == 0 {
		o.MinDelay = DefaultMinDelay
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.Blacklist == nil {
		o.Blacklist = &Blacklist{packages: map[string]bool{}, versions: map[string]bool{}}
	}
}

// Result summarizes a bulk run.
type Result struct {
	Queued    int
	Processed int
	Failed    int
}

// Builder mirrors the registry into a content-addressed layout:
// archives/<hash>.zip plus per-version metadata, described by a manifest.
type Builder struct {
	Reg     *registry.Registry
	Fetcher *fetch.Fetcher
	Cache   *cache.Cache
	Opts    Options

	Out *log.Logger
	Err *log.Logger

	// Sleep and Now are injectable for tests; defaults are the real
	// clock.
	Sleep func(time.Duration)
	Now   func() time.Time
	Seed  int64
}

// Run executes one mirror pass. Per-item failures are logged and do not
// stop the run; the error return covers setup and teardown failures only.
func (b *Builder) Run(ctx context.Context) (Result, error) {
	b.Opts.fill()
	sleep := b.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	now := b.Now
	if now == nil {
		now = time.Now
	}
	rng := rand.New(rand.NewSource(b.Seed))

	var res Result

	if err := fs.EnsureDir(b.Opts.OutputDir, 0755); err != nil {
		return res, err
	}

	// One mirror process per output directory.
	lock := flock.NewFlock(filepath.Join(b.Opts.OutputDir, ".elm-wrap-mirror.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return res, errors.Wrap(err, "locking mirror output")
	}
	if !locked {
		return res, errors.Errorf("another mirror run holds %s", b.Opts.OutputDir)
	}
	defer lock.Unlock()

	manifest, err := LoadManifest(b.Opts.ManifestPath)
	if err != nil {
		return res, err
	}

	since := 0
	if b.Opts.SincePath != "" && !b.Opts.Full {
		if since, err = readSince(b.Opts.SincePath); err != nil {
			return res, err
		}
	}

	var queue []item
	err = scan(b.Reg, b.Opts.Packages, b.Opts.LatestOnly, func(it item) bool {
		if b.Opts.Blacklist.Skips(it.Author, it.Name, it.Version) {
			return true
		}
		if !b.Opts.Full {
			if it.Seq <= since {
				return true
			}
			if manifest.Has(it.Author, it.Name, it.Version.String()) {
				return true
			}
		}
		queue = append(queue, it)
		return true
	})
	if err != nil {
		return res, err
	}
	res.Queued = len(queue)

	if b.Opts.DryRun {
		for _, it := range queue {
			b.Out.Printf("would mirror %s", it)
		}
		return res, nil
	}

	failLog, err := openFailLog(b.Opts.FailLog)
	if err != nil {
		return res, err
	}
	defer failLog.close()

	maxSeq := since
	for i, it := range queue {
		if ctx.Err() != nil {
			break
		}
		if err := b.mirrorOne(ctx, it, manifest, sleep); err != nil {
			res.Failed++
			b.Err.Printf("failed: %s: %s", it, err)
			failLog.add(it, err)
			continue
		}
		res.Processed++
		if it.Seq > maxSeq {
			maxSeq = it.Seq
		}
		if i < len(queue)-1 {
			pause(rng, sleep, b.Opts.MinDelay, b.Opts.MaxDelay)
		}
	}

	if err := manifest.Write(b.Opts.ManifestPath, b.Opts.Source, now()); err != nil {
		return res, err
	}
	if b.Opts.SincePath != "" && maxSeq > since {
		if err := writeSince(b.Opts.SincePath, maxSeq); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (b *Builder) mirrorOne(ctx context.Context, it item, manifest *Manifest, sleep func(time.Duration)) error {
	var ep fetch.Endpoint

	err := withRetry(ctx, b.Opts.MaxRetries, b.Opts.InitialBackoff, sleep, func(actx context.Context) error {
		var ferr error
		ep, ferr = b.Fetcher.FetchMetadata(actx, it.Author, it.Name, it.Version)
		return ferr
	})
	if err != nil {
		return err
	}

	archivePath := filepath.Join(b.Opts.OutputDir, "archives", ep.Hash+".zip")
	haveArchive, err := fs.IsRegular(archivePath)
	if err != nil {
		return err
	}
	if !haveArchive {
		var tmp string
		err = withRetry(ctx, b.Opts.MaxRetries, b.Opts.InitialBackoff, sleep, func(actx context.Context) error {
			// A failed attempt can leave a partial package directory;
			// clear it so the retry starts clean.
			if b.Cache.Status(it.Author, it.Name, it.Version) == cache.Broken {
				if rerr := b.Cache.Remove(it.Author, it.Name, it.Version); rerr != nil {
					return rerr
				}
				if _, rerr := b.Fetcher.FetchMetadata(actx, it.Author, it.Name, it.Version); rerr != nil {
					return rerr
				}
			}
			var derr error
			tmp, derr = b.Fetcher.DownloadArchive(actx, ep)
			return derr
		})
		if err != nil {
			return err
		}
		defer os.Remove(tmp)

		if err := fs.CopyFile(tmp, archivePath); err != nil {
			return err
		}
	}

	outDir := filepath.Join(b.Opts.OutputDir, "packages", it.Author, it.Name, it.Version.String())
	if err := fs.EnsureDir(outDir, 0755); err != nil {
		return err
	}
	for _, f := range []string{cache.ElmJSONFile, cache.DocsFile} {
		src := filepath.Join(b.Cache.Dir(it.Author, it.Name, it.Version), f)
		if err := fs.CopyFile(src, filepath.Join(outDir, f)); err != nil {
			return err
		}
	}

	manifest.Add(ManifestEntry{
		Author:  it.Author,
		Name:    it.Name,
		Version: it.Version.String(),
		Hash:    ep.Hash,
		URL:     ep.URL,
	})
	b.Out.Printf("mirrored %s (%s)", it, ep.Hash[:12])
	return nil
}

// failLogWriter accumulates per-item failures in blacklist-compatible format.
type failLogWriter struct {
	f *os.File
}

func openFailLog(path string) (*failLogWriter, error) {
	if path == "" {
		return &failLogWriter{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening fail log %s", path)
	}
	return &failLogWriter{f: f}, nil
}

func (w *failLogWriter) add(it item, err error) {
	if w.f == nil {
		return
	}
	w.f.WriteString(FailLogLine(it.Author, it.Name, it.Version, err) + "\n")
}

func (w *failLogWriter) close() {
	if w.f != nil {
		w.f.Close()
	}
}
