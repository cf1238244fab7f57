// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mirror

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/elmwrap/wrap/cache"
	"github.com/elmwrap/wrap/fetch"
	"github.com/elmwrap/wrap/registry"
)

// DownloadOptions tune one bulk download run.
type DownloadOptions struct {
	LatestOnly bool
	DryRun     bool
	Packages   []string
	FailLog    string

	Blacklist *Blacklist

	MaxRetries     int
	InitialBackoff time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
}

func (o *DownloadOptions) fill() {
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

// Downloader walks the registry and fills the local cache: versions that
// are absent are fetched, broken residue is removed and refetched, and
// complete versions are left alone.
type Downloader struct {
	Reg     *registry.Registry
	Fetcher *fetch.Fetcher
	Cache   *cache.Cache
	Opts    DownloadOptions

	Out *log.Logger
	Err *log.Logger

	Sleep func(time.Duration)
	Seed  int64
}

// Run executes one bulk download pass. Per-item failures are logged and do
// not stop the run.
func (d *Downloader) Run(ctx context.Context) (Result, error) {
	d.Opts.fill()
	sleep := d.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	rng := rand.New(rand.NewSource(d.Seed))

	var res Result

	type queued struct {
		it     item
		status cache.Status
	}
	var queue []queued
	err := scan(d.Reg, d.Opts.Packages, d.Opts.LatestOnly, func(it item) bool {
		if d.Opts.Blacklist.Skips(it.Author, it.Name, it.Version) {
			return true
		}
		status := d.Cache.Status(it.Author, it.Name, it.Version)
		if status == cache.OK {
			return true
		}
		queue = append(queue, queued{it: it, status: status})
		return true
	})
	if err != nil {
		return res, err
	}
	res.Queued = len(queue)

	if d.Opts.DryRun {
		for _, q := range queue {
			d.Out.Printf("would download %s (%s)", q.it, q.status)
		}
		return res, nil
	}

	failLog, err := openFailLog(d.Opts.FailLog)
	if err != nil {
		return res, err
	}
	defer failLog.close()

	for i, q := range queue {
		if ctx.Err() != nil {
			break
		}
		if err := d.downloadOne(ctx, q.it, q.status, sleep); err != nil {
			res.Failed++
			d.Err.Printf("failed: %s: %s", q.it, err)
			failLog.add(q.it, err)
			continue
		}
		res.Processed++
		d.Out.Printf("downloaded %s", q.it)
		if i < len(queue)-1 {
			pause(rng, sleep, d.Opts.MinDelay, d.Opts.MaxDelay)
		}
	}
	return res, nil
}

func (d *Downloader) downloadOne(ctx context.Context, it item, status cache.Status, sleep func(time.Duration)) error {
	if status == cache.Broken {
		if err := d.Cache.Remove(it.Author, it.Name, it.Version); err != nil {
			return err
		}
	}
	return withRetry(ctx, d.Opts.MaxRetries, d.Opts.InitialBackoff, sleep, func(actx context.Context) error {
		if d.Cache.Status(it.Author, it.Name, it.Version) == cache.Broken {
			if err := d.Cache.Remove(it.Author, it.Name, it.Version); err != nil {
				return err
			}
		}
		return d.Fetcher.FetchPackage(actx, it.Author, it.Name, it.Version)
	})
}
