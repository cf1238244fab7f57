// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mirror

import (
	"context"
	"io/ioutil"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sdboyer/constext"

	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/fetch"
	"github.com/elmwrap/wrap/internal/fs"
	"github.com/elmwrap/wrap/registry"
)

// Tunables shared by the mirror builder and the bulk downloader.
const (
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 2 * time.Second
	DefaultMinDelay       = 1 * time.Second
	DefaultMaxDelay       = 3 * time.Second
	DefaultItemTimeout    = 60 * time.Second
)

// item is one queued package version, numbered by its position in the
// deterministic registry iteration order.
type item struct {
	Author, Name string
	Version      elmver.Version
	Seq          int
}

func (it item) String() string {
	return it.Author + "/" + it.Name + "@" + it.Version.String()
}

// scan iterates the registry in (author, name, version-ascending) order,
// assigning each version a sequence number and yielding it to keep. The
// walk covers all packages, or only those named in filter ("author/name").
func scan(reg *registry.Registry, filter []string, latestOnly bool, keep func(item) bool) error {
	seq := 0
	walk := func(e *registry.Entry) bool {
		versions := e.Versions
		start := 0
		if latestOnly && len(versions) > 1 {
			start = len(versions) - 1
		}
		for i, v := range versions {
			seq++
			if i < start {
				continue
			}
			if !keep(item{Author: e.Author, Name: e.Name, Version: v, Seq: seq}) {
				return true
			}
		}
		return false
	}

	if len(filter) == 0 {
		for _, e := range reg.All() {
			if walk(e) {
				break
			}
		}
		return nil
	}

	want := make(map[*registry.Entry]bool, len(filter))
	for _, f := range filter {
		n, err := registry.SplitName(f)
		if err != nil {
			return err
		}
		e, err := reg.Find(n.Author, n.Name)
		if err != nil {
			return err
		}
		want[e] = true
	}
	for _, e := range reg.All() {
		if !want[e] {
			seq += len(e.Versions)
			continue
		}
		if walk(e) {
			break
		}
	}
	return nil
}

// withRetry runs op up to attempts times with exponential backoff,
// skipping retries for failures more attempts cannot fix.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, sleep func(time.Duration), op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			sleep(backoff)
			backoff *= 2
		}

		// Each attempt gets its own deadline joined with the caller's
		// cancellation.
		tctx, tcancel := context.WithTimeout(context.Background(), DefaultItemTimeout)
		jctx, jcancel := constext.Cons(ctx, tctx)
		err = op(jctx)
		jcancel()
		tcancel()

		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func retryable(err error) bool {
	switch errors.Cause(err).(type) {
	case *fetch.HashMismatchError:
		return false
	case *fetch.ExtractError:
		return false
	}
	return errors.Cause(err) != fetch.ErrOffline
}

// pause sleeps a uniform random duration in [min, max], a courtesy pace
// between items against the upstream site.
func pause(rng *rand.Rand, sleep func(time.Duration), min, max time.Duration) {
	if max <= min {
		sleep(min)
		return
	}
	sleep(min + time.Duration(rng.Int63n(int64(max-min))))
}

// readSince reads the resume marker: a single decimal sequence number.
// A missing file means zero.
func readSince(path string) (int, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "reading resume marker %s", path)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrapf(err, "parsing resume marker %s", path)
	}
	return n, nil
}

// writeSince persists the resume marker via temp-and-rename.
func writeSince(path string, seq int) error {
	staged := path + ".part"
	if err := ioutil.WriteFile(staged, []byte(strconv.Itoa(seq)+"\n"), 0644); err != nil {
		return errors.Wrapf(err, "writing resume marker %s", staged)
	}
	return fs.RenameWithFallback(staged, path)
}
