// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/elmwrap/wrap"
	"github.com/elmwrap/wrap/elmver"
)

// bulkFlags are the verbosity and confirmation switches shared by the
// bulk subcommands.
type bulkFlags struct {
	yes     bool
	quiet   bool
	verbose bool
}

// loggers picks the output loggers for a bulk run: quiet drops progress
// output, errors always flow.
func (f *bulkFlags) loggers(ctx *wrap.Ctx) (*log.Logger, *log.Logger) {
	out := ctx.Out
	if f.quiet {
		out = log.New(ioutil.Discard, "", 0)
	}
	if f.verbose {
		ctx.Verbose = true
	}
	return out, ctx.Err
}

// confirm asks the user before a large operation unless -y was given.
func (f *bulkFlags) confirm(ctx *wrap.Ctx, prompt string) (bool, error) {
	if f.yes {
		return true, nil
	}
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// stringsFlag collects a repeatable string flag.
type stringsFlag []string

func (s *stringsFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringsFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// sortedPackages orders a dependency map's keys for stable output.
func sortedPackages(m map[string]elmver.Version) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
