// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mirror builds content-addressed mirrors of the package registry
// and drives registry-wide downloads into the local cache.
package mirror

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/registry"
)

// Blacklist holds packages and package versions excluded from bulk
// operations.
//
// File format, one entry per line:
//
//	author/name          skips every version
//	author/name@1.2.3    skips one version
//	# ...                comment
//
// Two consecutive spaces start an inline annotation (the format fail logs
// are written in), so a fail log can be fed back as a blacklist. Invalid
// lines are ignored with a warning.
type Blacklist struct {
	packages map[string]bool
	versions map[string]bool
}

// LoadBlacklist reads a blacklist file. A missing file yields an empty
// blacklist.
func LoadBlacklist(path string, warn *log.Logger) (*Blacklist, error) {
	b := &Blacklist{
		packages: make(map[string]bool),
		versions: make(map[string]bool),
	}
	if path == "" {
		return b, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, errors.Wrapf(err, "opening blacklist %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := sc.Text()
		if i := strings.Index(line, "  "); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if at := strings.IndexByte(line, '@'); at >= 0 {
			n, nerr := registry.SplitName(line[:at])
			v, verr := elmver.ParseVersion(line[at+1:])
			if nerr != nil || verr != nil {
				if warn != nil {
					warn.Printf("blacklist %s:%d: ignoring invalid entry %q", path, lineno, line)
				}
				continue
			}
			b.versions[n.String()+"@"+v.String()] = true
			continue
		}

		n, err := registry.SplitName(line)
		if err != nil {
			if warn != nil {
				warn.Printf("blacklist %s:%d: ignoring invalid entry %q", path, lineno, line)
			}
			continue
		}
		b.packages[n.String()] = true
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading blacklist %s", path)
	}
	return b, nil
}

// Skips reports whether the blacklist excludes the given package version.
func (b *Blacklist) Skips(author, name string, v elmver.Version) bool {
	key := author + "/" + name
	return b.packages[key] || b.versions[key+"@"+v.String()]
}

// Len returns the number of entries loaded.
func (b *Blacklist) Len() int {
	return len(b.packages) + len(b.versions)
}

// FailLogLine renders a failure in blacklist-compatible form: the version
// entry, two spaces, then the error.
func FailLogLine(author, name string, v elmver.Version, err error) string {
	return fmt.Sprintf("%s/%s@%s  %s", author, name, v, err)
}
