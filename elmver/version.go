// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elmver implements the version triples and bounded version ranges
// used by the Elm package ecosystem.
//
// Elm versions are plain MAJOR.MINOR.PATCH triples with no prerelease or
// build metadata, totally ordered lexicographically by component. Ranges are
// contiguous intervals with optionally inclusive endpoints; the four shapes
// that occur in practice are "any", an exact pin, and the half-open
// intervals up to the next minor or major version.
package elmver

import (
	"fmt"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// Version is an Elm package version: a (major, minor, patch) triple of
// non-negative integers.
type Version struct {
	Major, Minor, Patch uint64
}

// ParseVersion parses a version in "x.y.z" form. Anything the semver
// grammar accepts beyond a bare triple (prerelease tags, build metadata,
// partial versions) is rejected, since Elm versions carry none of it.
func ParseVersion(s string) (Version, error) {
	sv, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, errors.Wrapf(err, "invalid version %q", s)
	}
	if sv.Prerelease() != "" || sv.Metadata() != "" {
		return Version{}, errors.Errorf("invalid version %q: must be a bare x.y.z triple", s)
	}
	v := Version{Major: uint64(sv.Major()), Minor: uint64(sv.Minor()), Patch: uint64(sv.Patch())}
	if v.String() != s {
		return Version{}, errors.Errorf("invalid version %q: must be a bare x.y.z triple", s)
	}
	return v, nil
}

// MustParseVersion is ParseVersion for statically known inputs; it panics on
// error. Intended for fixtures and constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// w, ordering lexicographically by (major, minor, patch).
func (v Version) Compare(w Version) int {
	switch {
	case v.Major != w.Major:
		if v.Major < w.Major {
			return -1
		}
		return 1
	case v.Minor != w.Minor:
		if v.Minor < w.Minor {
			return -1
		}
		return 1
	case v.Patch != w.Patch:
		if v.Patch < w.Patch {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether v orders strictly before w.
func (v Version) Less(w Version) bool { return v.Compare(w) < 0 }

// NextMinor is the smallest version with a greater minor component:
// x.(y+1).0.
func (v Version) NextMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// NextMajor is the smallest version with a greater major component:
// (x+1).0.0.
func (v Version) NextMajor() Version {
	return Version{Major: v.Major + 1}
}
