// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/elmver"
)

// Caps on elm.json inputs; anything larger is treated as malformed rather
// than parsed.
const (
	MaxElmJSONBytes       = 1 << 20
	MaxElmJSONDepsEntries = 4096
)

// PackageManifest is the subset of a published package's elm.json the
// resolver needs.
type PackageManifest struct {
	Name         string
	Version      elmver.Version
	ElmConstraint elmver.Range
	Dependencies map[string]elmver.Range
}

type rawPackageManifest struct {
	Type         string            `json:"type"`
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Elm          string            `json:"elm-version"`
	Dependencies map[string]string `json:"dependencies"`
}

// ParsePackageManifest decodes a published package's elm.json and resolves
// its constraints.
func ParsePackageManifest(data []byte) (*PackageManifest, error) {
	if len(data) > MaxElmJSONBytes {
		return nil, errors.Errorf("elm.json too large: %d bytes", len(data))
	}
	var raw rawPackageManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding elm.json")
	}
	if raw.Type != "package" {
		return nil, errors.Errorf("elm.json type is %q, want \"package\"", raw.Type)
	}
	if len(raw.Dependencies) > MaxElmJSONDepsEntries {
		return nil, errors.Errorf("elm.json has %d dependencies; limit is %d",
			len(raw.Dependencies), MaxElmJSONDepsEntries)
	}

	m := &PackageManifest{Name: raw.Name}
	var err error
	if raw.Version != "" {
		if m.Version, err = elmver.ParseVersion(raw.Version); err != nil {
			return nil, errors.Wrap(err, "elm.json version")
		}
	}
	if raw.Elm != "" {
		if m.ElmConstraint, err = elmver.ParseConstraint(raw.Elm); err != nil {
			return nil, errors.Wrap(err, "elm.json elm-version")
		}
	}

	m.Dependencies = make(map[string]elmver.Range, len(raw.Dependencies))
	for pkg, cs := range raw.Dependencies {
		if _, err := SplitName(pkg); err != nil {
			return nil, errors.Wrap(err, "elm.json dependencies")
		}
		rng, err := elmver.ParseConstraint(cs)
		if err != nil {
			return nil, errors.Wrapf(err, "elm.json dependency %s", pkg)
		}
		m.Dependencies[pkg] = rng
	}
	return m, nil
}
