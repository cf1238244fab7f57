// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wrap wires the resolver, cache and fetch pipeline into the
// project-level operations behind the elm-wrap command: loading a
// project's elm.json, planning installs and upgrades against the registry,
// and rewriting the dependency maps on success.
package wrap

import (
	"bytes"
	"encoding/json"
	"io"
	"io/ioutil"
	"sort"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/internal/fs"
	"github.com/elmwrap/wrap/registry"
)

// ManifestName is the project manifest file name.
const ManifestName = "elm.json"

// ProjectKind distinguishes the two elm.json shapes.
type ProjectKind int

const (
	// Application projects pin exact versions in four dependency maps.
	Application ProjectKind = iota
	// Package projects declare constraint ranges in two maps.
	Package
)

// Manifest is a parsed elm.json. Application fields and package fields are
// mutually exclusive by Kind; the untouched remainder of the document is
// kept so a rewrite only changes the dependency maps.
type Manifest struct {
	Kind ProjectKind

	// Application dependency maps: exact pinned versions.
	Direct, Indirect         map[string]elmver.Version
	TestDirect, TestIndirect map[string]elmver.Version

	// Package dependency maps: constraint ranges.
	Name     string
	Version  elmver.Version
	Deps     map[string]elmver.Range
	TestDeps map[string]elmver.Range

	rest map[string]json.RawMessage
}

type appDepsSection struct {
	Direct   map[string]string `json:"direct"`
	Indirect map[string]string `json:"indirect"`
}

// readManifest parses an elm.json document of either kind.
func readManifest(r io.Reader) (*Manifest, error) {
	data, err := ioutil.ReadAll(io.LimitReader(r, registry.MaxElmJSONBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "reading elm.json")
	}
	if len(data) > registry.MaxElmJSONBytes {
		return nil, errors.Errorf("elm.json too large: over %d bytes", registry.MaxElmJSONBytes)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding elm.json")
	}

	var kind string
	if raw, ok := doc["type"]; ok {
		if err := json.Unmarshal(raw, &kind); err != nil {
			return nil, errors.Wrap(err, "decoding elm.json type")
		}
	}

	m := &Manifest{rest: doc}
	switch kind {
	case "application":
		m.Kind = Application
		var deps, testDeps appDepsSection
		if err := unmarshalField(doc, "dependencies", &deps); err != nil {
			return nil, err
		}
		if err := unmarshalField(doc, "test-dependencies", &testDeps); err != nil {
			return nil, err
		}
		if m.Direct, err = exactMap(deps.Direct); err != nil {
			return nil, errors.Wrap(err, "dependencies.direct")
		}
		if m.Indirect, err = exactMap(deps.Indirect); err != nil {
			return nil, errors.Wrap(err, "dependencies.indirect")
		}
		if m.TestDirect, err = exactMap(testDeps.Direct); err != nil {
			return nil, errors.Wrap(err, "test-dependencies.direct")
		}
		if m.TestIndirect, err = exactMap(testDeps.Indirect); err != nil {
			return nil, errors.Wrap(err, "test-dependencies.indirect")
		}

	case "package":
		m.Kind = Package
		if raw, ok := doc["name"]; ok {
			if err := json.Unmarshal(raw, &m.Name); err != nil {
				return nil, errors.Wrap(err, "decoding elm.json name")
			}
		}
		if raw, ok := doc["version"]; ok {
			var vs string
			if err := json.Unmarshal(raw, &vs); err != nil {
				return nil, errors.Wrap(err, "decoding elm.json version")
			}
			if m.Version, err = elmver.ParseVersion(vs); err != nil {
				return nil, errors.Wrap(err, "elm.json version")
			}
		}
		var deps, testDeps map[string]string
		if err := unmarshalField(doc, "dependencies", &deps); err != nil {
			return nil, err
		}
		if err := unmarshalField(doc, "test-dependencies", &testDeps); err != nil {
			return nil, err
		}
		if m.Deps, err = rangeMap(deps); err != nil {
			return nil, errors.Wrap(err, "dependencies")
		}
		if m.TestDeps, err = rangeMap(testDeps); err != nil {
			return nil, errors.Wrap(err, "test-dependencies")
		}

	default:
		return nil, errors.Errorf("elm.json type is %q, want \"application\" or \"package\"", kind)
	}

	if err := m.checkEntryCount(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) checkEntryCount() error {
	n := len(m.Direct) + len(m.Indirect) + len(m.TestDirect) + len(m.TestIndirect) +
		len(m.Deps) + len(m.TestDeps)
	if n > registry.MaxElmJSONDepsEntries {
		return errors.Errorf("elm.json has %d dependency entries; limit is %d",
			n, registry.MaxElmJSONDepsEntries)
	}
	return nil
}

func unmarshalField(doc map[string]json.RawMessage, key string, dst interface{}) error {
	raw, ok := doc[key]
	if !ok {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(raw, dst), "decoding elm.json %s", key)
}

func exactMap(in map[string]string) (map[string]elmver.Version, error) {
	out := make(map[string]elmver.Version, len(in))
	for pkg, vs := range in {
		if _, err := registry.SplitName(pkg); err != nil {
			return nil, err
		}
		v, err := elmver.ParseVersion(vs)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %s", pkg)
		}
		out[pkg] = v
	}
	return out, nil
}

func rangeMap(in map[string]string) (map[string]elmver.Range, error) {
	out := make(map[string]elmver.Range, len(in))
	for pkg, cs := range in {
		if _, err := registry.SplitName(pkg); err != nil {
			return nil, err
		}
		r, err := elmver.ParseConstraint(cs)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %s", pkg)
		}
		out[pkg] = r
	}
	return out, nil
}

// Locked returns every pinned package of an application manifest in one
// map, the four sections folded together.
func (m *Manifest) Locked() map[string]elmver.Version {
	out := make(map[string]elmver.Version)
	for _, section := range []map[string]elmver.Version{m.Direct, m.Indirect, m.TestDirect, m.TestIndirect} {
		for pkg, v := range section {
			out[pkg] = v
		}
	}
	return out
}

// MarshalJSON renders the manifest with its dependency maps replaced and
// every other field passed through untouched, in elm.json's conventional
// field order.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(m.rest))
	for k, v := range m.rest {
		doc[k] = v
	}

	var err error
	switch m.Kind {
	case Application:
		if doc["dependencies"], err = marshalAppSection(m.Direct, m.Indirect); err != nil {
			return nil, err
		}
		if doc["test-dependencies"], err = marshalAppSection(m.TestDirect, m.TestIndirect); err != nil {
			return nil, err
		}
	case Package:
		if doc["dependencies"], err = marshalRangeMap(m.Deps); err != nil {
			return nil, err
		}
		if doc["test-dependencies"], err = marshalRangeMap(m.TestDeps); err != nil {
			return nil, err
		}
	}

	return marshalOrdered(doc)
}

// elm.json's conventional field order; anything else follows
// alphabetically.
var manifestFieldOrder = []string{
	"type", "name", "summary", "license", "version", "exposed-modules",
	"source-directories", "elm-version", "dependencies", "test-dependencies",
}

func marshalOrdered(doc map[string]json.RawMessage) ([]byte, error) {
	seen := make(map[string]bool, len(doc))
	var keys []string
	for _, k := range manifestFieldOrder {
		if _, ok := doc[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var extra []string
	for k := range doc {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, k := range keys {
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.WriteString("    ")
		buf.Write(key)
		buf.WriteString(": ")
		var indented bytes.Buffer
		if err := json.Indent(&indented, doc[k], "    ", "    "); err != nil {
			return nil, err
		}
		buf.Write(indented.Bytes())
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func marshalAppSection(direct, indirect map[string]elmver.Version) (json.RawMessage, error) {
	return json.Marshal(struct {
		Direct   map[string]string `json:"direct"`
		Indirect map[string]string `json:"indirect"`
	}{
		Direct:   versionStrings(direct),
		Indirect: versionStrings(indirect),
	})
}

func marshalRangeMap(deps map[string]elmver.Range) (json.RawMessage, error) {
	out := make(map[string]string, len(deps))
	for pkg, r := range deps {
		out[pkg] = r.ConstraintString()
	}
	return json.Marshal(out)
}

func versionStrings(in map[string]elmver.Version) map[string]string {
	out := make(map[string]string, len(in))
	for pkg, v := range in {
		out[pkg] = v.String()
	}
	return out
}

// WriteManifest publishes the manifest to path via temp-and-rename.
func WriteManifest(m *Manifest, path string) error {
	data, err := m.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encoding elm.json")
	}
	staged := path + ".part"
	if err := ioutil.WriteFile(staged, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", staged)
	}
	return fs.RenameWithFallback(staged, path)
}
