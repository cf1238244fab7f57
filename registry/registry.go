// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package registry loads and queries the package index: which packages
// exist, which versions they have published, and what each version
// requires. The index is read once at startup and treated as immutable for
// the life of a solve.
package registry

import (
	"bytes"
	"io/ioutil"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/pubgrub"
)

// Entry is one package's row in the index: its published versions in
// ascending order and, when the index carries them, the dependency
// constraints of each version.
type Entry struct {
	Author, Name string
	Versions     []elmver.Version

	deps map[elmver.Version]map[string]elmver.Range
}

// Key returns the index key, "author/name".
func (e *Entry) Key() string {
	return e.Author + "/" + e.Name
}

// Registry is the loaded index. Lookups are backed by a radix tree keyed
// by "author/name", which also serves prefix scans (WalkPrefix).
type Registry struct {
	tree          entryTrie
	totalVersions int

	// depcache, when attached, answers Dependencies for versions the index
	// itself has no constraints for.
	depcache DepSource
}

// DepSource supplies dependency maps for package versions the index does
// not embed, typically from previously fetched elm.json files.
type DepSource interface {
	Dependencies(author, name string, v elmver.Version) (map[string]elmver.Range, bool, error)
}

// UnknownPackageError reports a lookup for a package the index has never
// heard of.
type UnknownPackageError struct {
	Author, Name string
}

func (e *UnknownPackageError) Error() string {
	return "unknown package " + e.Author + "/" + e.Name
}

// InvalidConstraintError reports an unparseable constraint string.
type InvalidConstraintError struct {
	Constraint string
	Err        error
}

func (e *InvalidConstraintError) Error() string {
	return "invalid constraint " + e.Constraint + ": " + e.Err.Error()
}

// NoMatchingVersionError reports a constraint no published version
// satisfies.
type NoMatchingVersionError struct {
	Author, Name, Constraint string
}

func (e *NoMatchingVersionError) Error() string {
	return "no version of " + e.Author + "/" + e.Name + " matches " + e.Constraint
}

// Load reads an index file, binary or text, sniffing the format from the
// leading bytes.
func Load(path string) (*Registry, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading registry %s", path)
	}
	if bytes.HasPrefix(data, binaryMagic) {
		return decodeBinary(data)
	}
	return decodeText(data)
}

// LoadWithOverlay loads the main index and, when overlayPath exists and is
// readable, merges the overlay's entries over it. Overlay versions are
// appended to existing entries; whole packages unknown to the main index
// are added.
func LoadWithOverlay(path, overlayPath string) (*Registry, error) {
	r, err := Load(path)
	if err != nil {
		return nil, err
	}
	if overlayPath == "" {
		return r, nil
	}
	o, err := Load(overlayPath)
	if err != nil {
		// A missing overlay is not an error; anything else is.
		if os.IsNotExist(errors.Cause(err)) {
			return r, nil
		}
		return nil, errors.Wrap(err, "loading local-dev overlay")
	}
	o.tree.Walk(func(key string, oe *Entry) bool {
		if e, has := r.tree.Get(key); has {
			for _, v := range oe.Versions {
				if !containsVersion(e.Versions, v) {
					e.Versions = append(e.Versions, v)
					r.totalVersions++
				}
			}
			sort.Slice(e.Versions, func(i, j int) bool { return e.Versions[i].Less(e.Versions[j]) })
			for v, d := range oe.deps {
				if e.deps == nil {
					e.deps = make(map[elmver.Version]map[string]elmver.Range)
				}
				e.deps[v] = d
			}
		} else {
			r.tree.Insert(key, oe)
			r.totalVersions += len(oe.Versions)
		}
		return false
	})
	return r, nil
}

// AttachDepSource wires a fallback source for dependency maps.
func (r *Registry) AttachDepSource(ds DepSource) {
	r.depcache = ds
}

// Find looks up a package by author and name.
func (r *Registry) Find(author, name string) (*Entry, error) {
	if e, has := r.tree.Get(author + "/" + name); has {
		return e, nil
	}
	return nil, &UnknownPackageError{Author: author, Name: name}
}

// Versions returns the entry's versions newest first. The slice is a copy;
// callers may reorder it freely.
func (r *Registry) Versions(e *Entry) []elmver.Version {
	out := make([]elmver.Version, len(e.Versions))
	for i, v := range e.Versions {
		out[len(e.Versions)-1-i] = v
	}
	return out
}

// Dependencies returns the constraint map of one published version,
// consulting the index's embedded constraints first and the attached
// DepSource second.
func (r *Registry) Dependencies(e *Entry, v elmver.Version) (map[string]elmver.Range, error) {
	if d, ok := e.deps[v]; ok {
		return d, nil
	}
	if r.depcache != nil {
		d, ok, err := r.depcache.Dependencies(e.Author, e.Name, v)
		if err != nil {
			return nil, errors.Wrapf(err, "dependencies of %s %s", e.Key(), v)
		}
		if ok {
			return d, nil
		}
	}
	return nil, errors.Errorf("no dependency data for %s %s", e.Key(), v)
}

// ResolveConstraint parses constraint and returns the highest published
// version of author/name satisfying it.
func (r *Registry) ResolveConstraint(author, name, constraint string) (elmver.Version, error) {
	e, err := r.Find(author, name)
	if err != nil {
		return elmver.Version{}, err
	}
	rng, err := elmver.ParseConstraint(constraint)
	if err != nil {
		return elmver.Version{}, &InvalidConstraintError{Constraint: constraint, Err: err}
	}
	for i := len(e.Versions) - 1; i >= 0; i-- {
		if rng.Contains(e.Versions[i]) {
			return e.Versions[i], nil
		}
	}
	return elmver.Version{}, &NoMatchingVersionError{Author: author, Name: name, Constraint: constraint}
}

// All returns every entry in deterministic (author, name) order.
func (r *Registry) All() []*Entry {
	var out []*Entry
	r.tree.Walk(func(_ string, e *Entry) bool {
		out = append(out, e)
		return false
	})
	return out
}

// WalkPrefix visits entries whose "author/name" key starts with prefix, in
// key order.
func (r *Registry) WalkPrefix(prefix string, fn func(*Entry) bool) {
	r.tree.WalkPrefix(prefix, func(_ string, e *Entry) bool {
		return fn(e)
	})
}

// Len returns the number of packages in the index.
func (r *Registry) Len() int {
	return r.tree.Len()
}

// TotalVersions returns the number of (package, version) pairs indexed.
func (r *Registry) TotalVersions() int {
	return r.totalVersions
}

// PackageVersions implements pubgrub.Source. Unknown packages yield an
// empty list: the solver reports them as having no satisfying versions.
func (r *Registry) PackageVersions(author, name string) ([]elmver.Version, error) {
	e, err := r.Find(author, name)
	if err != nil {
		if _, ok := err.(*UnknownPackageError); ok {
			return nil, nil
		}
		return nil, err
	}
	return e.Versions, nil
}

// PackageDependencies implements pubgrub.Source.
func (r *Registry) PackageDependencies(author, name string, v elmver.Version) (map[pubgrub.PkgName]elmver.Range, error) {
	e, err := r.Find(author, name)
	if err != nil {
		return nil, err
	}
	raw, err := r.Dependencies(e, v)
	if err != nil {
		return nil, err
	}
	out := make(map[pubgrub.PkgName]elmver.Range, len(raw))
	for key, rng := range raw {
		n, err := SplitName(key)
		if err != nil {
			return nil, err
		}
		out[pubgrub.PkgName{Author: n.Author, Name: n.Name}] = rng
	}
	return out, nil
}

var _ pubgrub.Source = (*Registry)(nil)

// Name is an author/name pair.
type Name struct {
	Author, Name string
}

func (n Name) String() string { return n.Author + "/" + n.Name }

// SplitName parses "author/name".
func SplitName(s string) (Name, error) {
	i := strings.IndexByte(s, '/')
	if i <= 0 || i == len(s)-1 || strings.IndexByte(s[i+1:], '/') >= 0 {
		return Name{}, errors.Errorf("invalid package name %q: want author/name", s)
	}
	return Name{Author: s[:i], Name: s[i+1:]}, nil
}

func containsVersion(vs []elmver.Version, v elmver.Version) bool {
	for _, have := range vs {
		if have == v {
			return true
		}
	}
	return false
}
