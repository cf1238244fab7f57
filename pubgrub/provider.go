// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"sort"

	"github.com/elmwrap/wrap/elmver"
	"github.com/pkg/errors"
)

// PkgName is an author/name pair as published in the registry.
type PkgName struct {
	Author, Name string
}

func (n PkgName) String() string {
	return n.Author + "/" + n.Name
}

// A Dependency pairs an interned package with the range a depender
// requires.
type Dependency struct {
	Pkg   PackageID
	Range elmver.Range
}

// Source supplies raw version and dependency data for named packages. The
// registry implements it; tests substitute in-memory fixtures.
type Source interface {
	// PackageVersions returns all published versions of the package in
	// ascending order, or an empty slice for a package the source does not
	// know.
	PackageVersions(author, name string) ([]elmver.Version, error)

	// PackageDependencies returns the dependency ranges declared by one
	// published version.
	PackageDependencies(author, name string, v elmver.Version) (map[PkgName]elmver.Range, error)
}

// VersionProvider is what the solver consumes: interned ids only, version
// lists newest first.
type VersionProvider interface {
	Versions(pkg PackageID) ([]elmver.Version, error)
	Dependencies(pkg PackageID, v elmver.Version) ([]Dependency, error)
	NameOf(pkg PackageID) PkgName
}

// Provider adapts a Source for the solver. It owns the package interner
// (the solver never sees author/name strings) and memoizes version lists
// and dependency maps per package id.
type Provider struct {
	src Source

	// Filter, when set, hides versions the surrounding toolchain cannot
	// use, e.g. releases requiring a different compiler.
	Filter func(PkgName, elmver.Version) bool

	names []PkgName
	ids   map[PkgName]PackageID

	// Two-array version memo. cachedCounts[pkg] is -1 until the first
	// Versions call for pkg populates both slots.
	cachedVersions [][]elmver.Version
	cachedCounts   []int

	deps map[depKey][]Dependency

	hits, misses int
}

type depKey struct {
	pkg PackageID
	v   elmver.Version
}

// NewProvider returns a Provider over src with the synthetic root package
// pre-interned at id 0.
func NewProvider(src Source) *Provider {
	p := &Provider{
		src:  src,
		ids:  make(map[PkgName]PackageID),
		deps: make(map[depKey][]Dependency),
	}
	p.Intern(PkgName{Author: "", Name: "root"})
	return p
}

// Intern maps an author/name pair to a stable small id, allocating one on
// first sight.
func (p *Provider) Intern(n PkgName) PackageID {
	if id, ok := p.ids[n]; ok {
		return id
	}
	id := PackageID(len(p.names))
	p.ids[n] = id
	p.names = append(p.names, n)
	p.cachedVersions = append(p.cachedVersions, nil)
	p.cachedCounts = append(p.cachedCounts, -1)
	return id
}

// NameOf is the inverse of Intern.
func (p *Provider) NameOf(id PackageID) PkgName {
	return p.names[int(id)]
}

// NumPackages returns how many ids have been interned, root included.
func (p *Provider) NumPackages() int {
	return len(p.names)
}

// Versions returns all known versions of pkg, newest first. A package
// missing from the source yields an empty list, which the solver turns
// into a no-versions incompatibility.
func (p *Provider) Versions(pkg PackageID) ([]elmver.Version, error) {
	if pkg == RootPackage {
		return nil, errors.New("root package has no version list")
	}
	if p.cachedCounts[pkg] >= 0 {
		p.hits++
		return p.cachedVersions[pkg], nil
	}
	p.misses++

	n := p.names[pkg]
	asc, err := p.src.PackageVersions(n.Author, n.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "listing versions of %s", n)
	}

	vs := make([]elmver.Version, 0, len(asc))
	for i := len(asc) - 1; i >= 0; i-- {
		if p.Filter != nil && !p.Filter(n, asc[i]) {
			continue
		}
		vs = append(vs, asc[i])
	}
	p.cachedVersions[pkg] = vs
	p.cachedCounts[pkg] = len(vs)
	return vs, nil
}

// Dependencies resolves the dependency ranges of (pkg, v), interning any
// package names not seen before.
func (p *Provider) Dependencies(pkg PackageID, v elmver.Version) ([]Dependency, error) {
	key := depKey{pkg: pkg, v: v}
	if ds, ok := p.deps[key]; ok {
		p.hits++
		return ds, nil
	}
	p.misses++

	n := p.names[pkg]
	raw, err := p.src.PackageDependencies(n.Author, n.Name, v)
	if err != nil {
		return nil, errors.Wrapf(err, "reading dependencies of %s %s", n, v)
	}

	// Intern in name order so package ids are reproducible across runs
	// regardless of map iteration.
	names := make([]PkgName, 0, len(raw))
	for dn := range raw {
		names = append(names, dn)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i].Author != names[j].Author {
			return names[i].Author < names[j].Author
		}
		return names[i].Name < names[j].Name
	})

	ds := make([]Dependency, 0, len(names))
	for _, dn := range names {
		ds = append(ds, Dependency{Pkg: p.Intern(dn), Range: raw[dn]})
	}
	sortDependencies(ds)
	p.deps[key] = ds
	return ds, nil
}

// CacheStats reports memo hits and misses accumulated so far.
func (p *Provider) CacheStats() (hits, misses int) {
	return p.hits, p.misses
}

func sortDependencies(ds []Dependency) {
	// Insertion sort by package id: dependency lists are short, and a
	// deterministic order keeps solves reproducible across runs.
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && ds[j].Pkg < ds[j-1].Pkg; j-- {
			ds[j], ds[j-1] = ds[j-1], ds[j]
		}
	}
}

var _ VersionProvider = (*Provider)(nil)

func (p *Provider) String() string {
	return fmt.Sprintf("provider(%d packages, %d hits, %d misses)", len(p.names), p.hits, p.misses)
}
