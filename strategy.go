// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

import (
	"sort"

	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/pubgrub"
	"github.com/elmwrap/wrap/registry"
)

// Strategy names a recipe for turning the project's current lock into the
// root constraints of a solve.
type Strategy int

const (
	// ExactAll pins every locked package at its current version.
	ExactAll Strategy = iota
	// ExactDirectUpgradableIndirect pins direct and test dependencies and
	// lets indirect dependencies move within their major version.
	ExactDirectUpgradableIndirect
	// UpgradableWithinMajor lets every locked package move within its
	// major version.
	UpgradableWithinMajor
	// CrossMajorForTarget unconstrains the requested package entirely and
	// drops the direct/indirect pins, keeping only test pins.
	CrossMajorForTarget
)

func (s Strategy) String() string {
	switch s {
	case ExactAll:
		return "exact-all"
	case ExactDirectUpgradableIndirect:
		return "exact-direct-upgradable-indirect"
	case UpgradableWithinMajor:
		return "upgradable-within-major"
	}
	return "cross-major-for-target"
}

// InstallCascade is the strategy order tried for a single-package install:
// least churn first, cross-major escape hatch last.
var InstallCascade = []Strategy{
	ExactAll,
	ExactDirectUpgradableIndirect,
	UpgradableWithinMajor,
	CrossMajorForTarget,
}

// Request names the package an install or upgrade asks for, optionally at
// an explicit version.
type Request struct {
	Name    registry.Name
	Version *elmver.Version
}

// rootConstraints builds the solver's root dependencies for one strategy,
// interning package ids through the provider.
//
// For CrossMajorForTarget the requested package is interned first, before
// any transitive constraint can tighten it. For every other strategy the
// lock contributes constraints per the strategy table and the request is
// appended afterwards.
func rootConstraints(m *Manifest, s Strategy, req *Request, p *pubgrub.Provider) []pubgrub.Dependency {
	var deps []pubgrub.Dependency
	seen := make(map[pubgrub.PackageID]int)

	add := func(pkg string, r elmver.Range) {
		n, err := registry.SplitName(pkg)
		if err != nil {
			return
		}
		id := p.Intern(pubgrub.PkgName{Author: n.Author, Name: n.Name})
		if i, ok := seen[id]; ok {
			deps[i].Range = deps[i].Range.Intersect(r)
			return
		}
		seen[id] = len(deps)
		deps = append(deps, pubgrub.Dependency{Pkg: id, Range: r})
	}

	reqRange := func() elmver.Range {
		if req != nil && req.Version != nil {
			return elmver.Exact(*req.Version)
		}
		return elmver.Any()
	}

	if s == CrossMajorForTarget && req != nil {
		add(req.Name.String(), reqRange())
	}

	if m.Kind == Package {
		// Package projects feed their declared constraints in verbatim,
		// regardless of strategy.
		for _, pkg := range sortedRangeKeys(m.Deps) {
			add(pkg, m.Deps[pkg])
		}
		for _, pkg := range sortedRangeKeys(m.TestDeps) {
			add(pkg, m.TestDeps[pkg])
		}
	} else {
		constrain := func(section map[string]elmver.Version, f func(elmver.Version) elmver.Range) {
			for _, pkg := range sortedVersionKeys(section) {
				add(pkg, f(section[pkg]))
			}
		}
		exact := func(v elmver.Version) elmver.Range { return elmver.Exact(v) }
		withinMajor := func(v elmver.Version) elmver.Range { return elmver.UntilNextMajor(v) }

		switch s {
		case ExactAll:
			constrain(m.Direct, exact)
			constrain(m.Indirect, exact)
			constrain(m.TestDirect, exact)
			constrain(m.TestIndirect, exact)
		case ExactDirectUpgradableIndirect:
			constrain(m.Direct, exact)
			constrain(m.Indirect, withinMajor)
			constrain(m.TestDirect, exact)
			constrain(m.TestIndirect, exact)
		case UpgradableWithinMajor:
			constrain(m.Direct, withinMajor)
			constrain(m.Indirect, withinMajor)
			constrain(m.TestDirect, withinMajor)
			constrain(m.TestIndirect, withinMajor)
		case CrossMajorForTarget:
			// Direct and indirect pins are dropped for the targeted
			// install. A target-less run (upgrade --major) keeps every
			// locked package in play, unconstrained.
			if req == nil {
				anyRange := func(elmver.Version) elmver.Range { return elmver.Any() }
				constrain(m.Direct, anyRange)
				constrain(m.Indirect, anyRange)
			}
			constrain(m.TestDirect, exact)
			constrain(m.TestIndirect, exact)
		}
	}

	if req != nil && s != CrossMajorForTarget {
		add(req.Name.String(), reqRange())
	}
	return deps
}

func sortedVersionKeys(m map[string]elmver.Version) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRangeKeys(m map[string]elmver.Range) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
