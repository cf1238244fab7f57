// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pubgrub implements a PubGrub-style version solver: unit
// propagation over package incompatibilities, conflict-driven clause
// learning with backjumping, and narrative explanation of unsolvable
// dependency graphs.
//
// The solver deals exclusively in interned package ids; a Provider supplies
// version lists and dependency constraints and owns the mapping back to
// human-readable names.
package pubgrub

import (
	"fmt"

	"github.com/elmwrap/wrap/elmver"
)

// PackageID identifies an interned package. Id 0 is reserved for the
// synthetic root package.
type PackageID int32

// RootPackage is the synthetic package standing for the project itself.
const RootPackage PackageID = 0

// A Term is a polarised statement about one package: a positive term
// requires the package's version to lie in the range, a negative term
// forbids it.
type Term struct {
	Pkg      PackageID
	Range    elmver.Range
	Positive bool
}

// Negate flips the term's polarity.
func (t Term) Negate() Term {
	return Term{Pkg: t.Pkg, Range: t.Range, Positive: !t.Positive}
}

// intersect combines two terms on the same package into a single term whose
// version set under-approximates the set intersection of the two. Exact
// wherever the result is a contiguous interval; the rare split results are
// narrowed to one side, which weakens a learned incompatibility but never
// makes it unsound.
func intersect(a, b Term) Term {
	if a.Pkg != b.Pkg {
		panic(fmt.Sprintf("pubgrub: intersecting terms of different packages (%d, %d)", a.Pkg, b.Pkg))
	}

	switch {
	case a.Positive && b.Positive:
		return Term{Pkg: a.Pkg, Range: a.Range.Intersect(b.Range), Positive: true}

	case !a.Positive && !b.Positive:
		// complement(r1) ∩ complement(r2) = complement(r1 ∪ r2). The hull of
		// the two ranges contains their union, so its complement is a sound
		// narrowing whenever the union itself is not contiguous.
		return Term{Pkg: a.Pkg, Range: hull(a.Range, b.Range), Positive: false}

	default:
		pos, neg := a, b
		if !a.Positive {
			pos, neg = b, a
		}
		return Term{Pkg: a.Pkg, Range: difference(pos.Range, neg.Range), Positive: true}
	}
}

// hull is the smallest single range containing both inputs.
func hull(a, b elmver.Range) elmver.Range {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	lo := looserLower(a.Lower, b.Lower)
	hi := looserUpper(a.Upper, b.Upper)
	return elmver.NewRange(lo, hi)
}

func looserLower(a, b elmver.Bound) elmver.Bound {
	if a.Unbounded || b.Unbounded {
		return elmver.Bound{Unbounded: true}
	}
	switch a.Version.Compare(b.Version) {
	case -1:
		return a
	case 1:
		return b
	}
	if a.Inclusive {
		return a
	}
	return b
}

func looserUpper(a, b elmver.Bound) elmver.Bound {
	if a.Unbounded || b.Unbounded {
		return elmver.Bound{Unbounded: true}
	}
	switch a.Version.Compare(b.Version) {
	case 1:
		return a
	case -1:
		return b
	}
	if a.Inclusive {
		return a
	}
	return b
}

// difference computes pos minus neg as a single range, keeping the lower
// remainder when the true difference would split in two.
func difference(pos, neg elmver.Range) elmver.Range {
	if !pos.Intersects(neg) {
		return pos
	}
	if pos.Subset(neg) {
		return elmver.None()
	}

	cut := pos.Intersect(neg)

	// Overlap reaches the lower end of pos: keep the part above the cut.
	if boundsEqual(cut.Lower, pos.Lower) {
		return elmver.NewRange(flipToLower(cut.Upper), pos.Upper)
	}
	// Otherwise keep the part below the cut (exact when the overlap reaches
	// the upper end of pos, a sound narrowing when it does not).
	return elmver.NewRange(pos.Lower, flipToUpper(cut.Lower))
}

func boundsEqual(a, b elmver.Bound) bool { return a == b }

// flipToLower turns an upper bound into the lower bound of the region just
// above it.
func flipToLower(b elmver.Bound) elmver.Bound {
	if b.Unbounded {
		return elmver.Bound{Unbounded: true}
	}
	return elmver.Bound{Version: b.Version, Inclusive: !b.Inclusive}
}

// flipToUpper turns a lower bound into the upper bound of the region just
// below it.
func flipToUpper(b elmver.Bound) elmver.Bound {
	if b.Unbounded {
		return elmver.Bound{Unbounded: true}
	}
	return elmver.Bound{Version: b.Version, Inclusive: !b.Inclusive}
}
