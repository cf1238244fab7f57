// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import "github.com/elmwrap/wrap/elmver"

// IncompatibilityID is a stable index into the solver's incompatibility
// store. Causes and watch lists hold ids rather than pointers, which keeps
// the cause DAG acyclic at the type level.
type IncompatibilityID int32

const noIncompat IncompatibilityID = -1

// IncompatReason records how an incompatibility came to exist.
type IncompatReason uint8

const (
	// ReasonDependency: (P, v) depends on Q in some range. Exactly two
	// terms: P positive, Q negative.
	ReasonDependency IncompatReason = iota
	// ReasonNoVersions: a package's required range contains no surviving
	// versions. One positive term.
	ReasonNoVersions
	// ReasonRoot: the synthetic root constraints themselves.
	ReasonRoot
	// ReasonInternal: learned during conflict resolution from two prior
	// incompatibilities.
	ReasonInternal
)

// An Incompatibility asserts that its terms cannot all hold simultaneously.
type Incompatibility struct {
	Terms  []Term
	Reason IncompatReason

	// CauseA and CauseB reference the two incompatibilities an internal
	// incompatibility was resolved from; noIncompat otherwise.
	CauseA, CauseB IncompatibilityID

	attached bool
}

func (inc *Incompatibility) isDerived() bool {
	return inc.Reason == ReasonInternal
}

// isFailure reports whether the incompatibility denotes outright failure:
// no terms, or a lone positive term on the root package.
func (inc *Incompatibility) isFailure() bool {
	if len(inc.Terms) == 0 {
		return true
	}
	return len(inc.Terms) == 1 && inc.Terms[0].Pkg == RootPackage && inc.Terms[0].Positive
}

// termFor returns the term mentioning pkg, if any.
func (inc *Incompatibility) termFor(pkg PackageID) (Term, bool) {
	for _, t := range inc.Terms {
		if t.Pkg == pkg {
			return t, true
		}
	}
	return Term{}, false
}

// incompatStore owns every incompatibility created during a solve. Watch
// lists and causes reference entries by id; entries are never removed.
type incompatStore struct {
	incompats []Incompatibility
}

func (st *incompatStore) add(inc Incompatibility) IncompatibilityID {
	st.incompats = append(st.incompats, inc)
	return IncompatibilityID(len(st.incompats) - 1)
}

func (st *incompatStore) get(id IncompatibilityID) *Incompatibility {
	return &st.incompats[id]
}

func (st *incompatStore) len() int {
	return len(st.incompats)
}

// newDependency builds the two-term incompatibility for "depender at
// dependerRange depends on dep in depRange".
func newDependency(depender PackageID, dependerRange elmver.Range, dep PackageID, depRange elmver.Range) Incompatibility {
	return Incompatibility{
		Terms: []Term{
			{Pkg: depender, Range: dependerRange, Positive: true},
			{Pkg: dep, Range: depRange, Positive: false},
		},
		Reason: ReasonDependency,
		CauseA: noIncompat,
		CauseB: noIncompat,
	}
}

// newNoVersions builds the single-term incompatibility for "no version of
// pkg lies in r".
func newNoVersions(pkg PackageID, r elmver.Range) Incompatibility {
	return Incompatibility{
		Terms:  []Term{{Pkg: pkg, Range: r, Positive: true}},
		Reason: ReasonNoVersions,
		CauseA: noIncompat,
		CauseB: noIncompat,
	}
}
