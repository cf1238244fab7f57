// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"strings"

	"github.com/elmwrap/wrap/elmver"
)

// explain renders the stored proof of unsatisfiability as a numbered
// narrative. It walks the cause DAG rooted at the failure incompatibility;
// an incompatibility referenced by more than one parent is printed once,
// given a line number, and referenced by that number afterwards.
func (s *solver) explain() string {
	if s.rootCause == noIncompat {
		return "version solving failed"
	}

	e := &explainer{
		s:           s,
		refCounts:   make(map[IncompatibilityID]int),
		lineNumbers: make(map[IncompatibilityID]int),
	}
	e.countRefs(s.rootCause)

	root := s.store.get(s.rootCause)
	if !root.isDerived() || (root.CauseA == noIncompat && root.CauseB == noIncompat) {
		return fmt.Sprintf("Because %s, version solving failed.", s.incompatString(root))
	}
	e.visit(s.rootCause, true)
	return strings.Join(e.lines, "\n")
}

type explainer struct {
	s *solver

	lines       []string
	refCounts   map[IncompatibilityID]int
	lineNumbers map[IncompatibilityID]int
	counter     int
}

// countRefs counts, for every derived incompatibility, how many parents in
// the proof reference it. The first visit recurses; later references only
// bump the count.
func (e *explainer) countRefs(id IncompatibilityID) {
	if _, seen := e.refCounts[id]; seen {
		e.refCounts[id]++
		return
	}
	e.refCounts[id] = 1
	inc := e.s.store.get(id)
	if !inc.isDerived() {
		return
	}
	if inc.CauseA != noIncompat {
		e.countRefs(inc.CauseA)
	}
	if inc.CauseB != noIncompat {
		e.countRefs(inc.CauseB)
	}
}

func (e *explainer) write(id IncompatibilityID, line string, numbered bool) {
	if numbered {
		e.counter++
		e.lineNumbers[id] = e.counter
		line = fmt.Sprintf("%s (%d)", line, e.counter)
	}
	e.lines = append(e.lines, line)
}

// ref renders an incompatibility for in-line reference: its description,
// with the line number appended when it has one.
func (e *explainer) ref(id IncompatibilityID) string {
	desc := e.s.incompatString(e.s.store.get(id))
	if n, ok := e.lineNumbers[id]; ok {
		return fmt.Sprintf("%s (%d)", desc, n)
	}
	return desc
}

// isSimple reports whether a derived incompatibility can be stated in one
// line: neither of its causes is itself derived.
func (e *explainer) isSimple(id IncompatibilityID) bool {
	inc := e.s.store.get(id)
	if !inc.isDerived() {
		return false
	}
	for _, c := range []IncompatibilityID{inc.CauseA, inc.CauseB} {
		if c != noIncompat && e.s.store.get(c).isDerived() {
			return false
		}
	}
	return true
}

// isCollapsible reports whether a derived incompatibility's derivation can
// be folded into its parent's line: one derived cause (unnumbered) and one
// external cause.
func (e *explainer) isCollapsible(id IncompatibilityID) bool {
	if e.refCounts[id] > 1 {
		return false
	}
	inc := e.s.store.get(id)
	if !inc.isDerived() {
		return false
	}
	a, b := inc.CauseA, inc.CauseB
	if a == noIncompat || b == noIncompat {
		return false
	}
	aDerived := e.s.store.get(a).isDerived()
	bDerived := e.s.store.get(b).isDerived()
	if aDerived == bDerived {
		return false
	}
	derived := a
	if bDerived {
		derived = b
	}
	_, hasLine := e.lineNumbers[derived]
	return !hasLine
}

func (e *explainer) visit(id IncompatibilityID, conclusion bool) {
	inc := e.s.store.get(id)
	numbered := conclusion || e.refCounts[id] > 1

	text := e.s.incompatString(inc)
	if conclusion {
		text = "version solving failed"
	}

	a, b := inc.CauseA, inc.CauseB
	if b == noIncompat {
		a, b = b, a
	}

	// Single cause.
	if a == noIncompat {
		if b == noIncompat {
			e.write(id, fmt.Sprintf("Thus, %s.", text), numbered)
			return
		}
		if e.s.store.get(b).isDerived() {
			e.visit(b, false)
			e.write(id, fmt.Sprintf("Thus, %s.", text), numbered)
		} else {
			e.write(id, fmt.Sprintf("Because %s, %s.", e.ref(b), text), numbered)
		}
		return
	}

	aDerived := e.s.store.get(a).isDerived()
	bDerived := e.s.store.get(b).isDerived()

	switch {
	case aDerived && bDerived:
		_, aLine := e.lineNumbers[a]
		_, bLine := e.lineNumbers[b]
		switch {
		case aLine && bLine:
			e.write(id, fmt.Sprintf("Because %s and %s, %s.", e.ref(a), e.ref(b), text), numbered)
		case aLine || bLine:
			withLine, without := a, b
			if bLine {
				withLine, without = b, a
			}
			e.visit(without, false)
			e.write(id, fmt.Sprintf("And because %s, %s.", e.ref(withLine), text), numbered)
		case e.isSimple(a) || e.isSimple(b):
			simple, involved := a, b
			if e.isSimple(b) {
				simple, involved = b, a
			}
			e.visit(involved, false)
			e.visit(simple, false)
			e.write(id, fmt.Sprintf("Thus, %s.", text), numbered)
		default:
			// Explain the first in full with a forced number, the second
			// inline, then tie them together by reference.
			e.visitNumbered(a)
			e.visit(b, false)
			e.write(id, fmt.Sprintf("And because %s, %s.", e.ref(a), text), numbered)
		}

	case aDerived || bDerived:
		derived, external := a, b
		if bDerived {
			derived, external = b, a
		}
		if _, hasLine := e.lineNumbers[derived]; hasLine {
			e.write(id, fmt.Sprintf("Because %s and %s, %s.", e.ref(external), e.ref(derived), text), numbered)
			return
		}
		if e.isCollapsible(derived) {
			dinc := e.s.store.get(derived)
			dDerived, dExternal := dinc.CauseA, dinc.CauseB
			if e.s.store.get(dExternal).isDerived() {
				dDerived, dExternal = dExternal, dDerived
			}
			e.visit(dDerived, false)
			e.write(id, fmt.Sprintf("And because %s and %s, %s.", e.ref(dExternal), e.ref(external), text), numbered)
			return
		}
		e.visit(derived, false)
		e.write(id, fmt.Sprintf("And because %s, %s.", e.ref(external), text), numbered)

	default:
		e.write(id, fmt.Sprintf("Because %s and %s, %s.", e.ref(a), e.ref(b), text), numbered)
	}
}

// visitNumbered explains an incompatibility and guarantees it receives a
// line number so later lines can reference it.
func (e *explainer) visitNumbered(id IncompatibilityID) {
	if _, ok := e.lineNumbers[id]; ok {
		return
	}
	saved := e.refCounts[id]
	e.refCounts[id] = 2
	e.visit(id, false)
	e.refCounts[id] = saved
}

// incompatString renders an incompatibility as an English clause.
func (s *solver) incompatString(inc *Incompatibility) string {
	if inc.isFailure() {
		return "version solving failed"
	}

	switch inc.Reason {
	case ReasonDependency, ReasonRoot:
		if len(inc.Terms) == 2 && inc.Terms[0].Positive && !inc.Terms[1].Positive {
			return fmt.Sprintf("%s depends on %s",
				s.termText(inc.Terms[0]), s.termText(inc.Terms[1]))
		}
	case ReasonNoVersions:
		if len(inc.Terms) == 1 {
			return fmt.Sprintf("no versions of %s satisfy the constraints %s",
				s.pkgDisplay(inc.Terms[0].Pkg), inc.Terms[0].Range)
		}
	}

	switch len(inc.Terms) {
	case 1:
		t := inc.Terms[0]
		if t.Positive {
			if t.Range.IsAny() {
				return fmt.Sprintf("%s cannot be used", s.pkgDisplay(t.Pkg))
			}
			return fmt.Sprintf("%s is forbidden", s.termText(t))
		}
		return fmt.Sprintf("%s is required", s.termText(t))
	case 2:
		a, b := inc.Terms[0], inc.Terms[1]
		switch {
		case a.Positive && !b.Positive:
			return fmt.Sprintf("%s requires %s", s.termText(a), s.termText(b))
		case !a.Positive && b.Positive:
			return fmt.Sprintf("%s requires %s", s.termText(b), s.termText(a))
		case a.Positive && b.Positive:
			return fmt.Sprintf("%s and %s are incompatible", s.termText(a), s.termText(b))
		}
	}

	parts := make([]string, len(inc.Terms))
	for i, t := range inc.Terms {
		parts[i] = s.termText(t)
	}
	return strings.Join(parts, " and ") + " are incompatible"
}

// termText renders a term's package and version qualifier. A positive term
// admitting every known version of its package is shown without a
// qualifier.
func (s *solver) termText(t Term) string {
	name := s.pkgDisplay(t.Pkg)

	if t.Range.IsAny() {
		if t.Pkg == RootPackage {
			return name
		}
		return "every version of " + name
	}
	if s.coversAllVersions(t.Pkg, t.Range) {
		return name
	}
	if v, ok := t.Range.AsExact(); ok {
		return fmt.Sprintf("%s %s", name, v)
	}
	return fmt.Sprintf("%s %s", name, t.Range.ConstraintString())
}

// coversAllVersions reports whether every known version of pkg lies in r.
// Version lists are memoized by the provider, so for packages the solve
// touched this never refetches.
func (s *solver) coversAllVersions(pkg PackageID, r elmver.Range) bool {
	if pkg == RootPackage {
		return true
	}
	vs, err := s.p.Versions(pkg)
	if err != nil || len(vs) == 0 {
		return false
	}
	for _, v := range vs {
		if !r.Contains(v) {
			return false
		}
	}
	return true
}

func (s *solver) pkgDisplay(pkg PackageID) string {
	if pkg == RootPackage {
		return "the project"
	}
	return s.p.NameOf(pkg).String()
}
