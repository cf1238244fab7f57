// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"log"
	"sort"

	"github.com/elmwrap/wrap/elmver"
)

// Hard bounds on a single solve. Exceeding any of them is an internal
// error, never reported as "no solution".
const (
	maxDecisions         = 200000
	maxPropagations      = 1000000
	maxConflicts         = 200000
	maxPackages          = 10000
	maxTrailAssignments  = 200000
	maxIncompatibilities = 200000
)

// rootVersion is the version assigned to the synthetic root package.
var rootVersion = elmver.Version{Major: 1}

// SolveParameters hold all arguments to a solver run.
type SolveParameters struct {
	// RootDependencies are the constraints of the project itself, already
	// interned through the provider that will serve the solve.
	RootDependencies []Dependency

	// TraceLogger, when non-nil, receives a line per decision, derivation
	// and conflict.
	TraceLogger *log.Logger
}

// Stats counts the work performed by one solve.
type Stats struct {
	Decisions    int
	Propagations int
	Conflicts    int
}

// Solution is a complete assignment of versions to every package the solve
// decided.
type Solution struct {
	versions map[PackageID]elmver.Version

	// Stats from the run that produced the solution.
	Stats Stats
}

// Version returns the selected version for pkg.
func (sol Solution) Version(pkg PackageID) (elmver.Version, bool) {
	v, ok := sol.versions[pkg]
	return v, ok
}

// Packages lists all decided packages in ascending id order, root excluded.
func (sol Solution) Packages() []PackageID {
	out := make([]PackageID, 0, len(sol.versions))
	for pkg := range sol.versions {
		out = append(out, pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// A Solver performs one dependency resolution run.
type Solver interface {
	Solve() (Solution, error)
}

type badOptsFailure string

func (e badOptsFailure) Error() string { return string(e) }

// NoSolutionError reports that the constraints admit no assignment. Its
// Explanation is the numbered narrative derived from the proof of
// unsatisfiability.
type NoSolutionError struct {
	Explanation string
}

func (e *NoSolutionError) Error() string {
	return e.Explanation
}

// InternalError reports that a solver cap was exceeded.
type InternalError struct {
	Cap   string
	Limit int
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: solver exceeded the %s cap (%d)", e.Cap, e.Limit)
}

// Prepare validates parameters and readies a Solver for use.
func Prepare(params SolveParameters, p VersionProvider) (Solver, error) {
	if p == nil {
		return nil, badOptsFailure("must provide a non-nil provider")
	}
	for _, d := range params.RootDependencies {
		if d.Pkg == RootPackage {
			return nil, badOptsFailure("root cannot depend on itself")
		}
	}
	return &solver{params: params, p: p, tl: params.TraceLogger, rootCause: noIncompat}, nil
}

// assignment is one entry on the solver's trail: a decision or a derived
// term, tagged with the decision level it was made at.
type assignment struct {
	term    Term
	decided bool
	level   int
	cause   IncompatibilityID // noIncompat for decisions
}

// pkgState summarizes every trail assignment for one package.
type pkgState struct {
	used            bool
	hasDecision     bool
	decisionVersion elmver.Version

	// positive is the intersection of all positive assignment ranges;
	// meaningful only when hasPositive.
	hasPositive bool
	positive    elmver.Range

	negatives []elmver.Range
}

type solver struct {
	params SolveParameters
	p      VersionProvider
	tl     *log.Logger

	store   incompatStore
	watches [][]IncompatibilityID

	trail []assignment
	pkgs  []pkgState
	level int

	// changed is a LIFO queue of packages whose assignments changed since
	// the last propagation pass.
	changed []PackageID

	stats     Stats
	rootCause IncompatibilityID
}

func (s *solver) Solve() (Solution, error) {
	if err := s.ensurePkg(RootPackage); err != nil {
		return Solution{}, err
	}

	// The root is decided up front at level 1, and its dependencies become
	// the first incompatibilities. Propagation then derives a positive
	// range for every direct dependency.
	s.level = 1
	if err := s.pushAssignment(assignment{
		term:    Term{Pkg: RootPackage, Range: elmver.Exact(rootVersion), Positive: true},
		decided: true,
		level:   1,
		cause:   noIncompat,
	}); err != nil {
		return Solution{}, err
	}
	for _, d := range s.params.RootDependencies {
		if err := s.ensurePkg(d.Pkg); err != nil {
			return Solution{}, err
		}
		inc := newDependency(RootPackage, elmver.Exact(rootVersion), d.Pkg, d.Range)
		inc.Reason = ReasonRoot
		id, err := s.addIncompat(inc)
		if err != nil {
			return Solution{}, err
		}
		s.attach(id)
	}

	for {
		conflict, err := s.propagate()
		if err != nil {
			return Solution{}, err
		}
		if conflict == noIncompat {
			var made bool
			made, conflict, err = s.decide()
			if err != nil {
				return Solution{}, err
			}
			if conflict == noIncompat {
				if !made {
					return s.solution(), nil
				}
				continue
			}
		}

		learned, target, err := s.resolveConflict(conflict)
		if err != nil {
			return Solution{}, err
		}
		if learned == noIncompat {
			return Solution{}, s.noSolution()
		}
		s.attach(learned)
		s.backjump(target)
		// The learned incompatibility is unit under the truncated trail;
		// queue its packages so propagation derives from it first.
		for _, t := range s.store.get(learned).Terms {
			s.changed = append(s.changed, t.Pkg)
		}
	}
}

func (s *solver) ensurePkg(pkg PackageID) error {
	for int(pkg) >= len(s.pkgs) {
		if len(s.pkgs) >= maxPackages {
			return &InternalError{Cap: "package", Limit: maxPackages}
		}
		s.pkgs = append(s.pkgs, pkgState{})
		s.watches = append(s.watches, nil)
	}
	return nil
}

func (s *solver) addIncompat(inc Incompatibility) (IncompatibilityID, error) {
	if s.store.len() >= maxIncompatibilities {
		return noIncompat, &InternalError{Cap: "incompatibility", Limit: maxIncompatibilities}
	}
	return s.store.add(inc), nil
}

// attach registers the incompatibility on the watch list of every package
// its terms mention. Idempotent.
func (s *solver) attach(id IncompatibilityID) {
	inc := s.store.get(id)
	if inc.attached {
		return
	}
	inc.attached = true
	for _, t := range inc.Terms {
		s.watches[t.Pkg] = append(s.watches[t.Pkg], id)
	}
}

// applyState folds one assignment into its package's summary state.
func (s *solver) applyState(a assignment) {
	st := &s.pkgs[a.term.Pkg]
	applyTo(st, a)
	if a.decided {
		st.hasDecision = true
		if v, ok := a.term.Range.AsExact(); ok {
			st.decisionVersion = v
		}
	}
}

func (s *solver) pushAssignment(a assignment) error {
	if len(s.trail) >= maxTrailAssignments {
		return &InternalError{Cap: "trail", Limit: maxTrailAssignments}
	}
	s.trail = append(s.trail, a)
	s.applyState(a)
	s.changed = append(s.changed, a.term.Pkg)
	return nil
}

type termState uint8

const (
	termInconclusive termState = iota
	termSatisfied
	termContradicted
)

// state evaluates a term against the current trail summary per the PubGrub
// satisfaction relation.
func (s *solver) state(t Term) termState {
	return stateOf(t, &s.pkgs[t.Pkg])
}

func stateOf(t Term, st *pkgState) termState {
	pos := elmver.Any()
	if st.hasPositive {
		pos = st.positive
	}

	if t.Positive {
		if st.hasPositive && pos.Subset(t.Range) {
			return termSatisfied
		}
		if !pos.Intersects(t.Range) {
			return termContradicted
		}
		for _, n := range st.negatives {
			if t.Range.Subset(n) {
				return termContradicted
			}
		}
		return termInconclusive
	}

	// Negative term.
	if st.hasPositive {
		if !pos.Intersects(t.Range) {
			return termSatisfied
		}
		if pos.Subset(t.Range) {
			return termContradicted
		}
	}
	for _, n := range st.negatives {
		if t.Range.Subset(n) {
			return termSatisfied
		}
	}
	return termInconclusive
}

// propagate performs unit propagation until the queue drains or a conflict
// surfaces, returning the conflicting incompatibility in the latter case.
func (s *solver) propagate() (IncompatibilityID, error) {
	for len(s.changed) > 0 {
		pkg := s.changed[len(s.changed)-1]
		s.changed = s.changed[:len(s.changed)-1]

		// Scan every incompatibility watching this package before moving
		// on: one derivation can make another unit in the same list.
		for i := 0; i < len(s.watches[pkg]); i++ {
			id := s.watches[pkg][i]
			inc := s.store.get(id)

			s.stats.Propagations++
			if s.stats.Propagations > maxPropagations {
				return noIncompat, &InternalError{Cap: "propagation", Limit: maxPropagations}
			}

			unit := -1
			inconclusive := 0
			contradicted := false
			for ti := range inc.Terms {
				switch s.state(inc.Terms[ti]) {
				case termContradicted:
					contradicted = true
				case termInconclusive:
					inconclusive++
					unit = ti
				}
				if contradicted || inconclusive > 1 {
					break
				}
			}
			if contradicted || inconclusive > 1 {
				continue
			}

			if inconclusive == 0 {
				// Every term satisfied: conflict.
				s.tracef("conflict: %s", s.describe(id))
				return id, nil
			}

			t := inc.Terms[unit]
			s.tracef("derive: %s", s.describeTerm(t.Negate()))
			if err := s.pushAssignment(assignment{
				term:  t.Negate(),
				level: s.level,
				cause: id,
			}); err != nil {
				return noIncompat, err
			}
		}
	}
	return noIncompat, nil
}

// decide picks the next package and version per the heuristic: among used,
// undecided packages with a non-empty positive range, the one with the
// fewest feasible versions (smallest id on ties), at its newest feasible
// version. Returns made=false with no conflict when nothing is left to
// decide.
func (s *solver) decide() (made bool, conflict IncompatibilityID, err error) {
	best := PackageID(-1)
	bestCount := 0
	var bestVersion elmver.Version

	for pkg := range s.pkgs {
		id := PackageID(pkg)
		st := &s.pkgs[pkg]
		if !st.used || st.hasDecision || !st.hasPositive {
			continue
		}

		count := 0
		var newest elmver.Version
		if !st.positive.IsEmpty() {
			vs, verr := s.p.Versions(id)
			if verr != nil {
				return false, noIncompat, verr
			}
			for _, v := range vs {
				if !st.positive.Contains(v) {
					continue
				}
				if s.negContains(st, v) {
					continue
				}
				if s.conflictingSelection(id, v) != noIncompat {
					continue
				}
				if count == 0 {
					newest = v
				}
				count++
			}
		}

		if count == 0 {
			incID, cerr := s.noVersionsConflict(id, st)
			if cerr != nil {
				return false, noIncompat, cerr
			}
			s.tracef("no versions of %s satisfy %s", s.p.NameOf(id), st.positive)
			return false, incID, nil
		}
		if best == -1 || count < bestCount {
			best = id
			bestCount = count
			bestVersion = newest
		}
	}

	if best == -1 {
		return false, noIncompat, nil
	}

	if s.stats.Decisions >= maxDecisions {
		return false, noIncompat, &InternalError{Cap: "decision", Limit: maxDecisions}
	}
	s.stats.Decisions++
	s.level++
	s.tracef("decide: %s %s (level %d)", s.p.NameOf(best), bestVersion, s.level)
	if err := s.pushAssignment(assignment{
		term:    Term{Pkg: best, Range: elmver.Exact(bestVersion), Positive: true},
		decided: true,
		level:   s.level,
		cause:   noIncompat,
	}); err != nil {
		return false, noIncompat, err
	}

	deps, err := s.p.Dependencies(best, bestVersion)
	if err != nil {
		return false, noIncompat, err
	}
	for _, d := range deps {
		if d.Pkg == best {
			continue
		}
		if err := s.ensurePkg(d.Pkg); err != nil {
			return false, noIncompat, err
		}
		id, err := s.addIncompat(newDependency(best, elmver.Exact(bestVersion), d.Pkg, d.Range))
		if err != nil {
			return false, noIncompat, err
		}
		s.attach(id)
	}
	return true, noIncompat, nil
}

func (s *solver) negContains(st *pkgState, v elmver.Version) bool {
	for _, n := range st.negatives {
		if n.Contains(v) {
			return true
		}
	}
	return false
}

// conflictingSelection reports the incompatibility that deciding (pkg, v)
// would immediately satisfy, if one exists. Filtering such versions before
// deciding is not required for correctness, but it avoids decisions that
// are certain to be undone.
func (s *solver) conflictingSelection(pkg PackageID, v elmver.Version) IncompatibilityID {
	for _, id := range s.watches[pkg] {
		inc := s.store.get(id)
		sat := true
		for ti := range inc.Terms {
			t := inc.Terms[ti]
			if t.Pkg == pkg {
				if t.Positive != t.Range.Contains(v) {
					sat = false
				}
			} else if s.state(t) != termSatisfied {
				sat = false
			}
			if !sat {
				break
			}
		}
		if sat {
			return id
		}
	}
	return noIncompat
}

// noVersionsConflict builds the conflict for a package whose required range
// has no surviving versions. When versions inside the range exist but were
// excluded by earlier derivations, the incompatibility is recorded as
// derived from the excluder's cause chain, which keeps the failure
// narrative anchored to the real reason.
func (s *solver) noVersionsConflict(pkg PackageID, st *pkgState) (IncompatibilityID, error) {
	inc := newNoVersions(pkg, st.positive)

	if vs, err := s.p.Versions(pkg); err == nil {
		for _, v := range vs {
			if !st.positive.Contains(v) {
				continue
			}
			// Newest in-range version: attribute its exclusion.
			causeA, causeB := s.exclusionCauses(pkg, v)
			if causeA != noIncompat {
				inc.Reason = ReasonInternal
				inc.CauseA, inc.CauseB = causeA, causeB
			}
			break
		}
	}

	id, err := s.addIncompat(inc)
	if err != nil {
		return noIncompat, err
	}
	s.attach(id)
	return id, nil
}

// exclusionCauses finds what ruled out version v of pkg: the cause of the
// negative assignment covering it, or the incompatibility the look-ahead
// filter matched, together with the cause supporting that
// incompatibility's other terms.
func (s *solver) exclusionCauses(pkg PackageID, v elmver.Version) (IncompatibilityID, IncompatibilityID) {
	for i := range s.trail {
		a := s.trail[i]
		if a.term.Pkg == pkg && !a.term.Positive && a.term.Range.Contains(v) && a.cause != noIncompat {
			return a.cause, s.supportingCause(a.cause, pkg)
		}
	}
	if id := s.conflictingSelection(pkg, v); id != noIncompat {
		return id, s.supportingCause(id, pkg)
	}
	return noIncompat, noIncompat
}

// supportingCause locates the incompatibility that satisfied the first
// foreign term of id, i.e. the other half of the derivation chain that
// made id fire against pkg.
func (s *solver) supportingCause(id IncompatibilityID, pkg PackageID) IncompatibilityID {
	inc := s.store.get(id)
	for _, t := range inc.Terms {
		if t.Pkg == pkg {
			continue
		}
		var st pkgState
		for i := range s.trail {
			a := s.trail[i]
			if a.term.Pkg != t.Pkg {
				continue
			}
			applyTo(&st, a)
			if termSatisfiedBy(t, &st) {
				if a.cause != noIncompat && a.cause != id {
					return a.cause
				}
				break
			}
		}
	}
	return noIncompat
}

// resolveConflict performs conflict-driven clause learning following the
// PubGrub formulation. It returns the learned incompatibility and the
// level to backjump to, or noIncompat when the conflict proves the whole
// solve unsatisfiable (the proof root is then stored for explanation).
func (s *solver) resolveConflict(conflict IncompatibilityID) (IncompatibilityID, int, error) {
	s.stats.Conflicts++
	if s.stats.Conflicts > maxConflicts {
		return noIncompat, 0, &InternalError{Cap: "conflict", Limit: maxConflicts}
	}

	current := conflict
	for {
		inc := s.store.get(current)
		if inc.isFailure() {
			s.rootCause = current
			return noIncompat, 0, nil
		}

		satIdx, satTermIdx, prevLevel, complete := s.satisfier(inc)
		if !complete {
			// A narrowed learned term is no longer satisfied by the trail.
			// Back off below the highest contributing level.
			if prevLevel < 1 {
				s.rootCause = current
				return noIncompat, 0, nil
			}
			return current, prevLevel, nil
		}

		sat := s.trail[satIdx]
		satTerm := inc.Terms[satTermIdx]

		if sat.decided || prevLevel != sat.level {
			return current, prevLevel, nil
		}

		if sat.cause == noIncompat {
			// Causeless derivation: dropping its term yields the final,
			// unconditional cause.
			terms := make([]Term, 0, len(inc.Terms)-1)
			for ti := range inc.Terms {
				if ti != satTermIdx {
					terms = append(terms, inc.Terms[ti])
				}
			}
			id, err := s.addIncompat(Incompatibility{
				Terms:  terms,
				Reason: ReasonInternal,
				CauseA: current,
				CauseB: noIncompat,
			})
			if err != nil {
				return noIncompat, 0, err
			}
			s.rootCause = id
			return noIncompat, 0, nil
		}

		next, err := s.resolve(current, sat.cause, satTerm.Pkg)
		if err != nil {
			return noIncompat, 0, err
		}
		s.tracef("resolve: %s", s.describe(next))
		current = next
	}
}

// resolve derives a new incompatibility from a and b: the union of their
// terms with every term mentioning pivot removed, and same-package terms
// merged.
func (s *solver) resolve(a, b IncompatibilityID, pivot PackageID) (IncompatibilityID, error) {
	merged := make(map[PackageID]Term)
	var order []PackageID
	addTerm := func(t Term) {
		if t.Pkg == pivot {
			return
		}
		if prev, ok := merged[t.Pkg]; ok {
			merged[t.Pkg] = intersect(prev, t)
			return
		}
		merged[t.Pkg] = t
		order = append(order, t.Pkg)
	}
	for _, t := range s.store.get(a).Terms {
		addTerm(t)
	}
	for _, t := range s.store.get(b).Terms {
		addTerm(t)
	}

	terms := make([]Term, 0, len(order))
	for _, pkg := range order {
		terms = append(terms, merged[pkg])
	}
	return s.addIncompat(Incompatibility{
		Terms:  terms,
		Reason: ReasonInternal,
		CauseA: a,
		CauseB: b,
	})
}

// satisfier finds the earliest trail index at which every term of inc is
// satisfied, the index of the term satisfied last, and the highest decision
// level among the assignments satisfying the other terms (1 when no other
// term exists). complete is false if some term is not satisfied by the full
// trail; prevLevel then carries a conservative backjump target.
func (s *solver) satisfier(inc *Incompatibility) (satIdx, satTermIdx, prevLevel int, complete bool) {
	firstSat := make([]int, len(inc.Terms))
	for i := range firstSat {
		firstSat[i] = -1
	}

	// Replay the trail, folding per-package state for just the packages
	// the incompatibility mentions.
	accs := make(map[PackageID]*pkgState, len(inc.Terms))
	for _, t := range inc.Terms {
		if _, ok := accs[t.Pkg]; !ok {
			accs[t.Pkg] = &pkgState{}
		}
	}

	remaining := len(inc.Terms)
	for i := range s.trail {
		a := s.trail[i]
		st, ok := accs[a.term.Pkg]
		if !ok {
			continue
		}
		applyTo(st, a)
		for ti := range inc.Terms {
			t := inc.Terms[ti]
			if firstSat[ti] >= 0 || t.Pkg != a.term.Pkg {
				continue
			}
			if termSatisfiedBy(t, st) {
				firstSat[ti] = i
				remaining--
			}
		}
		if remaining == 0 {
			break
		}
	}

	satIdx, satTermIdx = -1, -1
	highest := 0
	for ti, idx := range firstSat {
		if idx < 0 {
			continue
		}
		if lvl := s.trail[idx].level; lvl > highest {
			highest = lvl
		}
		if idx > satIdx {
			satIdx = idx
			satTermIdx = ti
		}
	}

	if remaining > 0 || satIdx < 0 {
		return -1, -1, highest - 1, false
	}

	prevLevel = 1
	for ti, idx := range firstSat {
		if ti == satTermIdx || idx < 0 {
			continue
		}
		if lvl := s.trail[idx].level; lvl > prevLevel {
			prevLevel = lvl
		}
	}
	return satIdx, satTermIdx, prevLevel, true
}

func applyTo(st *pkgState, a assignment) {
	st.used = true
	if a.term.Positive {
		if st.hasPositive {
			st.positive = st.positive.Intersect(a.term.Range)
		} else {
			st.hasPositive = true
			st.positive = a.term.Range
		}
	} else {
		st.negatives = append(st.negatives, a.term.Range)
	}
}

// termSatisfiedBy mirrors stateOf's satisfaction arm against an arbitrary
// accumulated pkgState.
func termSatisfiedBy(t Term, st *pkgState) bool {
	return stateOf(t, st) == termSatisfied
}

// backjump truncates the trail to the target level, rebuilds package
// states from the survivors, and re-enqueues every surviving package so
// propagation rescans against newly learned incompatibilities.
func (s *solver) backjump(target int) {
	idx := len(s.trail)
	for idx > 0 && s.trail[idx-1].level > target {
		idx--
	}
	s.trail = s.trail[:idx]
	s.level = target
	s.tracef("backjump to level %d (%d assignments survive)", target, idx)

	for i := range s.pkgs {
		s.pkgs[i] = pkgState{}
	}
	s.changed = s.changed[:0]
	seen := make(map[PackageID]bool)
	for i := range s.trail {
		a := s.trail[i]
		s.applyState(a)
		if !seen[a.term.Pkg] {
			seen[a.term.Pkg] = true
			s.changed = append(s.changed, a.term.Pkg)
		}
	}
}

func (s *solver) solution() Solution {
	versions := make(map[PackageID]elmver.Version)
	for pkg := range s.pkgs {
		st := &s.pkgs[pkg]
		if PackageID(pkg) == RootPackage || !st.hasDecision {
			continue
		}
		versions[PackageID(pkg)] = st.decisionVersion
	}
	return Solution{versions: versions, Stats: s.stats}
}

func (s *solver) noSolution() error {
	return &NoSolutionError{Explanation: s.explain()}
}

func (s *solver) tracef(format string, args ...interface{}) {
	if s.tl != nil {
		s.tl.Printf(format, args...)
	}
}

func (s *solver) describe(id IncompatibilityID) string {
	return s.incompatString(s.store.get(id))
}

func (s *solver) describeTerm(t Term) string {
	name := s.p.NameOf(t.Pkg).String()
	if t.Positive {
		return fmt.Sprintf("%s %s", name, t.Range)
	}
	return fmt.Sprintf("not %s %s", name, t.Range)
}
