// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/fetch"
	"github.com/elmwrap/wrap/pubgrub"
	"github.com/elmwrap/wrap/registry"
)

// Planner runs solves against the registry and turns their results into
// install plans.
type Planner struct {
	Registry *registry.Registry
	Fetcher  *fetch.Fetcher

	// PruneOrphans removes locked packages absent from the solution. Off
	// by default: the stock plan lists additions and version changes of
	// solved packages only, never removals.
	PruneOrphans bool

	// Trace receives solver trace output when set.
	Trace *log.Logger
}

// PlanResult carries the winning strategy alongside the plan and the new
// full assignment.
type PlanResult struct {
	Plan     *InstallPlan
	Strategy Strategy

	// Selected maps "author/name" to the version the solver chose, for
	// every package in the solution.
	Selected map[string]elmver.Version

	Stats pubgrub.Stats
}

// Plan tries each strategy in order and returns the first that solves. If
// every strategy fails the last NoSolutionError is returned, carrying its
// narrative explanation.
func (p *Planner) Plan(m *Manifest, req *Request, strategies []Strategy) (*PlanResult, error) {
	if len(strategies) == 0 {
		strategies = InstallCascade
	}

	var lastErr error
	for _, s := range strategies {
		res, err := p.planOne(m, req, s)
		if err == nil {
			return res, nil
		}
		if _, noSolution := err.(*pubgrub.NoSolutionError); !noSolution {
			return nil, err
		}
		lastErr = err
		if p.Trace != nil {
			p.Trace.Printf("strategy %s found no solution, cascading", s)
		}
	}
	return nil, lastErr
}

func (p *Planner) planOne(m *Manifest, req *Request, s Strategy) (*PlanResult, error) {
	provider := pubgrub.NewProvider(p.Registry)
	rootDeps := rootConstraints(m, s, req, provider)

	solver, err := pubgrub.Prepare(pubgrub.SolveParameters{
		RootDependencies: rootDeps,
		TraceLogger:      p.Trace,
	}, provider)
	if err != nil {
		return nil, err
	}
	sol, err := solver.Solve()
	if err != nil {
		return nil, err
	}

	selected := make(map[string]elmver.Version)
	for _, pkg := range sol.Packages() {
		v, _ := sol.Version(pkg)
		selected[provider.NameOf(pkg).String()] = v
	}

	return &PlanResult{
		Plan:     p.diff(m, selected),
		Strategy: s,
		Selected: selected,
		Stats:    sol.Stats,
	}, nil
}

// diff compares the solved assignment against the project's current lock.
func (p *Planner) diff(m *Manifest, selected map[string]elmver.Version) *InstallPlan {
	locked := map[string]elmver.Version{}
	if m.Kind == Application {
		locked = m.Locked()
	}

	plan := &InstallPlan{}
	for pkg, newV := range selected {
		n, err := registry.SplitName(pkg)
		if err != nil {
			continue
		}
		oldV, wasLocked := locked[pkg]
		switch {
		case !wasLocked:
			v := newV
			plan.Changes = append(plan.Changes, PackageChange{Author: n.Author, Name: n.Name, New: &v})
		case oldV != newV:
			ov, nv := oldV, newV
			plan.Changes = append(plan.Changes, PackageChange{Author: n.Author, Name: n.Name, Old: &ov, New: &nv})
		}
	}

	if p.PruneOrphans {
		for pkg, oldV := range locked {
			if _, stillThere := selected[pkg]; stillThere {
				continue
			}
			n, err := registry.SplitName(pkg)
			if err != nil {
				continue
			}
			ov := oldV
			plan.Changes = append(plan.Changes, PackageChange{Author: n.Author, Name: n.Name, Old: &ov})
		}
	}

	plan.Sort()
	return plan
}

// Apply materializes a plan: every added or moved package is fetched into
// the cache unless already fully downloaded.
func (p *Planner) Apply(ctx context.Context, plan *InstallPlan) error {
	for _, c := range plan.Changes {
		if c.New == nil {
			continue
		}
		if err := p.Fetcher.FetchPackage(ctx, c.Author, c.Name, *c.New); err != nil {
			return errors.Wrapf(err, "fetching %s/%s %s", c.Author, c.Name, c.New)
		}
	}
	return nil
}

// Materialize fetches the whole solved assignment, not just the diff, so
// a plain install leaves every pinned package fully downloaded.
func (p *Planner) Materialize(ctx context.Context, selected map[string]elmver.Version) error {
	for _, pkg := range sortedVersionKeys(selected) {
		n, err := registry.SplitName(pkg)
		if err != nil {
			return err
		}
		if err := p.Fetcher.FetchPackage(ctx, n.Author, n.Name, selected[pkg]); err != nil {
			return errors.Wrapf(err, "fetching %s %s", pkg, selected[pkg])
		}
	}
	return nil
}

// Commit folds a successful plan back into the manifest's dependency
// maps: the requested package lands in direct, other additions in
// indirect, and version moves are applied in place.
func Commit(m *Manifest, req *Request, res *PlanResult) {
	if m.Kind == Package {
		return
	}
	for _, c := range res.Plan.Changes {
		pkg := c.Author + "/" + c.Name
		switch c.Kind() {
		case Remove:
			delete(m.Direct, pkg)
			delete(m.Indirect, pkg)
			delete(m.TestDirect, pkg)
			delete(m.TestIndirect, pkg)
		case Add:
			if req != nil && req.Name.String() == pkg {
				setVersion(&m.Direct, pkg, *c.New)
			} else {
				setVersion(&m.Indirect, pkg, *c.New)
			}
		default:
			for _, section := range []*map[string]elmver.Version{&m.Direct, &m.Indirect, &m.TestDirect, &m.TestIndirect} {
				if _, ok := (*section)[pkg]; ok {
					(*section)[pkg] = *c.New
				}
			}
			if req != nil && req.Name.String() == pkg {
				if _, ok := m.Direct[pkg]; !ok {
					// A requested package living in indirect is promoted.
					delete(m.Indirect, pkg)
					setVersion(&m.Direct, pkg, *c.New)
				}
			}
		}
	}
}

func setVersion(section *map[string]elmver.Version, pkg string, v elmver.Version) {
	if *section == nil {
		*section = make(map[string]elmver.Version)
	}
	(*section)[pkg] = v
}

// RemovePackage drops a package from the project's dependency maps
// without running the solver. Orphaned indirect dependencies are left in
// place.
func RemovePackage(m *Manifest, n registry.Name) (*InstallPlan, error) {
	pkg := n.String()
	plan := &InstallPlan{}

	if m.Kind == Package {
		if r, ok := m.Deps[pkg]; ok {
			old := r.Lower.Version
			delete(m.Deps, pkg)
			plan.Changes = append(plan.Changes, PackageChange{Author: n.Author, Name: n.Name, Old: &old})
			return plan, nil
		}
		if r, ok := m.TestDeps[pkg]; ok {
			old := r.Lower.Version
			delete(m.TestDeps, pkg)
			plan.Changes = append(plan.Changes, PackageChange{Author: n.Author, Name: n.Name, Old: &old})
			return plan, nil
		}
		return nil, errors.Errorf("%s is not a dependency of this package", pkg)
	}

	if v, ok := m.Direct[pkg]; ok {
		old := v
		delete(m.Direct, pkg)
		plan.Changes = append(plan.Changes, PackageChange{Author: n.Author, Name: n.Name, Old: &old})
		return plan, nil
	}
	if v, ok := m.TestDirect[pkg]; ok {
		old := v
		delete(m.TestDirect, pkg)
		plan.Changes = append(plan.Changes, PackageChange{Author: n.Author, Name: n.Name, Old: &old})
		return plan, nil
	}
	return nil, errors.Errorf("%s is not a direct dependency of this project", pkg)
}
