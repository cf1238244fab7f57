// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elmwrap/wrap/cache"
	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/fetch"
	"github.com/elmwrap/wrap/pubgrub"
	"github.com/elmwrap/wrap/registry"
)

// depMap serves dependency maps for registry fixtures, keyed
// "author/name@version".
type depMap map[string]map[string]elmver.Range

func (d depMap) Dependencies(author, name string, v elmver.Version) (map[string]elmver.Range, bool, error) {
	m, ok := d[author+"/"+name+"@"+v.String()]
	return m, ok, nil
}

// fixtureRegistry builds a registry whose versions come from the listed
// "author/name@version" lines and whose dependency maps come from deps
// ("dep": "constraint"). Every listed version gets an entry, so leaves
// resolve to empty maps.
func fixtureRegistry(t *testing.T, lines []string, deps map[string]map[string]string) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.txt")
	if err := ioutil.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	reg, err := registry.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	dm := depMap{}
	for _, line := range lines {
		dm[line] = map[string]elmver.Range{}
	}
	for key, ds := range deps {
		m := map[string]elmver.Range{}
		for pkg, cs := range ds {
			r, err := elmver.ParseConstraint(cs)
			if err != nil {
				t.Fatal(err)
			}
			m[pkg] = r
		}
		dm[key] = m
	}
	reg.AttachDepSource(dm)
	return reg
}

func emptyApp(t *testing.T) *Manifest {
	t.Helper()
	m, err := readManifest(strings.NewReader(`{
		"type": "application",
		"dependencies": {"direct": {}, "indirect": {}},
		"test-dependencies": {"direct": {}, "indirect": {}}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func appWithDirect(t *testing.T, direct map[string]string) *Manifest {
	t.Helper()
	m := emptyApp(t)
	for pkg, vs := range direct {
		setVersion(&m.Direct, pkg, mustVersion(t, vs))
	}
	return m
}

func req(t *testing.T, pkg string, version string) *Request {
	t.Helper()
	n, err := registry.SplitName(pkg)
	if err != nil {
		t.Fatal(err)
	}
	r := &Request{Name: n}
	if version != "" {
		v := mustVersion(t, version)
		r.Version = &v
	}
	return r
}

func TestPlanSimpleAdd(t *testing.T) {
	reg := fixtureRegistry(t,
		[]string{"elm/core@1.0.0", "elm/html@1.0.0"},
		map[string]map[string]string{
			"elm/html@1.0.0": {"elm/core": "1.0.0 <= v < 2.0.0"},
		})

	p := &Planner{Registry: reg}
	res, err := p.Plan(emptyApp(t), req(t, "elm/html", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != ExactAll {
		t.Errorf("winning strategy = %s, want exact-all", res.Strategy)
	}
	if len(res.Plan.Changes) != 2 {
		t.Fatalf("plan = %s, want two adds", res.Plan)
	}
	for _, c := range res.Plan.Changes {
		if c.Kind() != Add || c.New.String() != "1.0.0" {
			t.Errorf("unexpected change %s", c)
		}
	}
}

func TestPlanConflictNarrative(t *testing.T) {
	reg := fixtureRegistry(t,
		[]string{"a/x@1.0.0", "a/y@1.0.0"},
		map[string]map[string]string{
			"a/x@1.0.0": {"a/y": "2.0.0 <= v < 3.0.0"},
		})

	p := &Planner{Registry: reg}
	_, err := p.Plan(emptyApp(t), req(t, "a/x", ""), nil)
	if err == nil {
		t.Fatal("expected no solution")
	}
	ns, ok := err.(*pubgrub.NoSolutionError)
	if !ok {
		t.Fatalf("want *pubgrub.NoSolutionError, got %T: %v", err, err)
	}
	for _, want := range []string{"a/x depends on a/y", "no versions of a/y satisfy the constraints"} {
		if !strings.Contains(ns.Explanation, want) {
			t.Errorf("narrative missing %q:\n%s", want, ns.Explanation)
		}
	}
}

func TestPlanInstallIdempotent(t *testing.T) {
	reg := fixtureRegistry(t,
		[]string{"a/x@1.2.3", "a/x@2.0.0"},
		nil)

	m := appWithDirect(t, map[string]string{"a/x": "1.2.3"})
	p := &Planner{Registry: reg}

	res, err := p.Plan(m, req(t, "a/x", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != ExactAll {
		t.Errorf("cascade should stop at exact-all, got %s", res.Strategy)
	}
	if !res.Plan.Empty() {
		t.Errorf("reinstalling the locked version should plan nothing, got %s", res.Plan)
	}
}

func TestPlanCrossMajorViaExplicitVersion(t *testing.T) {
	reg := fixtureRegistry(t,
		[]string{"a/x@1.2.3", "a/x@2.0.0"},
		nil)

	m := appWithDirect(t, map[string]string{"a/x": "1.2.3"})
	p := &Planner{Registry: reg}

	res, err := p.Plan(m, req(t, "a/x", "2.0.0"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != CrossMajorForTarget {
		t.Errorf("winning strategy = %s, want cross-major-for-target", res.Strategy)
	}
	if len(res.Plan.Changes) != 1 {
		t.Fatalf("plan = %s", res.Plan)
	}
	c := res.Plan.Changes[0]
	if c.Kind() != Upgrade || c.Old.String() != "1.2.3" || c.New.String() != "2.0.0" {
		t.Errorf("change = %s, want upgrade 1.2.3 -> 2.0.0", c)
	}
}

func TestPlanStrategyMonotonicity(t *testing.T) {
	reg := fixtureRegistry(t,
		[]string{"a/x@1.0.0", "a/x@1.1.0", "b/c@1.0.0", "b/c@1.2.0"},
		map[string]map[string]string{
			"a/x@1.0.0": {"b/c": "1.0.0 <= v < 2.0.0"},
			"a/x@1.1.0": {"b/c": "1.0.0 <= v < 2.0.0"},
		})

	m := appWithDirect(t, map[string]string{"a/x": "1.0.0"})
	setVersion(&m.Indirect, "b/c", mustVersion(t, "1.0.0"))
	p := &Planner{Registry: reg}

	// Exact-all solves, so every later strategy must solve too.
	for _, s := range InstallCascade {
		if _, err := p.Plan(m, req(t, "a/x", ""), []Strategy{s}); err != nil {
			t.Errorf("strategy %s failed where exact-all succeeds: %v", s, err)
		}
	}
}

func TestPlanConservativityUnderExactAll(t *testing.T) {
	reg := fixtureRegistry(t,
		[]string{"a/x@1.0.0", "a/x@1.5.0", "b/c@1.0.0", "b/c@1.9.0"},
		map[string]map[string]string{
			"a/x@1.0.0": {"b/c": "1.0.0 <= v < 2.0.0"},
			"a/x@1.5.0": {"b/c": "1.0.0 <= v < 2.0.0"},
		})

	m := appWithDirect(t, map[string]string{"a/x": "1.0.0"})
	setVersion(&m.Indirect, "b/c", mustVersion(t, "1.0.0"))
	p := &Planner{Registry: reg}

	res, err := p.Plan(m, nil, []Strategy{ExactAll})
	if err != nil {
		t.Fatal(err)
	}
	for pkg, v := range m.Locked() {
		if res.Selected[pkg] != v {
			t.Errorf("%s selected at %s, lock pins %s", pkg, res.Selected[pkg], v)
		}
	}
	if !res.Plan.Empty() {
		t.Errorf("exact-all over a consistent lock should plan nothing: %s", res.Plan)
	}
}

func TestPlanUpgradeWithinMajor(t *testing.T) {
	reg := fixtureRegistry(t,
		[]string{"a/x@1.0.0", "a/x@1.4.0", "a/x@2.0.0"},
		nil)

	m := appWithDirect(t, map[string]string{"a/x": "1.0.0"})
	p := &Planner{Registry: reg}

	res, err := p.Plan(m, nil, []Strategy{UpgradableWithinMajor})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Plan.Changes) != 1 {
		t.Fatalf("plan = %s", res.Plan)
	}
	c := res.Plan.Changes[0]
	if c.Kind() != Upgrade || c.New.String() != "1.4.0" {
		t.Errorf("change = %s, want upgrade to 1.4.0 staying under 2.0.0", c)
	}
}

func TestCommit(t *testing.T) {
	reg := fixtureRegistry(t,
		[]string{"elm/core@1.0.0", "elm/html@1.0.0"},
		map[string]map[string]string{
			"elm/html@1.0.0": {"elm/core": "1.0.0 <= v < 2.0.0"},
		})

	m := emptyApp(t)
	p := &Planner{Registry: reg}
	r := req(t, "elm/html", "")
	res, err := p.Plan(m, r, nil)
	if err != nil {
		t.Fatal(err)
	}

	Commit(m, r, res)
	if m.Direct["elm/html"] != mustVersion(t, "1.0.0") {
		t.Errorf("requested package should land in direct: %v", m.Direct)
	}
	if m.Indirect["elm/core"] != mustVersion(t, "1.0.0") {
		t.Errorf("transitive dependency should land in indirect: %v", m.Indirect)
	}
}

func TestRemovePackage(t *testing.T) {
	m := appWithDirect(t, map[string]string{"a/x": "1.0.0"})
	setVersion(&m.Indirect, "b/c", mustVersion(t, "1.0.0"))

	plan, err := RemovePackage(m, registry.Name{Author: "a", Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Changes) != 1 || plan.Changes[0].Kind() != Remove {
		t.Fatalf("plan = %s", plan)
	}
	if _, still := m.Direct["a/x"]; still {
		t.Error("a/x should be gone from direct")
	}
	// Orphaned indirect dependencies are deliberately left in place.
	if _, kept := m.Indirect["b/c"]; !kept {
		t.Error("orphaned indirect dependency should remain")
	}

	if _, err := RemovePackage(m, registry.Name{Author: "no", Name: "pe"}); err == nil {
		t.Error("removing a non-dependency should fail")
	}
}

func seedCachedPackage(t *testing.T, c *cache.Cache, author, name, version string) {
	t.Helper()
	v := mustVersion(t, version)
	dir := c.Dir(author, name, v)
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"endpoint.json", "elm.json", "docs.json"} {
		if err := ioutil.WriteFile(filepath.Join(dir, f), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := ioutil.WriteFile(filepath.Join(dir, "src", "A.elm"), []byte("module A exposing (..)\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !c.FullyDownloaded(author, name, v) {
		t.Fatal("fixture should be fully downloaded")
	}
}

func TestApplyShortCircuitsWhenCached(t *testing.T) {
	reg := fixtureRegistry(t,
		[]string{"elm/core@1.0.0", "elm/html@1.0.0"},
		map[string]map[string]string{
			"elm/html@1.0.0": {"elm/core": "1.0.0 <= v < 2.0.0"},
		})

	c := cache.New(t.TempDir(), "0.19.1")
	seedCachedPackage(t, c, "elm", "core", "1.0.0")
	seedCachedPackage(t, c, "elm", "html", "1.0.0")

	// Offline fetcher: any real network attempt would fail, so success
	// proves the cache short-circuit.
	p := &Planner{
		Registry: reg,
		Fetcher:  &fetch.Fetcher{Cache: c, Registry: "https://unused.invalid", Offline: true},
	}
	res, err := p.Plan(emptyApp(t), req(t, "elm/html", ""), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(context.Background(), res.Plan); err != nil {
		t.Errorf("Apply over a warm cache should not touch the network: %v", err)
	}
	if err := p.Materialize(context.Background(), res.Selected); err != nil {
		t.Errorf("Materialize over a warm cache should not touch the network: %v", err)
	}

	// A cold cache with an offline fetcher surfaces the offline error.
	cold := cache.New(t.TempDir(), "0.19.1")
	p.Fetcher = &fetch.Fetcher{Cache: cold, Registry: "https://unused.invalid", Offline: true}
	if err := p.Apply(context.Background(), res.Plan); err == nil {
		t.Error("Apply against a cold cache should fail offline")
	}
}
