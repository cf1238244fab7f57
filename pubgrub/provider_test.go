// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"testing"

	"github.com/elmwrap/wrap/elmver"
)

func TestProviderInterning(t *testing.T) {
	p := NewProvider(mkSource(t, nil))

	if p.NumPackages() != 1 {
		t.Fatalf("fresh provider should hold only the root, got %d", p.NumPackages())
	}

	x := p.Intern(PkgName{Author: "a", Name: "x"})
	y := p.Intern(PkgName{Author: "a", Name: "y"})
	if x == RootPackage || y == RootPackage {
		t.Error("interned packages must not collide with the root id")
	}
	if x == y {
		t.Error("distinct names interned to the same id")
	}
	if again := p.Intern(PkgName{Author: "a", Name: "x"}); again != x {
		t.Errorf("re-interning changed the id: %d vs %d", again, x)
	}
	if got := p.NameOf(x); got != (PkgName{Author: "a", Name: "x"}) {
		t.Errorf("NameOf(%d) = %v", x, got)
	}
}

func TestProviderVersionsNewestFirstAndMemoized(t *testing.T) {
	src := mkSource(t, map[string]map[string]string{
		"a/x@1.0.0": {},
		"a/x@1.2.0": {},
		"a/x@1.1.0": {},
	})
	p := NewProvider(src)
	x := p.Intern(PkgName{Author: "a", Name: "x"})

	vs, err := p.Versions(x)
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 3 || vs[0] != (elmver.Version{Major: 1, Minor: 2}) || vs[2] != (elmver.Version{Major: 1}) {
		t.Errorf("Versions not newest-first: %v", vs)
	}

	hits, misses := p.CacheStats()
	if hits != 0 || misses != 1 {
		t.Errorf("after first call: hits=%d misses=%d", hits, misses)
	}

	// Mutate the source; the memo must mask it.
	src.versions[PkgName{Author: "a", Name: "x"}] = nil
	vs2, err := p.Versions(x)
	if err != nil {
		t.Fatal(err)
	}
	if len(vs2) != 3 {
		t.Errorf("second call bypassed the memo: %v", vs2)
	}
	hits, _ = p.CacheStats()
	if hits != 1 {
		t.Errorf("second call should hit the memo, hits=%d", hits)
	}
}

func TestProviderUnknownPackageEmpty(t *testing.T) {
	p := NewProvider(mkSource(t, nil))
	ghost := p.Intern(PkgName{Author: "no", Name: "where"})

	vs, err := p.Versions(ghost)
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 0 {
		t.Errorf("unknown package should have no versions, got %v", vs)
	}
}

func TestProviderFilter(t *testing.T) {
	p := NewProvider(mkSource(t, map[string]map[string]string{
		"a/x@1.0.0": {},
		"a/x@2.0.0": {},
	}))
	p.Filter = func(n PkgName, v elmver.Version) bool {
		return v.Major < 2
	}
	x := p.Intern(PkgName{Author: "a", Name: "x"})

	vs, err := p.Versions(x)
	if err != nil {
		t.Fatal(err)
	}
	if len(vs) != 1 || vs[0] != (elmver.Version{Major: 1}) {
		t.Errorf("filter not applied: %v", vs)
	}
}

func TestProviderDependenciesIntern(t *testing.T) {
	p := NewProvider(mkSource(t, map[string]map[string]string{
		"a/x@1.0.0": {"b/c": "1.0.0 <= v < 2.0.0", "b/a": "1.0.0 <= v < 2.0.0"},
	}))
	x := p.Intern(PkgName{Author: "a", Name: "x"})

	deps, err := p.Dependencies(x, elmver.Version{Major: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 2 {
		t.Fatalf("got %d deps, want 2", len(deps))
	}
	// Sorted by id; ids assigned in name order, so b/a precedes b/c.
	if p.NameOf(deps[0].Pkg).Name != "a" || p.NameOf(deps[1].Pkg).Name != "c" {
		t.Errorf("dependency order not deterministic: %v, %v",
			p.NameOf(deps[0].Pkg), p.NameOf(deps[1].Pkg))
	}

	// Second call is memoized.
	_, misses0 := p.CacheStats()
	if _, err := p.Dependencies(x, elmver.Version{Major: 1}); err != nil {
		t.Fatal(err)
	}
	if _, misses := p.CacheStats(); misses != misses0 {
		t.Error("second Dependencies call should not miss")
	}
}
