// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

import (
	"strings"
	"testing"

	"github.com/elmwrap/wrap/elmver"
)

const appManifest = `{
    "type": "application",
    "source-directories": ["src"],
    "elm-version": "0.19.1",
    "dependencies": {
        "direct": {
            "elm/core": "1.0.5",
            "elm/html": "1.0.0"
        },
        "indirect": {
            "elm/json": "1.1.3"
        }
    },
    "test-dependencies": {
        "direct": {
            "elm-explorations/test": "1.2.2"
        },
        "indirect": {}
    }
}`

const pkgManifest = `{
    "type": "package",
    "name": "me/widget",
    "summary": "widgets",
    "license": "BSD-3-Clause",
    "version": "2.1.0",
    "exposed-modules": ["Widget"],
    "elm-version": "0.19.0 <= v < 0.20.0",
    "dependencies": {
        "elm/core": "1.0.0 <= v < 2.0.0"
    },
    "test-dependencies": {
        "elm-explorations/test": "1.0.0 <= v < 2.0.0"
    }
}`

func mustVersion(t *testing.T, s string) elmver.Version {
	t.Helper()
	v, err := elmver.ParseVersion(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestReadApplicationManifest(t *testing.T) {
	m, err := readManifest(strings.NewReader(appManifest))
	if err != nil {
		t.Fatal(err)
	}
	if m.Kind != Application {
		t.Fatal("kind should be application")
	}
	if m.Direct["elm/core"] != mustVersion(t, "1.0.5") {
		t.Errorf("direct elm/core = %s", m.Direct["elm/core"])
	}
	if m.Indirect["elm/json"] != mustVersion(t, "1.1.3") {
		t.Errorf("indirect elm/json = %s", m.Indirect["elm/json"])
	}
	if m.TestDirect["elm-explorations/test"] != mustVersion(t, "1.2.2") {
		t.Errorf("test direct = %v", m.TestDirect)
	}

	locked := m.Locked()
	if len(locked) != 4 {
		t.Errorf("Locked() folded %d entries, want 4", len(locked))
	}
}

func TestReadPackageManifest(t *testing.T) {
	m, err := readManifest(strings.NewReader(pkgManifest))
	if err != nil {
		t.Fatal(err)
	}
	if m.Kind != Package {
		t.Fatal("kind should be package")
	}
	if m.Name != "me/widget" || m.Version != mustVersion(t, "2.1.0") {
		t.Errorf("name/version = %s %s", m.Name, m.Version)
	}
	r := m.Deps["elm/core"]
	if !r.Contains(mustVersion(t, "1.5.0")) || r.Contains(mustVersion(t, "2.0.0")) {
		t.Errorf("elm/core constraint = %s", r)
	}
}

func TestReadManifestRejectsBadInput(t *testing.T) {
	bad := []string{
		`{}`,
		`{"type": "unknown"}`,
		`{"type": "application", "dependencies": {"direct": {"elm/core": "not-a-version"}}}`,
		`{"type": "application", "dependencies": {"direct": {"no-slash": "1.0.0"}}}`,
		`{"type": "package", "dependencies": {"elm/core": "gibberish"}}`,
		`not json`,
	}
	for _, in := range bad {
		if _, err := readManifest(strings.NewReader(in)); err == nil {
			t.Errorf("readManifest(%q) should fail", in)
		}
	}
}

func TestManifestRoundTrip(t *testing.T) {
	m, err := readManifest(strings.NewReader(appManifest))
	if err != nil {
		t.Fatal(err)
	}

	// Move a version and add an indirect dependency, as an install would.
	m.Direct["elm/html"] = mustVersion(t, "1.0.1")
	setVersion(&m.Indirect, "elm/time", mustVersion(t, "1.0.0"))

	out, err := m.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	// Untouched fields survive.
	if !strings.Contains(string(out), `"source-directories"`) {
		t.Errorf("source-directories dropped:\n%s", out)
	}
	// "type" leads the document, elm.json style.
	if !strings.HasPrefix(string(out), "{\n    \"type\"") {
		t.Errorf("field order broken:\n%s", out)
	}

	back, err := readManifest(strings.NewReader(string(out)))
	if err != nil {
		t.Fatalf("rewritten manifest does not parse: %v\n%s", err, out)
	}
	if back.Direct["elm/html"] != mustVersion(t, "1.0.1") {
		t.Errorf("rewritten direct elm/html = %s", back.Direct["elm/html"])
	}
	if back.Indirect["elm/time"] != mustVersion(t, "1.0.0") {
		t.Errorf("rewritten indirect elm/time missing: %v", back.Indirect)
	}
}

func TestPackageManifestRoundTrip(t *testing.T) {
	m, err := readManifest(strings.NewReader(pkgManifest))
	if err != nil {
		t.Fatal(err)
	}
	out, err := m.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	back, err := readManifest(strings.NewReader(string(out)))
	if err != nil {
		t.Fatalf("rewritten package manifest does not parse: %v\n%s", err, out)
	}
	if back.Deps["elm/core"] != m.Deps["elm/core"] {
		t.Errorf("constraint changed across round trip")
	}
	if !strings.Contains(string(out), `"exposed-modules"`) {
		t.Errorf("exposed-modules dropped:\n%s", out)
	}
}
