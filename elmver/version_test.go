// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elmver

import "testing"

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in   string
		want Version
		err  bool
	}{
		{in: "1.0.0", want: Version{1, 0, 0}},
		{in: "0.19.1", want: Version{0, 19, 1}},
		{in: "10.2.33", want: Version{10, 2, 33}},
		{in: "1.0", err: true},
		{in: "1", err: true},
		{in: "1.0.0-beta", err: true},
		{in: "1.0.0+build", err: true},
		{in: "v1.0.0", err: true},
		{in: "", err: true},
		{in: "a.b.c", err: true},
	}

	for _, c := range cases {
		got, err := ParseVersion(c.in)
		if c.err {
			if err == nil {
				t.Errorf("ParseVersion(%q): expected error, got %s", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVersion(%q): unexpected error: %s", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseVersion(%q) = %s, want %s", c.in, got, c.want)
		}
		if got.String() != c.in {
			t.Errorf("ParseVersion(%q).String() = %q; round trip broken", c.in, got.String())
		}
	}
}

func TestVersionCompare(t *testing.T) {
	ordered := []Version{
		{0, 0, 1},
		{0, 1, 0},
		{0, 19, 1},
		{1, 0, 0},
		{1, 0, 1},
		{1, 1, 0},
		{2, 0, 0},
	}

	for i, a := range ordered {
		for j, b := range ordered {
			got := a.Compare(b)
			want := 0
			if i < j {
				want = -1
			} else if i > j {
				want = 1
			}
			if got != want {
				t.Errorf("Compare(%s, %s) = %d, want %d", a, b, got, want)
			}
			if a.Less(b) != (want == -1) {
				t.Errorf("Less(%s, %s) inconsistent with Compare", a, b)
			}
		}
	}
}

func TestVersionNext(t *testing.T) {
	v := Version{1, 2, 3}
	if got := v.NextMinor(); got != (Version{1, 3, 0}) {
		t.Errorf("NextMinor(%s) = %s", v, got)
	}
	if got := v.NextMajor(); got != (Version{2, 0, 0}) {
		t.Errorf("NextMajor(%s) = %s", v, got)
	}
}
