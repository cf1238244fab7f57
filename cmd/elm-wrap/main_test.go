// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import "testing"

func TestParseArgs(t *testing.T) {
	cases := []struct {
		args      []string
		cmdName   string
		printHelp bool
		exit      bool
	}{
		{args: []string{"elm-wrap"}, exit: true},
		{args: []string{"elm-wrap", "help"}, exit: true},
		{args: []string{"elm-wrap", "-h"}, exit: true},
		{args: []string{"elm-wrap", "install"}, cmdName: "install"},
		{args: []string{"elm-wrap", "install", "elm/http"}, cmdName: "install"},
		{args: []string{"elm-wrap", "help", "install"}, cmdName: "install", printHelp: true},
		{args: []string{"elm-wrap", "repository", "mirror"}, cmdName: "repository"},
	}

	for _, c := range cases {
		cmdName, printHelp, exit := parseArgs(c.args)
		if exit != c.exit {
			t.Errorf("parseArgs(%v) exit = %v, want %v", c.args, exit, c.exit)
			continue
		}
		if exit {
			continue
		}
		if cmdName != c.cmdName || printHelp != c.printHelp {
			t.Errorf("parseArgs(%v) = (%q, %v), want (%q, %v)",
				c.args, cmdName, printHelp, c.cmdName, c.printHelp)
		}
	}
}

func TestParseRequest(t *testing.T) {
	r, err := parseRequest("elm/http")
	if err != nil {
		t.Fatal(err)
	}
	if r.Name.Author != "elm" || r.Name.Name != "http" || r.Version != nil {
		t.Errorf("parseRequest(elm/http) = %+v", r)
	}

	r, err = parseRequest("elm/http@2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if r.Version == nil || r.Version.String() != "2.0.0" {
		t.Errorf("parseRequest(elm/http@2.0.0) = %+v", r)
	}

	for _, bad := range []string{"http", "elm/", "elm/http@nope", "@1.0.0"} {
		if _, err := parseRequest(bad); err == nil {
			t.Errorf("parseRequest(%q) should fail", bad)
		}
	}
}
