// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import "github.com/armon/go-radix"

// entryTrie is a typed wrapper over a radix tree holding *Entry values, so
// the rest of the package never type-asserts.
type entryTrie struct {
	t *radix.Tree
}

func newEntryTrie() entryTrie {
	return entryTrie{t: radix.New()}
}

// Get is used to look up a specific key, returning the entry and whether it
// was found.
func (t entryTrie) Get(s string) (*Entry, bool) {
	if v, has := t.t.Get(s); has {
		return v.(*Entry), has
	}
	return nil, false
}

// Insert adds a new entry or updates an existing one. Returns whether an
// entry was replaced.
func (t entryTrie) Insert(s string, e *Entry) (*Entry, bool) {
	if v, had := t.t.Insert(s, e); had {
		return v.(*Entry), had
	}
	return nil, false
}

// Len returns the number of entries in the tree.
func (t entryTrie) Len() int {
	return t.t.Len()
}

// Walk visits every entry in key order; fn returning true stops the walk.
func (t entryTrie) Walk(fn func(string, *Entry) bool) {
	t.t.Walk(func(s string, v interface{}) bool {
		return fn(s, v.(*Entry))
	})
}

// WalkPrefix visits entries under the given key prefix in key order.
func (t entryTrie) WalkPrefix(prefix string, fn func(string, *Entry) bool) {
	t.t.WalkPrefix(prefix, func(s string, v interface{}) bool {
		return fn(s, v.(*Entry))
	})
}
