// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/elmwrap/wrap/elmver"
)

// ChangeKind classifies one entry of an install plan.
type ChangeKind int

const (
	Add ChangeKind = iota
	Remove
	Upgrade
	Downgrade
)

func (k ChangeKind) String() string {
	switch k {
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Upgrade:
		return "upgrade"
	}
	return "downgrade"
}

// PackageChange is one planned difference against the current lock. At
// least one of Old and New is set.
type PackageChange struct {
	Author, Name string
	Old, New     *elmver.Version
}

// Kind derives the change class from which versions are present.
func (c PackageChange) Kind() ChangeKind {
	switch {
	case c.Old == nil:
		return Add
	case c.New == nil:
		return Remove
	case c.Old.Less(*c.New):
		return Upgrade
	}
	return Downgrade
}

func (c PackageChange) String() string {
	name := c.Author + "/" + c.Name
	switch c.Kind() {
	case Add:
		return fmt.Sprintf("add %s %s", name, c.New)
	case Remove:
		return fmt.Sprintf("remove %s %s", name, c.Old)
	case Upgrade:
		return fmt.Sprintf("upgrade %s %s -> %s", name, c.Old, c.New)
	}
	return fmt.Sprintf("downgrade %s %s -> %s", name, c.Old, c.New)
}

// InstallPlan is an ordered list of changes materializing one solve.
type InstallPlan struct {
	Changes []PackageChange
}

// Empty reports whether the plan changes nothing.
func (p *InstallPlan) Empty() bool {
	return len(p.Changes) == 0
}

// Sort orders changes by (author, name) for stable output.
func (p *InstallPlan) Sort() {
	sort.Slice(p.Changes, func(i, j int) bool {
		a, b := p.Changes[i], p.Changes[j]
		if a.Author != b.Author {
			return a.Author < b.Author
		}
		return a.Name < b.Name
	})
}

func (p *InstallPlan) String() string {
	if p.Empty() {
		return "nothing to change"
	}
	var buf bytes.Buffer
	for i, c := range p.Changes {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(c.String())
	}
	return buf.String()
}
