// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elmver

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// A Bound is one endpoint of a Range: either unbounded, or a version with
// an inclusive/exclusive marker.
type Bound struct {
	Unbounded bool
	Version   Version
	Inclusive bool
}

// Range is a contiguous interval of versions. The zero Range is not
// meaningful; construct through Any, Exact, UntilNextMinor, UntilNextMajor,
// NewRange, or a parser.
type Range struct {
	Lower, Upper Bound
	empty        bool
}

// Any matches every version.
func Any() Range {
	return Range{Lower: Bound{Unbounded: true}, Upper: Bound{Unbounded: true}}
}

// None is the empty range.
func None() Range {
	return Range{empty: true}
}

// Exact matches only v.
func Exact(v Version) Range {
	return Range{
		Lower: Bound{Version: v, Inclusive: true},
		Upper: Bound{Version: v, Inclusive: true},
	}
}

// UntilNextMinor is the half-open interval [v, v.major.(v.minor+1).0).
func UntilNextMinor(v Version) Range {
	return Range{
		Lower: Bound{Version: v, Inclusive: true},
		Upper: Bound{Version: v.NextMinor()},
	}
}

// UntilNextMajor is the half-open interval [v, (v.major+1).0.0).
func UntilNextMajor(v Version) Range {
	return Range{
		Lower: Bound{Version: v, Inclusive: true},
		Upper: Bound{Version: v.NextMajor()},
	}
}

// NewRange builds a range from explicit bounds, normalizing impossible
// bound combinations to the empty range.
func NewRange(lower, upper Bound) Range {
	r := Range{Lower: lower, Upper: upper}
	if lower.Unbounded || upper.Unbounded {
		return r
	}
	switch lower.Version.Compare(upper.Version) {
	case 1:
		r.empty = true
	case 0:
		if !lower.Inclusive || !upper.Inclusive {
			r.empty = true
		}
	}
	return r
}

// IsEmpty reports whether the range matches no version at all.
func (r Range) IsEmpty() bool { return r.empty }

// IsAny reports whether the range matches every version.
func (r Range) IsAny() bool {
	return !r.empty && r.Lower.Unbounded && r.Upper.Unbounded
}

// AsExact returns the single version the range admits, if the range pins
// exactly one.
func (r Range) AsExact() (Version, bool) {
	if r.empty || r.Lower.Unbounded || r.Upper.Unbounded {
		return Version{}, false
	}
	if r.Lower.Inclusive && r.Upper.Inclusive && r.Lower.Version == r.Upper.Version {
		return r.Lower.Version, true
	}
	return Version{}, false
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v Version) bool {
	if r.empty {
		return false
	}
	if !r.Lower.Unbounded {
		switch v.Compare(r.Lower.Version) {
		case -1:
			return false
		case 0:
			if !r.Lower.Inclusive {
				return false
			}
		}
	}
	if !r.Upper.Unbounded {
		switch v.Compare(r.Upper.Version) {
		case 1:
			return false
		case 0:
			if !r.Upper.Inclusive {
				return false
			}
		}
	}
	return true
}

// lowerMax picks the tighter (greater) of two lower bounds.
func lowerMax(a, b Bound) Bound {
	if a.Unbounded {
		return b
	}
	if b.Unbounded {
		return a
	}
	switch a.Version.Compare(b.Version) {
	case 1:
		return a
	case -1:
		return b
	}
	// Same version: exclusive is tighter.
	if !a.Inclusive {
		return a
	}
	return b
}

// upperMin picks the tighter (smaller) of two upper bounds.
func upperMin(a, b Bound) Bound {
	if a.Unbounded {
		return b
	}
	if b.Unbounded {
		return a
	}
	switch a.Version.Compare(b.Version) {
	case -1:
		return a
	case 1:
		return b
	}
	if !a.Inclusive {
		return a
	}
	return b
}

// Intersect computes the intersection of two ranges. It is commutative and
// associative; the empty range is absorbing.
func (r Range) Intersect(o Range) Range {
	if r.empty || o.empty {
		return None()
	}
	return NewRange(lowerMax(r.Lower, o.Lower), upperMin(r.Upper, o.Upper))
}

// Subset reports whether every version in r also lies in o.
func (r Range) Subset(o Range) bool {
	if r.empty {
		return true
	}
	if o.empty {
		return false
	}
	return r.Intersect(o) == r
}

// Intersects reports whether the two ranges share at least one version.
func (r Range) Intersects(o Range) bool {
	return !r.Intersect(o).IsEmpty()
}

func (r Range) String() string {
	if r.empty {
		return "(no versions)"
	}
	if r.IsAny() {
		return "any"
	}
	if v, ok := r.AsExact(); ok {
		return v.String()
	}
	var b strings.Builder
	if !r.Lower.Unbounded {
		op := "<"
		if r.Lower.Inclusive {
			op = "<="
		}
		fmt.Fprintf(&b, "%s %s ", r.Lower.Version, op)
	}
	b.WriteString("v")
	if !r.Upper.Unbounded {
		op := "<"
		if r.Upper.Inclusive {
			op = "<="
		}
		fmt.Fprintf(&b, " %s %s", op, r.Upper.Version)
	}
	return b.String()
}

// ParseConstraint parses Elm's published constraint syntax,
//
//	LOWER <= v < UPPER
//
// in any of its four operator combinations (<= or < on either side), as
// well as a bare "x.y.z", which pins the exact version.
func ParseConstraint(s string) (Range, error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		v, err := ParseVersion(fields[0])
		if err != nil {
			return Range{}, errors.Wrapf(err, "invalid constraint %q", s)
		}
		return Exact(v), nil
	case 5:
		if fields[2] != "v" {
			return Range{}, errors.Errorf("invalid constraint %q: expected \"v\" between the bounds", s)
		}
		lo, err := ParseVersion(fields[0])
		if err != nil {
			return Range{}, errors.Wrapf(err, "invalid constraint %q", s)
		}
		hi, err := ParseVersion(fields[4])
		if err != nil {
			return Range{}, errors.Wrapf(err, "invalid constraint %q", s)
		}
		loIncl, err := parseConstraintOp(fields[1])
		if err != nil {
			return Range{}, errors.Wrapf(err, "invalid constraint %q", s)
		}
		hiIncl, err := parseConstraintOp(fields[3])
		if err != nil {
			return Range{}, errors.Wrapf(err, "invalid constraint %q", s)
		}
		return NewRange(
			Bound{Version: lo, Inclusive: loIncl},
			Bound{Version: hi, Inclusive: hiIncl},
		), nil
	}
	return Range{}, errors.Errorf("invalid constraint %q", s)
}

func parseConstraintOp(op string) (inclusive bool, err error) {
	switch op {
	case "<=":
		return true, nil
	case "<":
		return false, nil
	}
	return false, errors.Errorf("unknown comparison operator %q", op)
}

// ConstraintString renders r back into Elm's published constraint syntax.
// Only bounded ranges have such a rendering; unbounded sides fall back to
// the plain String form.
func (r Range) ConstraintString() string {
	if r.empty || r.Lower.Unbounded || r.Upper.Unbounded {
		return r.String()
	}
	loOp, hiOp := "<", "<"
	if r.Lower.Inclusive {
		loOp = "<="
	}
	if r.Upper.Inclusive {
		hiOp = "<="
	}
	return fmt.Sprintf("%s %s v %s %s", r.Lower.Version, loOp, hiOp, r.Upper.Version)
}
