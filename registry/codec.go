// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/elmver"
)

// Binary index layout, all integers big-endian:
//
//	magic "EWRG", format byte 0x01
//	u32 entry count
//	per entry:
//	  author, name: u16 length + bytes
//	  u32 version count
//	  per version: packed triple (see below)
//	  per version: u16 dependency count, then per dependency
//	    author, name (u16-prefixed), constraint string (u16-prefixed)
//
// A version triple packs to three bytes when every component fits a byte
// below 0xFF; otherwise a 0xFF marker byte is followed by three u32s.
var binaryMagic = []byte{'E', 'W', 'R', 'G', 0x01}

func decodeBinary(data []byte) (*Registry, error) {
	rd := bytes.NewReader(data[len(binaryMagic):])
	r := &Registry{tree: newEntryTrie()}

	var count uint32
	if err := binary.Read(rd, binary.BigEndian, &count); err != nil {
		return nil, errors.Wrap(err, "registry header")
	}

	prevKey := ""
	for i := uint32(0); i < count; i++ {
		e := &Entry{}
		var err error
		if e.Author, err = readString(rd); err != nil {
			return nil, errors.Wrapf(err, "entry %d author", i)
		}
		if e.Name, err = readString(rd); err != nil {
			return nil, errors.Wrapf(err, "entry %d name", i)
		}

		key := e.Key()
		if key <= prevKey {
			return nil, errors.Errorf("registry entries out of order at %s", key)
		}
		prevKey = key

		var nvers uint32
		if err := binary.Read(rd, binary.BigEndian, &nvers); err != nil {
			return nil, errors.Wrapf(err, "%s version count", key)
		}
		e.Versions = make([]elmver.Version, nvers)
		for j := range e.Versions {
			if e.Versions[j], err = readVersion(rd); err != nil {
				return nil, errors.Wrapf(err, "%s version %d", key, j)
			}
			if j > 0 && !e.Versions[j-1].Less(e.Versions[j]) {
				return nil, errors.Errorf("%s versions out of order at %s", key, e.Versions[j])
			}
		}

		for _, v := range e.Versions {
			var ndeps uint16
			if err := binary.Read(rd, binary.BigEndian, &ndeps); err != nil {
				return nil, errors.Wrapf(err, "%s %s dependency count", key, v)
			}
			// The deps section is authoritative for every version: zero
			// entries means "known to depend on nothing", not "unknown".
			deps := make(map[string]elmver.Range, ndeps)
			for k := uint16(0); k < ndeps; k++ {
				da, err := readString(rd)
				if err != nil {
					return nil, errors.Wrapf(err, "%s %s dependency author", key, v)
				}
				dn, err := readString(rd)
				if err != nil {
					return nil, errors.Wrapf(err, "%s %s dependency name", key, v)
				}
				cs, err := readString(rd)
				if err != nil {
					return nil, errors.Wrapf(err, "%s %s dependency constraint", key, v)
				}
				rng, err := elmver.ParseConstraint(cs)
				if err != nil {
					return nil, errors.Wrapf(err, "%s %s dependency on %s/%s", key, v, da, dn)
				}
				deps[da+"/"+dn] = rng
			}
			if e.deps == nil {
				e.deps = make(map[elmver.Version]map[string]elmver.Range)
			}
			e.deps[v] = deps
		}

		r.tree.Insert(key, e)
		r.totalVersions += len(e.Versions)
	}
	return r, nil
}

// Encode writes the registry in the binary format, entries in key order.
func (r *Registry) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(binaryMagic); err != nil {
		return err
	}
	entries := r.All()
	if err := binary.Write(bw, binary.BigEndian, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeString(bw, e.Author); err != nil {
			return err
		}
		if err := writeString(bw, e.Name); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.BigEndian, uint32(len(e.Versions))); err != nil {
			return err
		}
		for _, v := range e.Versions {
			if err := writeVersion(bw, v); err != nil {
				return err
			}
		}
		for _, v := range e.Versions {
			deps := e.deps[v]
			if err := binary.Write(bw, binary.BigEndian, uint16(len(deps))); err != nil {
				return err
			}
			keys := make([]string, 0, len(deps))
			for k := range deps {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				n, err := SplitName(k)
				if err != nil {
					return err
				}
				if err := writeString(bw, n.Author); err != nil {
					return err
				}
				if err := writeString(bw, n.Name); err != nil {
					return err
				}
				if err := writeString(bw, deps[k].ConstraintString()); err != nil {
					return err
				}
			}
		}
	}
	return bw.Flush()
}

// Text index: one "author/name@x.y.z" per line, sorted, comments with '#'.
func decodeText(data []byte) (*Registry, error) {
	r := &Registry{tree: newEntryTrie()}
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		at := strings.IndexByte(line, '@')
		if at < 0 {
			return nil, errors.Errorf("registry line %d: want author/name@version, got %q", lineno, line)
		}
		n, err := SplitName(line[:at])
		if err != nil {
			return nil, errors.Wrapf(err, "registry line %d", lineno)
		}
		v, err := elmver.ParseVersion(line[at+1:])
		if err != nil {
			return nil, errors.Wrapf(err, "registry line %d", lineno)
		}

		key := n.String()
		e, has := r.tree.Get(key)
		if !has {
			e = &Entry{Author: n.Author, Name: n.Name}
			r.tree.Insert(key, e)
		}
		if containsVersion(e.Versions, v) {
			return nil, errors.Errorf("registry line %d: duplicate %s@%s", lineno, key, v)
		}
		e.Versions = append(e.Versions, v)
		r.totalVersions++
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading registry")
	}

	r.tree.Walk(func(_ string, e *Entry) bool {
		sort.Slice(e.Versions, func(i, j int) bool { return e.Versions[i].Less(e.Versions[j]) })
		return false
	})
	return r, nil
}

func readString(rd *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(rd, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return errors.Errorf("string too long for index: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readVersion(rd *bytes.Reader) (elmver.Version, error) {
	b0, err := rd.ReadByte()
	if err != nil {
		return elmver.Version{}, err
	}
	if b0 != 0xFF {
		b1, err := rd.ReadByte()
		if err != nil {
			return elmver.Version{}, err
		}
		b2, err := rd.ReadByte()
		if err != nil {
			return elmver.Version{}, err
		}
		return elmver.Version{Major: uint64(b0), Minor: uint64(b1), Patch: uint64(b2)}, nil
	}
	var wide [3]uint32
	if err := binary.Read(rd, binary.BigEndian, &wide); err != nil {
		return elmver.Version{}, err
	}
	return elmver.Version{Major: uint64(wide[0]), Minor: uint64(wide[1]), Patch: uint64(wide[2])}, nil
}

func writeVersion(w io.Writer, v elmver.Version) error {
	if v.Major < 0xFF && v.Minor < 0xFF && v.Patch < 0xFF {
		_, err := w.Write([]byte{byte(v.Major), byte(v.Minor), byte(v.Patch)})
		return err
	}
	if _, err := w.Write([]byte{0xFF}); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, [3]uint32{uint32(v.Major), uint32(v.Minor), uint32(v.Patch)})
}
