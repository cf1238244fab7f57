// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package registry

import (
	"bufio"
	"bytes"
	"sort"
	"strings"
	"time"

	"github.com/boltdb/bolt"
	"github.com/jmank88/nuts"
	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/elmver"
)

var depsBucket = []byte("deps")

// DepCache is a persistent store of per-version dependency maps, keyed by
// package and version. The fetch pipeline records every elm.json it parses
// here, so later solves and bulk scans never re-read thousands of files.
//
// Layout: a top-level "deps" bucket holds one sub-bucket per
// "author/name"; within it, a fixed 12-byte version key (three big-endian
// u32s) maps to the dependency list, one "author/name constraint" line per
// dependency.
type DepCache struct {
	db *bolt.DB
}

// OpenDepCache opens or creates the cache file.
func OpenDepCache(path string) (*DepCache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening dependency cache %q", path)
	}
	return &DepCache{db: db}, nil
}

// Close releases the underlying database.
func (c *DepCache) Close() error {
	return errors.Wrap(c.db.Close(), "closing dependency cache")
}

// Put records the dependency map of one package version.
func (c *DepCache) Put(author, name string, v elmver.Version, deps map[string]elmver.Range) error {
	var buf bytes.Buffer
	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte(' ')
		buf.WriteString(deps[k].ConstraintString())
		buf.WriteByte('\n')
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		top, err := tx.CreateBucketIfNotExists(depsBucket)
		if err != nil {
			return err
		}
		pkg, err := top.CreateBucketIfNotExists([]byte(author + "/" + name))
		if err != nil {
			return err
		}
		return pkg.Put(versionKey(v), buf.Bytes())
	})
	return errors.Wrapf(err, "caching dependencies of %s/%s %s", author, name, v)
}

// Dependencies implements DepSource.
func (c *DepCache) Dependencies(author, name string, v elmver.Version) (map[string]elmver.Range, bool, error) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		top := tx.Bucket(depsBucket)
		if top == nil {
			return nil
		}
		pkg := top.Bucket([]byte(author + "/" + name))
		if pkg == nil {
			return nil
		}
		if val := pkg.Get(versionKey(v)); val != nil {
			raw = make([]byte, len(val))
			copy(raw, val)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading cached dependencies of %s/%s %s", author, name, v)
	}
	if raw == nil {
		return nil, false, nil
	}

	deps := make(map[string]elmver.Range)
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		i := strings.IndexByte(line, ' ')
		if i < 0 {
			return nil, false, errors.Errorf("corrupt dependency cache entry for %s/%s %s: %q", author, name, v, line)
		}
		rng, err := elmver.ParseConstraint(line[i+1:])
		if err != nil {
			return nil, false, errors.Wrapf(err, "corrupt dependency cache entry for %s/%s %s", author, name, v)
		}
		deps[line[:i]] = rng
	}
	return deps, true, nil
}

var _ DepSource = (*DepCache)(nil)

// versionKey packs a version into a fixed-width, ordered bolt key.
func versionKey(v elmver.Version) []byte {
	key := make(nuts.Key, 12)
	key[0:4].Put(uint64(uint32(v.Major)))
	key[4:8].Put(uint64(uint32(v.Minor)))
	key[8:12].Put(uint64(uint32(v.Patch)))
	return key
}
