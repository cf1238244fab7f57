// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache manages the on-disk package store under
// $ELM_HOME/<compiler>/packages. Every package version owns one directory
// holding its metadata triplet (endpoint.json, elm.json, docs.json) and,
// once fully downloaded, an extracted src/ subtree.
package cache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/internal/fs"
)

// Metadata file names within a package version directory.
const (
	EndpointFile = "endpoint.json"
	ElmJSONFile  = "elm.json"
	DocsFile     = "docs.json"
	SrcDirName   = "src"
)

// RegistryFile is the index file name within the packages root.
const RegistryFile = "registry.dat"

// Status classifies one package version's on-disk state.
type Status int

const (
	// NotCached: no usable metadata on disk.
	NotCached Status = iota
	// Broken: metadata present but src/ absent or empty, typically the
	// residue of an interrupted download.
	Broken
	// OK: metadata and a non-empty src/ are both present.
	OK
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Broken:
		return "broken"
	}
	return "not cached"
}

// Cache is a handle on one compiler version's package store.
type Cache struct {
	root string
}

// New returns a Cache rooted at elmHome/compilerVersion/packages.
func New(elmHome, compilerVersion string) *Cache {
	return &Cache{root: filepath.Join(elmHome, compilerVersion, "packages")}
}

// Root returns the packages directory.
func (c *Cache) Root() string {
	return c.root
}

// RegistryPath returns the location of the binary index.
func (c *Cache) RegistryPath() string {
	return filepath.Join(c.root, RegistryFile)
}

// Dir returns the directory owned by one package version.
func (c *Cache) Dir(author, name string, v elmver.Version) string {
	return filepath.Join(c.root, author, name, v.String())
}

// EndpointPath returns the endpoint.json location for one package version.
func (c *Cache) EndpointPath(author, name string, v elmver.Version) string {
	return filepath.Join(c.Dir(author, name, v), EndpointFile)
}

// ElmJSONPath returns the elm.json location for one package version.
func (c *Cache) ElmJSONPath(author, name string, v elmver.Version) string {
	return filepath.Join(c.Dir(author, name, v), ElmJSONFile)
}

// DocsPath returns the docs.json location for one package version.
func (c *Cache) DocsPath(author, name string, v elmver.Version) string {
	return filepath.Join(c.Dir(author, name, v), DocsFile)
}

// SrcDir returns the extracted source directory for one package version.
func (c *Cache) SrcDir(author, name string, v elmver.Version) string {
	return filepath.Join(c.Dir(author, name, v), SrcDirName)
}

// MetadataExists reports whether all three metadata files are present.
func (c *Cache) MetadataExists(author, name string, v elmver.Version) bool {
	dir := c.Dir(author, name, v)
	for _, f := range []string{EndpointFile, ElmJSONFile, DocsFile} {
		if ok, err := fs.IsRegular(filepath.Join(dir, f)); err != nil || !ok {
			return false
		}
	}
	return true
}

// FullyDownloaded reports whether the metadata triplet and a non-empty
// src/ are present.
func (c *Cache) FullyDownloaded(author, name string, v elmver.Version) bool {
	if !c.MetadataExists(author, name, v) {
		return false
	}
	nonEmpty, err := fs.IsNonEmptyDir(c.SrcDir(author, name, v))
	return err == nil && nonEmpty
}

// Status classifies the version directory as OK, Broken, or NotCached.
func (c *Cache) Status(author, name string, v elmver.Version) Status {
	if !c.MetadataExists(author, name, v) {
		return NotCached
	}
	nonEmpty, err := fs.IsNonEmptyDir(c.SrcDir(author, name, v))
	if err != nil || !nonEmpty {
		return Broken
	}
	return OK
}

// Remove deletes a package version directory and everything under it.
func (c *Cache) Remove(author, name string, v elmver.Version) error {
	return errors.Wrapf(os.RemoveAll(c.Dir(author, name, v)),
		"removing %s/%s %s from cache", author, name, v)
}

// StagingDir returns a sibling path for staged writes; callers build the
// package there and Publish it with a single rename.
func (c *Cache) StagingDir(author, name string, v elmver.Version) string {
	return c.Dir(author, name, v) + ".staging"
}

// Publish renames a staged directory into its final location.
func (c *Cache) Publish(author, name string, v elmver.Version) error {
	return fs.RenameWithFallback(c.StagingDir(author, name, v), c.Dir(author, name, v))
}

// CachedVersion is one (package, version) pair found on disk.
type CachedVersion struct {
	Author, Name string
	Version      elmver.Version
	Status       Status
}

// Scan walks the whole store and classifies every version directory it
// finds, in deterministic (author, name, version) order. Non-version
// entries (the index file, staging residue) are skipped.
func (c *Cache) Scan() ([]CachedVersion, error) {
	var out []CachedVersion
	if ok, err := fs.IsDir(c.root); err != nil || !ok {
		return nil, err
	}

	err := godirwalk.Walk(c.root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(c.root, path)
			if err != nil {
				return err
			}
			parts := strings.Split(rel, string(filepath.Separator))
			if len(parts) != 3 {
				return nil
			}
			v, err := elmver.ParseVersion(parts[2])
			if err != nil {
				return filepath.SkipDir
			}
			out = append(out, CachedVersion{
				Author:  parts[0],
				Name:    parts[1],
				Version: v,
				Status:  c.Status(parts[0], parts[1], v),
			})
			return filepath.SkipDir
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "scanning package cache")
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Author != b.Author {
			return a.Author < b.Author
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Version.Less(b.Version)
	})
	return out, nil
}
