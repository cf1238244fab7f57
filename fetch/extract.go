// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/cache"
	"github.com/elmwrap/wrap/internal/fs"
)

// rootWhitelist names the files kept from the archive root after the
// leading directory component is stripped.
var rootWhitelist = map[string]bool{
	cache.ElmJSONFile: true,
	cache.DocsFile:    true,
	"LICENSE":         true,
	"README.md":       true,
}

// extractPackage unpacks the whitelisted subset of a package archive into
// dir: the root metadata files plus everything under src/. Pre-existing
// elm.json and docs.json are preserved; the src/ tree is built beside the
// live one and renamed in, so a package flips to fully-downloaded
// atomically.
func extractPackage(archive, dir string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return errors.Wrap(err, "opening archive")
	}
	defer zr.Close()

	srcStaging := filepath.Join(dir, cache.SrcDirName+".staging")
	if err := os.RemoveAll(srcStaging); err != nil {
		return errors.Wrap(err, "clearing src staging")
	}
	extractedSrc := false

	for _, entry := range zr.File {
		rel, ok := stripLeadingDir(entry.Name)
		if !ok || rel == "" || strings.HasSuffix(entry.Name, "/") {
			continue
		}
		// Reject entries that would escape the package directory.
		if strings.HasPrefix(rel, "/") || escapesDir(rel) {
			return errors.Errorf("archive entry %q escapes the package directory", entry.Name)
		}

		var dst string
		switch {
		case rootWhitelist[rel]:
			dst = filepath.Join(dir, rel)
			if rel == cache.ElmJSONFile || rel == cache.DocsFile {
				if ok, err := fs.IsRegular(dst); err != nil {
					return err
				} else if ok {
					continue
				}
			}
		case strings.HasPrefix(rel, cache.SrcDirName+"/"):
			dst = filepath.Join(srcStaging, strings.TrimPrefix(rel, cache.SrcDirName+"/"))
			extractedSrc = true
		default:
			continue
		}

		if err := writeEntry(entry, dst); err != nil {
			return err
		}
	}

	if !extractedSrc {
		return errors.New("archive contains no src/ entries")
	}

	liveSrc := filepath.Join(dir, cache.SrcDirName)
	if err := os.RemoveAll(liveSrc); err != nil {
		return errors.Wrap(err, "clearing old src")
	}
	return fs.RenameWithFallback(srcStaging, liveSrc)
}

// stripLeadingDir removes the archive's single "<author>-<name>-<ref>/"
// component. Entries without one are not part of the package payload.
func stripLeadingDir(name string) (string, bool) {
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return "", false
	}
	return name[i+1:], true
}

func escapesDir(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func writeEntry(entry *zip.File, dst string) error {
	if err := fs.EnsureDir(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := entry.Open()
	if err != nil {
		return errors.Wrapf(err, "opening archive entry %s", entry.Name)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "writing %s", dst)
	}
	return errors.Wrapf(out.Close(), "writing %s", dst)
}
