// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fs holds the small set of filesystem helpers the tool shares:
// existence checks, ensure-directory, publish-by-rename, and copies.
package fs

import (
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"
)

// IsDir determines if a directory exists at the given path.
func IsDir(name string) (bool, error) {
	fi, err := os.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

// IsRegular determines if a regular file exists at the given path.
func IsRegular(name string) (bool, error) {
	fi, err := os.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

// IsNonEmptyDir determines if the path refers to a directory containing at
// least one entry.
func IsNonEmptyDir(name string) (bool, error) {
	isDir, err := IsDir(name)
	if err != nil || !isDir {
		return false, err
	}
	dirents, err := godirwalk.ReadDirents(name, nil)
	if err != nil {
		return false, errors.Wrapf(err, "reading directory %s", name)
	}
	return len(dirents) > 0, nil
}

// EnsureDir creates dir and any missing parents with the given mode.
func EnsureDir(dir string, mode os.FileMode) error {
	return errors.Wrapf(os.MkdirAll(dir, mode), "creating directory %s", dir)
}

// RenameWithFallback attempts to rename a file or directory, but falls
// back to copying when the rename fails for any reason. If the
// fallback copy succeeds, src is still removed, emulating normal rename
// behavior.
func RenameWithFallback(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return errors.Wrapf(err, "cannot stat %s", src)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return renameByCopy(src, dst)
}

func renameByCopy(src, dst string) error {
	dir, err := IsDir(src)
	if err != nil {
		return err
	}
	if dir {
		err = CopyDir(src, dst)
	} else {
		err = CopyFile(src, dst)
	}
	if err != nil {
		return errors.Wrapf(err, "rename fallback failed: cannot rename %s to %s", src, dst)
	}
	return errors.Wrapf(os.RemoveAll(src), "cannot delete %s", src)
}

// CopyFile copies the contents of src to dst, creating or truncating dst.
// The mode of src is not carried over.
func CopyFile(src, dst string) error {
	if err := EnsureDir(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return errors.Wrapf(shutil.CopyFile(src, dst, false), "copying %s to %s", src, dst)
}

// CopyDir recursively copies the directory tree rooted at src to dst,
// which must not yet exist.
func CopyDir(src, dst string) error {
	return errors.Wrapf(shutil.CopyTree(src, dst, nil), "copying tree %s to %s", src, dst)
}
