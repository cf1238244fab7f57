// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestIsDirAndIsRegular(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := ioutil.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if ok, err := IsDir(dir); err != nil || !ok {
		t.Errorf("IsDir(%s) = %v, %v", dir, ok, err)
	}
	if ok, err := IsDir(file); err != nil || ok {
		t.Errorf("IsDir on a file = %v, %v", ok, err)
	}
	if ok, err := IsDir(filepath.Join(dir, "missing")); err != nil || ok {
		t.Errorf("IsDir on a missing path = %v, %v", ok, err)
	}
	if ok, err := IsRegular(file); err != nil || !ok {
		t.Errorf("IsRegular(%s) = %v, %v", file, ok, err)
	}
	if ok, err := IsRegular(dir); err != nil || ok {
		t.Errorf("IsRegular on a dir = %v, %v", ok, err)
	}
}

func TestIsNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	if err := os.Mkdir(empty, 0755); err != nil {
		t.Fatal(err)
	}

	if ok, err := IsNonEmptyDir(empty); err != nil || ok {
		t.Errorf("empty dir reported non-empty: %v, %v", ok, err)
	}
	if err := ioutil.WriteFile(filepath.Join(empty, "f"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if ok, err := IsNonEmptyDir(empty); err != nil || !ok {
		t.Errorf("dir with a file reported empty: %v, %v", ok, err)
	}
	if ok, err := IsNonEmptyDir(filepath.Join(dir, "missing")); err != nil || ok {
		t.Errorf("missing dir = %v, %v", ok, err)
	}
}

func TestRenameWithFallback(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := ioutil.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RenameWithFallback(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("src should be gone after rename")
	}
	got, err := ioutil.ReadFile(dst)
	if err != nil || string(got) != "payload" {
		t.Errorf("dst content = %q, %v", got, err)
	}

	if err := RenameWithFallback(filepath.Join(dir, "missing"), dst); err == nil {
		t.Error("renaming a missing source should fail")
	}
}

func TestCopyDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(src, "nested", "f"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "copy")
	if err := CopyDir(src, dst); err != nil {
		t.Fatal(err)
	}
	if got, err := ioutil.ReadFile(filepath.Join(dst, "nested", "f")); err != nil || string(got) != "x" {
		t.Errorf("copied content = %q, %v", got, err)
	}
}
