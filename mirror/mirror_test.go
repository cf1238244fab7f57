// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mirror

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elmwrap/wrap/cache"
	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/fetch"
	"github.com/elmwrap/wrap/registry"
)

func mv(t *testing.T, s string) elmver.Version {
	t.Helper()
	v, err := elmver.ParseVersion(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// site serves a registry website over TLS, one archive per version.
type site struct {
	srv      *httptest.Server
	archives map[string][]byte // "author/name@version" -> zip bytes
}

func buildZip(t *testing.T, leading string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"elm.json":     `{"type":"package"}`,
		"src/Main.elm": "module Main exposing (..)\n-- " + leading + "\n",
	} {
		w, err := zw.Create(leading + "/" + name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// newSite serves every version listed in the registry fixture.
func newSite(t *testing.T, reg *registry.Registry) *site {
	t.Helper()
	s := &site{archives: make(map[string][]byte)}
	for _, e := range reg.All() {
		for _, v := range e.Versions {
			key := fmt.Sprintf("%s-%s@%s", e.Author, e.Name, v)
			s.archives[key] = buildZip(t, fmt.Sprintf("%s-%s-%s", e.Author, e.Name, v))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case len(parts) == 2 && parts[0] == "archives":
			key := strings.TrimSuffix(parts[1], ".zip")
			if data, ok := s.archives[key]; ok {
				w.Write(data)
				return
			}
		case len(parts) == 5 && parts[0] == "packages":
			key := parts[1] + "-" + parts[2] + "@" + parts[3]
			data, ok := s.archives[key]
			if !ok {
				break
			}
			switch parts[4] {
			case "endpoint.json":
				sum := sha1.Sum(data)
				fmt.Fprintf(w, `{"url": "%s/archives/%s.zip", "hash": "%s"}`,
					s.srv.URL, key, hex.EncodeToString(sum[:]))
				return
			case "elm.json":
				fmt.Fprint(w, `{"type":"package","dependencies":{}}`)
				return
			case "docs.json":
				fmt.Fprint(w, `[]`)
				return
			}
		}
		http.NotFound(w, r)
	})
	s.srv = httptest.NewTLSServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func loadRegistry(t *testing.T, lines ...string) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.txt")
	if err := ioutil.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := registry.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func quietLoggers() (*log.Logger, *log.Logger, *bytes.Buffer, *bytes.Buffer) {
	var out, errb bytes.Buffer
	return log.New(&out, "", 0), log.New(&errb, "", 0), &out, &errb
}

func TestBlacklist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")
	content := `
# a comment
elm/core
elm/html@1.0.0
bad line without slash
rtfeldman/elm-css@2.0.0  network failure fetching: timeout
`
	if err := ioutil.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	var warnings bytes.Buffer
	b, err := LoadBlacklist(path, log.New(&warnings, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}
	if !strings.Contains(warnings.String(), "bad line without slash") {
		t.Error("invalid line should warn")
	}

	if !b.Skips("elm", "core", mv(t, "5.5.5")) {
		t.Error("whole-package entry should skip every version")
	}
	if !b.Skips("elm", "html", mv(t, "1.0.0")) {
		t.Error("version entry should skip that version")
	}
	if b.Skips("elm", "html", mv(t, "1.0.1")) {
		t.Error("version entry should not skip other versions")
	}
	if !b.Skips("rtfeldman", "elm-css", mv(t, "2.0.0")) {
		t.Error("fail-log annotations should parse as blacklist entries")
	}

	// A fail log line feeds back in unchanged.
	line := FailLogLine("a", "b", mv(t, "1.2.3"), fmt.Errorf("boom"))
	if !strings.HasPrefix(line, "a/b@1.2.3  ") {
		t.Errorf("FailLogLine = %q", line)
	}
}

func TestLoadBlacklistMissing(t *testing.T) {
	b, err := LoadBlacklist(filepath.Join(t.TempDir(), "none.txt"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Errorf("missing blacklist should be empty, got %d", b.Len())
	}
}

func TestDownloaderDryRunWithBlacklist(t *testing.T) {
	// Ten versions across two packages; one blacklisted.
	reg := loadRegistry(t,
		"elm/core@1.0.0", "elm/core@1.0.1", "elm/core@1.0.2", "elm/core@1.0.3",
		"elm/core@1.0.4", "elm/core@1.0.5",
		"elm/html@1.0.0", "elm/html@2.0.0", "elm/html@2.0.1", "elm/html@2.0.2",
	)
	blpath := filepath.Join(t.TempDir(), "blacklist.txt")
	if err := ioutil.WriteFile(blpath, []byte("elm/html@2.0.0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	bl, err := LoadBlacklist(blpath, nil)
	if err != nil {
		t.Fatal(err)
	}

	c := cache.New(t.TempDir(), "0.19.1")
	out, errl, outbuf, _ := quietLoggers()
	d := &Downloader{
		Reg:     reg,
		Fetcher: &fetch.Fetcher{Cache: c, Registry: "https://unused.invalid"},
		Cache:   c,
		Opts:    DownloadOptions{DryRun: true, Blacklist: bl},
		Out:     out,
		Err:     errl,
		Sleep:   func(time.Duration) {},
	}

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Queued != 9 {
		t.Errorf("Queued = %d, want 9", res.Queued)
	}
	lines := strings.Count(outbuf.String(), "would download")
	if lines != 9 {
		t.Errorf("dry run printed %d lines, want 9:\n%s", lines, outbuf.String())
	}
	// Registry order: elm/core ascending first, then elm/html.
	first := strings.SplitN(outbuf.String(), "\n", 2)[0]
	if !strings.Contains(first, "elm/core@1.0.0") {
		t.Errorf("first dry run line = %q, want elm/core@1.0.0", first)
	}
}

func newBuilder(t *testing.T, reg *registry.Registry, s *site, outDir, since string) (*Builder, *bytes.Buffer) {
	t.Helper()
	c := cache.New(t.TempDir(), "0.19.1")
	f := &fetch.Fetcher{
		Client:   s.srv.Client(),
		Registry: s.srv.URL,
		Cache:    c,
		TempDir:  t.TempDir(),
	}
	out, errl, outbuf, _ := quietLoggers()
	return &Builder{
		Reg:     reg,
		Fetcher: f,
		Cache:   c,
		Opts: Options{
			OutputDir: outDir,
			SincePath: since,
			Source:    s.srv.URL,
		},
		Out:   out,
		Err:   errl,
		Sleep: func(time.Duration) {},
		Now:   func() time.Time { return time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC) },
	}, outbuf
}

func TestMirrorRunAndResume(t *testing.T) {
	reg := loadRegistry(t, "elm/core@1.0.0", "elm/core@1.0.1", "elm/html@1.0.0")
	s := newSite(t, reg)
	outDir := filepath.Join(t.TempDir(), "mirror")
	since := filepath.Join(t.TempDir(), "mirror-since.txt")

	b, _ := newBuilder(t, reg, s, outDir, since)
	res, err := b.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Queued != 3 || res.Processed != 3 || res.Failed != 0 {
		t.Fatalf("first run: %+v", res)
	}

	// Marker holds the highest sequence number.
	data, err := ioutil.ReadFile(since)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "3" {
		t.Errorf("resume marker = %q, want 3", data)
	}

	// Layout: hashed archives, per-version metadata, manifest.
	m, err := LoadManifest(filepath.Join(outDir, "manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Packages) != 3 {
		t.Fatalf("manifest has %d packages, want 3", len(m.Packages))
	}
	if m.Generated != "2021-06-01T12:00:00Z" {
		t.Errorf("manifest generated = %q", m.Generated)
	}
	if m.Source != s.srv.URL {
		t.Errorf("manifest source = %q", m.Source)
	}
	for _, e := range m.Packages {
		if _, err := os.Stat(filepath.Join(outDir, "archives", e.Hash+".zip")); err != nil {
			t.Errorf("archive for %s/%s@%s missing: %v", e.Author, e.Name, e.Version, err)
		}
		for _, f := range []string{"elm.json", "docs.json"} {
			if _, err := os.Stat(filepath.Join(outDir, "packages", e.Author, e.Name, e.Version, f)); err != nil {
				t.Errorf("metadata %s for %s/%s@%s missing: %v", f, e.Author, e.Name, e.Version, err)
			}
		}
	}

	// A second run with no registry changes queues nothing.
	b2, _ := newBuilder(t, reg, s, outDir, since)
	res2, err := b2.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res2.Queued != 0 {
		t.Errorf("second run queued %d items, want 0", res2.Queued)
	}

	// New versions past the marker queue exactly K items.
	reg3 := loadRegistry(t,
		"elm/core@1.0.0", "elm/core@1.0.1", "elm/html@1.0.0",
		"elm/html@1.0.1", "elm/html@1.0.2",
	)
	s3 := newSite(t, reg3)
	b3, _ := newBuilder(t, reg3, s3, outDir, since)
	res3, err := b3.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res3.Queued != 2 || res3.Processed != 2 {
		t.Errorf("third run: %+v, want 2 queued and processed", res3)
	}
}

func TestMirrorDryRun(t *testing.T) {
	reg := loadRegistry(t, "elm/core@1.0.0", "elm/html@1.0.0")
	s := newSite(t, reg)
	outDir := filepath.Join(t.TempDir(), "mirror")

	b, outbuf := newBuilder(t, reg, s, outDir, "")
	b.Opts.DryRun = true
	res, err := b.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Queued != 2 || res.Processed != 0 {
		t.Errorf("dry run: %+v", res)
	}
	if strings.Count(outbuf.String(), "would mirror") != 2 {
		t.Errorf("dry run output:\n%s", outbuf.String())
	}
	if _, err := os.Stat(filepath.Join(outDir, "manifest.json")); !os.IsNotExist(err) {
		t.Error("dry run should not write a manifest")
	}
}

func TestDownloaderFillsCache(t *testing.T) {
	reg := loadRegistry(t, "elm/core@1.0.0", "elm/html@1.0.0")
	s := newSite(t, reg)

	c := cache.New(t.TempDir(), "0.19.1")
	f := &fetch.Fetcher{
		Client:   s.srv.Client(),
		Registry: s.srv.URL,
		Cache:    c,
		TempDir:  t.TempDir(),
	}

	// Pre-seed a broken residue for elm/core: metadata only.
	dir := c.Dir("elm", "core", mv(t, "1.0.0"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"endpoint.json", "elm.json", "docs.json"} {
		if err := ioutil.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if c.Status("elm", "core", mv(t, "1.0.0")) != cache.Broken {
		t.Fatal("fixture should be broken")
	}

	out, errl, _, errbuf := quietLoggers()
	d := &Downloader{
		Reg:     reg,
		Fetcher: f,
		Cache:   c,
		Out:     out,
		Err:     errl,
		Sleep:   func(time.Duration) {},
	}
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 0 {
		t.Fatalf("failures: %+v\n%s", res, errbuf.String())
	}
	if res.Queued != 2 || res.Processed != 2 {
		t.Errorf("result: %+v", res)
	}
	for _, pkg := range []string{"core", "html"} {
		if !c.FullyDownloaded("elm", pkg, mv(t, "1.0.0")) {
			t.Errorf("elm/%s should be fully downloaded", pkg)
		}
	}
}

func TestReadWriteSince(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror-since.txt")
	if n, err := readSince(path); err != nil || n != 0 {
		t.Errorf("missing marker: %d, %v", n, err)
	}
	if err := writeSince(path, 42); err != nil {
		t.Fatal(err)
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "42\n" {
		t.Errorf("marker file = %q, want \"42\\n\"", data)
	}
	if n, err := readSince(path); err != nil || n != 42 {
		t.Errorf("readSince = %d, %v", n, err)
	}
}
