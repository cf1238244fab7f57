// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fetch downloads package versions into the cache: the metadata
// triplet from the registry website, then the source archive named by
// endpoint.json, verified against its SHA-1 and selectively extracted.
package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/cache"
	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/internal/fs"
	"github.com/elmwrap/wrap/registry"
)

// ErrOffline is returned when a download is requested while offline mode
// is active; no network operation is attempted.
var ErrOffline = errors.New("offline: network access is disabled")

// NetworkError reports a failed HTTP exchange.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure fetching %s: %s", e.URL, e.Err)
}

// HashMismatchError reports an archive whose bytes do not hash to the
// value endpoint.json declared.
type HashMismatchError struct {
	URL        string
	Want, Got  string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("archive %s hashed to %s, endpoint.json declares %s", e.URL, e.Got, e.Want)
}

// ExtractError reports a failure while unpacking the verified archive.
type ExtractError struct {
	Err error
}

func (e *ExtractError) Error() string {
	return "extracting archive: " + e.Err.Error()
}

// Endpoint is the parsed form of endpoint.json: where the archive lives
// and what it must hash to.
type Endpoint struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
}

var hashPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// ParseEndpoint decodes endpoint.json, rejecting any shape other than an
// https URL plus a 40-hex-lowercase SHA-1.
func ParseEndpoint(data []byte) (Endpoint, error) {
	var ep Endpoint
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ep); err != nil {
		return Endpoint{}, errors.Wrap(err, "decoding endpoint.json")
	}
	if !strings.HasPrefix(ep.URL, "https://") {
		return Endpoint{}, errors.Errorf("endpoint.json url %q is not https", ep.URL)
	}
	if !hashPattern.MatchString(ep.Hash) {
		return Endpoint{}, errors.Errorf("endpoint.json hash %q is not a lowercase hex SHA-1", ep.Hash)
	}
	return ep, nil
}

// metadataFiles in fetch order; all three must land before the archive is
// requested.
var metadataFiles = []string{cache.EndpointFile, cache.ElmJSONFile, cache.DocsFile}

// Fetcher drives the download pipeline for one registry website.
type Fetcher struct {
	Client   *http.Client
	Registry string // site base URL, no trailing slash
	Cache    *cache.Cache

	// TempDir receives archive temp files; $ELM_HOME by convention.
	TempDir string

	// Offline short-circuits every network operation with ErrOffline.
	Offline bool

	// IgnoreHash skips archive verification. No command sets it.
	IgnoreHash bool

	// DepCache, when set, records the dependency map of every elm.json
	// that passes through the pipeline.
	DepCache *registry.DepCache
}

// FetchMetadata ensures the package directory holds its metadata triplet,
// downloading whichever of the three files are missing, and returns the
// parsed endpoint.
func (f *Fetcher) FetchMetadata(ctx context.Context, author, name string, v elmver.Version) (Endpoint, error) {
	dir := f.Cache.Dir(author, name, v)
	if err := fs.EnsureDir(dir, 0755); err != nil {
		return Endpoint{}, err
	}

	for _, file := range metadataFiles {
		path := filepath.Join(dir, file)
		if ok, err := fs.IsRegular(path); err != nil {
			return Endpoint{}, err
		} else if ok {
			continue
		}
		url := fmt.Sprintf("%s/packages/%s/%s/%s/%s", f.Registry, author, name, v, file)
		if err := f.getToFile(ctx, url, path); err != nil {
			return Endpoint{}, err
		}
	}

	data, err := ioutil.ReadFile(f.Cache.EndpointPath(author, name, v))
	if err != nil {
		return Endpoint{}, errors.Wrap(err, "reading endpoint.json")
	}
	ep, err := ParseEndpoint(data)
	if err != nil {
		return Endpoint{}, err
	}

	if f.DepCache != nil {
		if raw, err := ioutil.ReadFile(f.Cache.ElmJSONPath(author, name, v)); err == nil {
			if m, err := registry.ParsePackageManifest(raw); err == nil {
				// Best effort; the dependency cache is an accelerator, not
				// a source of truth.
				_ = f.DepCache.Put(author, name, v, m.Dependencies)
			}
		}
	}
	return ep, nil
}

// FetchPackage runs the full pipeline for one package version. On return
// without error the version is fully downloaded; the archive temp file is
// always unlinked.
func (f *Fetcher) FetchPackage(ctx context.Context, author, name string, v elmver.Version) error {
	if f.Cache.FullyDownloaded(author, name, v) {
		return nil
	}

	ep, err := f.FetchMetadata(ctx, author, name, v)
	if err != nil {
		return err
	}

	tmp, err := f.DownloadArchive(ctx, ep)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	return f.ExtractArchive(tmp, author, name, v)
}

// DownloadArchive fetches the endpoint's archive into a unique temp file
// and verifies its SHA-1. The caller owns the returned path; on error no
// file is left behind.
func (f *Fetcher) DownloadArchive(ctx context.Context, ep Endpoint) (string, error) {
	tmpDir := f.TempDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	tmp, err := ioutil.TempFile(tmpDir, "elm-package-*.zip")
	if err != nil {
		return "", errors.Wrap(err, "creating archive temp file")
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := f.getToFile(ctx, ep.URL, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if !f.IgnoreHash {
		got, err := hashFile(tmpPath)
		if err != nil {
			os.Remove(tmpPath)
			return "", err
		}
		if got != ep.Hash {
			os.Remove(tmpPath)
			return "", &HashMismatchError{URL: ep.URL, Want: ep.Hash, Got: got}
		}
	}
	return tmpPath, nil
}

// ExtractArchive unpacks a verified archive into the package directory.
func (f *Fetcher) ExtractArchive(archive string, author, name string, v elmver.Version) error {
	if err := extractPackage(archive, f.Cache.Dir(author, name, v)); err != nil {
		return &ExtractError{Err: err}
	}
	return nil
}

// getToFile GETs url and writes the body to path via a sibling temp file,
// so a torn download never masquerades as a complete one.
func (f *Fetcher) getToFile(ctx context.Context, url, path string) error {
	if f.Offline {
		return ErrOffline
	}

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	resp, err := f.client().Do(req.WithContext(ctx))
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &NetworkError{URL: url, Err: errors.Errorf("unexpected status %s", resp.Status)}
	}

	staged := path + ".part"
	out, err := os.Create(staged)
	if err != nil {
		return errors.Wrapf(err, "creating %s", staged)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(staged)
		return &NetworkError{URL: url, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(staged)
		return errors.Wrapf(err, "writing %s", staged)
	}
	return fs.RenameWithFallback(staged, path)
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func hashFile(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s for hashing", path)
	}
	defer fh.Close()

	h := sha1.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", errors.Wrapf(err, "hashing %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile exposes the pipeline's archive hashing for the mirror builder.
func HashFile(path string) (string, error) {
	return hashFile(path)
}
