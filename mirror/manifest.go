// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mirror

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/internal/fs"
)

// Manifest maps every mirrored (author, name, version) to its archive hash
// and origin URL.
type Manifest struct {
	Generated string          `json:"generated"`
	Source    string          `json:"source"`
	Packages  []ManifestEntry `json:"packages"`

	index map[string]int
}

// ManifestEntry is one mirrored package version.
type ManifestEntry struct {
	Author  string `json:"author"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Hash    string `json:"hash"`
	URL     string `json:"url"`
}

func manifestKey(author, name, version string) string {
	return author + "/" + name + "@" + version
}

// LoadManifest reads an existing manifest; a missing file yields an empty
// one.
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{index: make(map[string]int)}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrapf(err, "decoding manifest %s", path)
	}
	m.index = make(map[string]int, len(m.Packages))
	for i, e := range m.Packages {
		m.index[manifestKey(e.Author, e.Name, e.Version)] = i
	}
	return m, nil
}

// Has reports whether the manifest already records a package version.
func (m *Manifest) Has(author, name, version string) bool {
	_, ok := m.index[manifestKey(author, name, version)]
	return ok
}

// Add records a package version, replacing any previous entry.
func (m *Manifest) Add(e ManifestEntry) {
	key := manifestKey(e.Author, e.Name, e.Version)
	if i, ok := m.index[key]; ok {
		m.Packages[i] = e
		return
	}
	m.index[key] = len(m.Packages)
	m.Packages = append(m.Packages, e)
}

// Write stamps the manifest and publishes it via temp-and-rename.
func (m *Manifest) Write(path, source string, now time.Time) error {
	m.Generated = now.UTC().Format(time.RFC3339)
	m.Source = source

	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}
	data = append(data, '\n')

	if err := fs.EnsureDir(filepath.Dir(path), 0755); err != nil {
		return err
	}
	staged := path + ".part"
	if err := ioutil.WriteFile(staged, data, 0644); err != nil {
		return errors.Wrapf(err, "writing manifest %s", staged)
	}
	return fs.RenameWithFallback(staged, path)
}
