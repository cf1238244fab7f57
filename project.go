// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/internal/fs"
)

// Project is a located, parsed Elm project.
type Project struct {
	AbsRoot  string
	Manifest *Manifest
}

// ManifestPath returns the project's elm.json location.
func (p *Project) ManifestPath() string {
	return filepath.Join(p.AbsRoot, ManifestName)
}

// WriteManifest publishes the (possibly modified) manifest back to the
// project.
func (p *Project) WriteManifest() error {
	return WriteManifest(p.Manifest, p.ManifestPath())
}

// findProjectRoot searches from dir upward for a directory containing
// elm.json.
func findProjectRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "resolving %s", dir)
	}
	for {
		ok, err := fs.IsRegular(filepath.Join(abs, ManifestName))
		if err != nil {
			return "", err
		}
		if ok {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", errors.Errorf("no %s found in %s or any parent directory", ManifestName, dir)
		}
		abs = parent
	}
}
