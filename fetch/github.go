// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fetch

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/Masterminds/vcs"
	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/cache"
	"github.com/elmwrap/wrap/elmver"
	"github.com/elmwrap/wrap/internal/fs"
)

// GitHubSource materializes package versions by cloning the package's
// repository at the version tag, instead of downloading archives from the
// registry website. Elm release tags are the bare version string.
//
// Repositories carry no endpoint.json and no docs.json; the metadata
// triplet is completed with a synthesized endpoint (hash verification does
// not apply to clones) so the cache's completeness checks hold.
type GitHubSource struct {
	Cache *cache.Cache

	// Offline short-circuits clone attempts.
	Offline bool
}

// FetchPackage clones author/name at tag v and installs the whitelisted
// file set into the cache.
func (g *GitHubSource) FetchPackage(author, name string, v elmver.Version) error {
	if g.Offline {
		return ErrOffline
	}
	if g.Cache.FullyDownloaded(author, name, v) {
		return nil
	}

	tmp, err := ioutil.TempDir("", "elm-wrap-clone-")
	if err != nil {
		return errors.Wrap(err, "creating clone directory")
	}
	defer os.RemoveAll(tmp)

	remote := "https://github.com/" + author + "/" + name
	repo, err := vcs.NewRepo(remote, filepath.Join(tmp, name))
	if err != nil {
		return errors.Wrapf(err, "preparing repository %s", remote)
	}
	if err := repo.Get(); err != nil {
		return &NetworkError{URL: remote, Err: err}
	}
	if err := repo.UpdateVersion(v.String()); err != nil {
		return errors.Wrapf(err, "checking out %s tag %s", remote, v)
	}

	return g.install(repo.LocalPath(), author, name, v)
}

// install copies the whitelisted subset of a checkout into the package
// directory, mirroring the archive extraction rules.
func (g *GitHubSource) install(checkout, author, name string, v elmver.Version) error {
	dir := g.Cache.Dir(author, name, v)
	if err := fs.EnsureDir(dir, 0755); err != nil {
		return err
	}

	for file := range rootWhitelist {
		src := filepath.Join(checkout, file)
		if ok, err := fs.IsRegular(src); err != nil || !ok {
			continue
		}
		dst := filepath.Join(dir, file)
		if file == cache.ElmJSONFile || file == cache.DocsFile {
			if ok, err := fs.IsRegular(dst); err != nil {
				return err
			} else if ok {
				continue
			}
		}
		if err := fs.CopyFile(src, dst); err != nil {
			return err
		}
	}

	// docs.json is generated, not committed; an empty document stands in
	// so the metadata triplet is complete.
	docs := g.Cache.DocsPath(author, name, v)
	if ok, err := fs.IsRegular(docs); err != nil {
		return err
	} else if !ok {
		if err := ioutil.WriteFile(docs, []byte("[]\n"), 0644); err != nil {
			return errors.Wrap(err, "writing placeholder docs.json")
		}
	}
	endpoint := g.Cache.EndpointPath(author, name, v)
	if ok, err := fs.IsRegular(endpoint); err != nil {
		return err
	} else if !ok {
		ep := `{"url": "https://github.com/` + author + `/` + name + `/archive/` + v.String() + `.zip", "hash": "` +
			"0000000000000000000000000000000000000000" + `"}` + "\n"
		if err := ioutil.WriteFile(endpoint, []byte(ep), 0644); err != nil {
			return errors.Wrap(err, "writing endpoint.json")
		}
	}

	srcDir := filepath.Join(checkout, cache.SrcDirName)
	if ok, err := fs.IsDir(srcDir); err != nil {
		return err
	} else if !ok {
		return &ExtractError{Err: errors.New("checkout has no src/ directory")}
	}

	staging := filepath.Join(dir, cache.SrcDirName+".staging")
	if err := os.RemoveAll(staging); err != nil {
		return errors.Wrap(err, "clearing src staging")
	}
	if err := fs.CopyDir(srcDir, staging); err != nil {
		return err
	}
	live := filepath.Join(dir, cache.SrcDirName)
	if err := os.RemoveAll(live); err != nil {
		return errors.Wrap(err, "clearing old src")
	}
	return fs.RenameWithFallback(staging, live)
}
