// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/elmwrap/wrap/cache"
	"github.com/elmwrap/wrap/fetch"
	"github.com/elmwrap/wrap/internal/fs"
	"github.com/elmwrap/wrap/registry"
)

// Environment variables the tool honors.
const (
	EnvElmHome       = "ELM_HOME"
	EnvWrapHome      = "WRAP_HOME"
	EnvCompilerPath  = "WRAP_ELM_COMPILER_PATH"
	EnvAllowOnline   = "WRAP_ALLOW_ELM_ONLINE"
	EnvRepoLocalPath = "WRAP_REPOSITORY_LOCAL_PATH"
)

// DefaultCompilerVersion keys the cache layout when the compiler does not
// say otherwise.
const DefaultCompilerVersion = "0.19.1"

// Ctx defines the supporting context of the tool: resolved home
// directories, configuration, and loggers.
type Ctx struct {
	ElmHome         string
	WrapHome        string
	CompilerVersion string

	// RepoLocalPath, when set, points at a local checkout of the package
	// repository; its index takes precedence over the cached one.
	RepoLocalPath string

	Config *Config

	Out     *log.Logger
	Err     *log.Logger
	Verbose bool

	// depCache is the single bolt handle shared by the registry and the
	// fetch pipeline; bolt files admit one writer per process.
	depCache *registry.DepCache
}

// NewContext resolves the tool's environment: ELM_HOME and WRAP_HOME (with
// their conventional defaults under $HOME), and the optional config file
// in the wrap home.
func NewContext(out, errLog *log.Logger) (*Ctx, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "resolving home directory")
	}

	c := &Ctx{
		ElmHome:         envOr(EnvElmHome, filepath.Join(home, ".elm")),
		WrapHome:        envOr(EnvWrapHome, filepath.Join(home, ".elm-wrap")),
		CompilerVersion: DefaultCompilerVersion,
		RepoLocalPath:   os.Getenv(EnvRepoLocalPath),
		Out:             out,
		Err:             errLog,
	}

	c.Config, err = loadConfig(filepath.Join(c.WrapHome, ConfigName))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Cache returns the package cache for the active compiler version.
func (c *Ctx) Cache() *cache.Cache {
	return cache.New(c.ElmHome, c.CompilerVersion)
}

// BlacklistPath is the wrap home's blacklist file.
func (c *Ctx) BlacklistPath() string {
	return filepath.Join(c.WrapHome, "blacklist.txt")
}

// MirrorSincePath is the wrap home's resume marker.
func (c *Ctx) MirrorSincePath() string {
	return filepath.Join(c.WrapHome, "mirror-since.txt")
}

// LocalDevRegistryPath is the wrap home's local-development index overlay.
func (c *Ctx) LocalDevRegistryPath() string {
	return filepath.Join(c.WrapHome, "registry-local-dev.dat")
}

// DepCachePath is the wrap home's persistent dependency cache.
func (c *Ctx) DepCachePath() string {
	return filepath.Join(c.WrapHome, "deps.db")
}

// openDepCache opens the persistent dependency cache once per context.
// Failure is not fatal; the cache is an accelerator, not a source of
// truth.
func (c *Ctx) openDepCache() *registry.DepCache {
	if c.depCache != nil {
		return c.depCache
	}
	if err := fs.EnsureDir(c.WrapHome, 0755); err != nil {
		if c.Verbose {
			c.Err.Printf("dependency cache unavailable: %s", err)
		}
		return nil
	}
	dc, err := registry.OpenDepCache(c.DepCachePath())
	if err != nil {
		if c.Verbose {
			c.Err.Printf("dependency cache unavailable: %s", err)
		}
		return nil
	}
	c.depCache = dc
	return dc
}

// Close releases resources the context opened along the way.
func (c *Ctx) Close() error {
	if c.depCache == nil {
		return nil
	}
	dc := c.depCache
	c.depCache = nil
	return dc.Close()
}

// LoadRegistry loads the index from the cache root (or the local
// repository checkout when one is configured), merges the local-dev
// overlay when present, and attaches the persistent dependency cache.
func (c *Ctx) LoadRegistry() (*registry.Registry, error) {
	indexPath := c.Cache().RegistryPath()
	if c.RepoLocalPath != "" {
		indexPath = filepath.Join(c.RepoLocalPath, cache.RegistryFile)
	}
	reg, err := registry.LoadWithOverlay(indexPath, c.LocalDevRegistryPath())
	if err != nil {
		return nil, err
	}
	if dc := c.openDepCache(); dc != nil {
		reg.AttachDepSource(dc)
	}
	return reg, nil
}

// Fetcher builds the download pipeline from the context's configuration.
func (c *Ctx) Fetcher(bulk bool) *fetch.Fetcher {
	timeout := time.Duration(c.Config.TimeoutSeconds) * time.Second
	if bulk {
		timeout = time.Duration(c.Config.BulkTimeoutSeconds) * time.Second
	}

	return &fetch.Fetcher{
		Client:   &http.Client{Timeout: timeout},
		Registry: c.Config.Registry,
		Cache:    c.Cache(),
		TempDir:  c.ElmHome,
		Offline:  c.Config.Offline,
		DepCache: c.openDepCache(),
	}
}

// LoadProject searches from dir upward for an elm.json and parses it.
func (c *Ctx) LoadProject(dir string) (*Project, error) {
	root, err := findProjectRoot(dir)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", ManifestName)
	}
	defer f.Close()

	m, err := readManifest(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", filepath.Join(root, ManifestName))
	}
	return &Project{AbsRoot: root, Manifest: m}, nil
}
