// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

import (
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// Compiler is the seam to the external Elm compiler. The wrapper resolves
// dependencies itself, so the child compiler is denied network access
// unless explicitly allowed.
type Compiler interface {
	// Run invokes the compiler with the given arguments, inheriting the
	// caller's stdio.
	Run(ctx context.Context, args []string) error
}

// ResolveCompiler locates the compiler binary: WRAP_ELM_COMPILER_PATH if
// set, otherwise "elm" on PATH.
func (c *Ctx) ResolveCompiler() (Compiler, error) {
	path := os.Getenv(EnvCompilerPath)
	if path == "" {
		var err error
		if path, err = exec.LookPath("elm"); err != nil {
			return nil, errors.Wrap(err, "locating elm compiler (set WRAP_ELM_COMPILER_PATH)")
		}
	}
	return &execCompiler{path: path, elmHome: c.ElmHome}, nil
}

type execCompiler struct {
	path    string
	elmHome string
}

func (e *execCompiler) Run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, e.path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	env := append([]string(nil), os.Environ()...)
	env = append(env, EnvElmHome+"="+e.elmHome)
	if os.Getenv(EnvAllowOnline) == "" {
		// The wrapper owns package provisioning; point the child's HTTP
		// stack at an unroutable proxy so its own installer cannot reach
		// the network.
		env = append(env,
			"HTTP_PROXY=http://127.0.0.1:1",
			"HTTPS_PROXY=http://127.0.0.1:1",
			"NO_PROXY=",
		)
	}
	cmd.Env = env

	return errors.Wrapf(cmd.Run(), "running %s", e.path)
}
