// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wrap

// Version is the tool's own release version, overridden at link time for
// tagged builds.
var Version = "devel"
