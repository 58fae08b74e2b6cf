// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rootpath tracks the filesystem root the kernel resolves relative
// resources against.
package rootpath

import (
	"errors"
	"fmt"
	"os"

	"github.com/sengine/sekernel/internal/locker"
	"github.com/sengine/sekernel/internal/logger"
	"github.com/sengine/sekernel/internal/util"
)

// ErrParam is returned when SetRootPath is given no usable argument.
var ErrParam = errors.New("invalid root path parameter")

// Resolver holds one root path. The zero value is not usable; create it
// with NewResolver.
type Resolver struct {
	mu   locker.RWLocker
	path string // GUARDED_BY(mu)
}

// NewResolver returns a Resolver rooted at the current working directory.
func NewResolver() (*Resolver, error) {
	r := &Resolver{}
	r.mu = locker.NewRW("rootpath.Resolver", func() {})
	if _, err := r.ResetRootPath(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Resolver) GetRootPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

// SetRootPath resolves args[0] and makes it the root path. A nil or empty
// args, or an empty first argument, fails with an error wrapping ErrParam
// and leaves the root path unchanged. Only the first argument is used.
func (r *Resolver) SetRootPath(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: no arguments", ErrParam)
	}
	if args[0] == "" {
		return "", fmt.Errorf("%w: empty path", ErrParam)
	}

	resolved, err := util.GetResolvedPath(args[0])
	if err != nil {
		return "", fmt.Errorf("resolve root path %q: %w", args[0], err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = resolved
	logger.Debugf("Root path set to %s", resolved)
	return resolved, nil
}

// ResetRootPath makes the current working directory the root path.
func (r *Resolver) ResetRootPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = wd
	return wd, nil
}

////////////////////////////////////////////////////////////////////////
// Process-wide resolver
////////////////////////////////////////////////////////////////////////

var defaultResolver = mustNewResolver()

func mustNewResolver() *Resolver {
	r, err := NewResolver()
	if err != nil {
		// Without a working directory every relative path is meaningless.
		r = &Resolver{mu: locker.NewRW("rootpath.Resolver", func() {})}
		logger.Warnf("Root path defaults to empty: %v", err)
	}
	return r
}

// Default returns the process-wide resolver used by the package functions.
func Default() *Resolver {
	return defaultResolver
}

// GetRootPath returns the process-wide root path.
func GetRootPath() string {
	return defaultResolver.GetRootPath()
}

// SetRootPath sets the process-wide root path. See Resolver.SetRootPath.
func SetRootPath(args []string) (string, error) {
	return defaultResolver.SetRootPath(args)
}

// ResetRootPath resets the process-wide root path to the working directory.
func ResetRootPath() (string, error) {
	return defaultResolver.ResetRootPath()
}
