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

// A tool that builds the sekernel binary with its version stamped in and
// writes it out to a destination directory.
//
// Usage:
//
//	build_sekernel [--arch=amd64] src_dir dst_dir version [build args]
//
// where src_dir is the root of the sekernel git repository (or a tarball
// thereof). Writes dst_dir/bin/sekernel.
package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
)

const (
	mainPackage    = "github.com/sengine/sekernel"
	versionVarPath = "github.com/sengine/sekernel/common.sekernelVersion"
	binaryPath     = "bin/sekernel"
)

// buildCommand returns the go build invocation for the sekernel binary.
func buildCommand(srcDir, dstDir, version, arch string, buildArgs []string) *exec.Cmd {
	cmd := exec.Command(
		"go",
		"build",
		"-C",
		srcDir,
		"-o",
		path.Join(dstDir, binaryPath),
		"-ldflags",
		fmt.Sprintf("-X %s=%s", versionVarPath, version))
	cmd.Args = append(cmd.Args, buildArgs...)
	cmd.Args = append(cmd.Args, mainPackage)

	cmd.Env = append(
		os.Environ(),
		"GO111MODULE=on",
		"CGO_ENABLED=0",
		fmt.Sprintf("GOARCH=%s", arch),
	)
	return cmd
}

// Build the release binary for version, which is either a release number
// (e.g. "0.3.0") or a short git commit name.
func buildBinary(dstDir, srcDir, version, arch string, buildArgs []string) (err error) {
	err = os.MkdirAll(path.Join(dstDir, path.Dir(binaryPath)), 0755)
	if err != nil {
		err = fmt.Errorf("mkdir: %w", err)
		return
	}

	cmd := buildCommand(srcDir, dstDir, version, arch, buildArgs)
	log.Printf("Building %s to %s", mainPackage, binaryPath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		err = fmt.Errorf("%v: %w\nOutput:\n%s", cmd, err, output)
		if strings.Contains(string(output), "flag provided but not defined: -C") {
			err = fmt.Errorf("%w\nPlease upgrade to go version 1.20 or higher", err)
		}
		return
	}

	return
}

func run() (err error) {
	var arch = pflag.String("arch", runtime.GOARCH, "Target architecture (e.g., amd64, arm64). Defaults to host architecture.")
	pflag.Parse()

	args := pflag.Args()
	if len(args) < 3 {
		err = fmt.Errorf("usage: %s [flags] src_dir dst_dir version [build args]", os.Args[0])
		return
	}

	err = buildBinary(args[1], args[0], args[2], *arch, args[3:])
	if err != nil {
		err = fmt.Errorf("buildBinary: %w", err)
		return
	}

	return
}

func main() {
	log.SetFlags(log.Lmicroseconds)

	err := run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
