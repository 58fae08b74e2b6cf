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

package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SEKERNEL_PARENT_PROCESS_DIR names the env var a launcher sets when it runs
// sekernel from a different directory than the one its arguments were given
// relative to.
const SEKERNEL_PARENT_PROCESS_DIR = "sekernel-parent-process-dir"

// GetResolvedPath turns filePath into an absolute path.
//  1. Absolute paths and the empty string are returned unchanged.
//  2. Paths starting with ~/ are resolved against the home dir.
//  3. Any other relative path is resolved against SEKERNEL_PARENT_PROCESS_DIR
//     when it is set, else against the working directory.
func GetResolvedPath(filePath string) (resolvedPath string, err error) {
	if filePath == "" || path.IsAbs(filePath) {
		resolvedPath = filePath
		return
	}

	if strings.HasPrefix(filePath, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("fetch home dir: %w", err)
		}
		return filepath.Join(homeDir, filePath[2:]), err
	}

	parentProcessDir, _ := os.LookupEnv(SEKERNEL_PARENT_PROCESS_DIR)
	parentProcessDir = strings.TrimSpace(parentProcessDir)
	if parentProcessDir == "" {
		return filepath.Abs(filePath)
	}
	return filepath.Join(parentProcessDir, filePath), nil
}

// Stringify marshals the object passed as argument to a json string.
func Stringify(input any) (string, error) {
	inputBytes, err := json.Marshal(input)

	if err != nil {
		return "", fmt.Errorf("error in Stringify %w", err)
	}
	return string(inputBytes), nil
}

// YAMLStringify marshals input to YAML, the format config files use, so the
// effective config can be logged in a shape users can paste back.
func YAMLStringify(input any) (string, error) {
	inputBytes, err := yaml.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("error in YAMLStringify %w", err)
	}
	return string(inputBytes), nil
}
