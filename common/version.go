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

package common

// Set with `-ldflags -X github.com/sengine/sekernel/common.sekernelVersion=1.2.3`
// by tools/build_sekernel. If not defined, it is set to "unknown" in init().
var sekernelVersion string

func init() {
	if sekernelVersion == "" {
		sekernelVersion = "unknown"
	}
}

// GetVersion returns the version of the running binary.
func GetVersion() string {
	return sekernelVersion
}
