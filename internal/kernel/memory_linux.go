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

//go:build linux

package kernel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	cgroupV1MemLimitFile = "/sys/fs/cgroup/memory/memory.limit_in_bytes"
	cgroupV2MountPoint   = "/sys/fs/cgroup"
	procSelfCgroup       = "/proc/self/cgroup"
)

var errUnlimited = errors.New("memory limit is max")

// totalMemory returns the memory available to the process in bytes: the
// container limit (cgroup v1 or v2) when it is lower than the physical
// memory, else the physical memory.
func totalMemory() (uint64, error) {
	sysMem, err := systemTotalMemory()
	if err != nil {
		return 0, err
	}

	limit, err := containerMemoryLimit()
	if err != nil || limit >= sysMem {
		return sysMem, nil
	}
	return limit, nil
}

func systemTotalMemory() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, fmt.Errorf("sysinfo: %w", err)
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}

func containerMemoryLimit() (uint64, error) {
	if _, err := os.Stat(filepath.Join(cgroupV2MountPoint, "cgroup.controllers")); err == nil {
		return cgroupV2MemoryLimit()
	}

	data, err := os.ReadFile(cgroupV1MemLimitFile)
	if err != nil {
		return 0, err
	}
	return parseMemoryLimit(string(data))
}

func cgroupV2MemoryLimit() (uint64, error) {
	f, err := os.Open(procSelfCgroup)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cgroupPath, err := cgroupV2Path(f)
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(filepath.Join(cgroupV2MountPoint, cgroupPath, "memory.max"))
	if err != nil {
		return 0, err
	}
	return parseMemoryLimit(string(data))
}

// cgroupV2Path finds the unified hierarchy entry of a /proc/<pid>/cgroup
// listing. Lines look like "hierarchy-ID:controller-list:cgroup-path"; the
// v2 entry is "0::<path>".
func cgroupV2Path(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), ":", 3)
		if len(parts) == 3 && parts[0] == "0" && parts[1] == "" {
			return parts[2], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("cgroup v2 path not found in %s", procSelfCgroup)
}

func parseMemoryLimit(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "max" {
		return 0, errUnlimited
	}
	return strconv.ParseUint(s, 10, 64)
}
