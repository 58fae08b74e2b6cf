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

package kernel

import (
	"strings"

	"golang.org/x/sys/cpu"
)

// SIMDFeatures lists the vector instruction sets available on the host.
type SIMDFeatures struct {
	SSE2    bool
	SSE41   bool
	AVX     bool
	AVX2    bool
	AVX512F bool
	// ASIMD is the ARM64 Advanced SIMD (NEON) extension.
	ASIMD bool
}

// DetectSIMD reads the CPU feature bits of the host.
func DetectSIMD() SIMDFeatures {
	return SIMDFeatures{
		SSE2:    cpu.X86.HasSSE2,
		SSE41:   cpu.X86.HasSSE41,
		AVX:     cpu.X86.HasAVX,
		AVX2:    cpu.X86.HasAVX2,
		AVX512F: cpu.X86.HasAVX512F,
		ASIMD:   cpu.ARM64.HasASIMD,
	}
}

func (f SIMDFeatures) names() []string {
	var names []string
	for _, feature := range []struct {
		name    string
		present bool
	}{
		{"sse2", f.SSE2},
		{"sse4.1", f.SSE41},
		{"avx", f.AVX},
		{"avx2", f.AVX2},
		{"avx512f", f.AVX512F},
		{"asimd", f.ASIMD},
	} {
		if feature.present {
			names = append(names, feature.name)
		}
	}
	return names
}

// Any reports whether at least one feature was detected.
func (f SIMDFeatures) Any() bool {
	return len(f.names()) > 0
}

func (f SIMDFeatures) String() string {
	names := f.names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}
