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

package cfg

import (
	"testing"

	"github.com/sengine/sekernel/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSeverityRank(t *testing.T) {
	severities := []LogSeverity{
		TraceLogSeverity,
		DebugLogSeverity,
		InfoLogSeverity,
		WarningLogSeverity,
		ErrorLogSeverity,
		OffLogSeverity,
	}

	for i := 1; i < len(severities); i++ {
		assert.Less(t, severities[i-1].Rank(), severities[i].Rank())
	}
	assert.Equal(t, -1, LogSeverity("verbose").Rank())
}

func TestLogSeverityUnmarshalText(t *testing.T) {
	var l LogSeverity

	require.NoError(t, l.UnmarshalText([]byte("debug")))
	assert.Equal(t, DebugLogSeverity, l)

	err := l.UnmarshalText([]byte("loud"))
	assert.ErrorContains(t, err, "invalid log severity level: loud")
	assert.Equal(t, DebugLogSeverity, l)
}

func TestTraceExporterUnmarshalText(t *testing.T) {
	var e TraceExporter

	require.NoError(t, e.UnmarshalText([]byte("Stdout")))
	assert.Equal(t, StdoutTraceExporter, e)
	require.NoError(t, e.UnmarshalText([]byte("")))
	assert.Equal(t, NoTraceExporter, e)

	assert.ErrorContains(t, e.UnmarshalText([]byte("jaeger")), "invalid tracing exporter value: jaeger")
}

func TestResolvedPathUnmarshalText(t *testing.T) {
	var p ResolvedPath

	t.Setenv(util.SEKERNEL_PARENT_PROCESS_DIR, "/srv")

	require.NoError(t, p.UnmarshalText([]byte("data/root")))

	assert.Equal(t, ResolvedPath("/srv/data/root"), p)
}

func TestConfigYAMLStringify(t *testing.T) {
	c := Config{
		AppName:    "sekernel",
		ThreadPool: ThreadPoolConfig{Workers: 2},
	}

	out, err := util.YAMLStringify(c)

	require.NoError(t, err)
	assert.Contains(t, out, "app-name: sekernel")
	assert.Contains(t, out, "thread-pool:")
	assert.Contains(t, out, "workers: 2")
}
