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
	"os"
	"path"
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseArgs binds every config flag, parses args and decodes the result the
// way the command does.
func parseArgs(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	v := viper.New()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse(args))

	var c Config
	err := v.Unmarshal(&c, viper.DecodeHook(DecodeHook()), func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	return c, err
}

func TestParsingSuccess(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		setupFn func(t *testing.T)
		testFn  func(*testing.T, Config)
	}{
		{
			name: "Bool",
			args: []string{"--load-simd"},
			testFn: func(t *testing.T, c Config) {
				assert.True(t, c.Kernel.LoadSimd)
			},
		},
		{
			name: "String",
			args: []string{"--app-name=render-farm"},
			testFn: func(t *testing.T, c Config) {
				assert.Equal(t, "render-farm", c.AppName)
			},
		},
		{
			name: "Int",
			args: []string{"--workers=12", "--max-workers=24"},
			testFn: func(t *testing.T, c Config) {
				assert.Equal(t, int64(12), c.ThreadPool.Workers)
				assert.Equal(t, int64(24), c.ThreadPool.MaxWorkers)
			},
		},
		{
			name: "Float",
			args: []string{"--submit-rate=2.5", "--tracing-sampling-ratio=0.25"},
			testFn: func(t *testing.T, c Config) {
				assert.Equal(t, 2.5, c.Workload.SubmitRate)
				assert.Equal(t, 0.25, c.Tracing.SamplingRatio)
			},
		},
		{
			name: "Duration",
			args: []string{"--wait-timeout=1h5m30s", "--job-duration=250ms"},
			testFn: func(t *testing.T, c Config) {
				assert.Equal(t, time.Hour+5*time.Minute+30*time.Second, c.ThreadPool.WaitTimeout)
				assert.Equal(t, 250*time.Millisecond, c.Workload.JobDuration)
			},
		},
		{
			name: "LogSeverity",
			args: []string{"--log-severity=warning"},
			testFn: func(t *testing.T, c Config) {
				assert.Equal(t, WarningLogSeverity, c.Logging.Severity)
			},
		},
		{
			name: "TraceExporter",
			args: []string{"--tracing-exporter=STDOUT"},
			testFn: func(t *testing.T, c Config) {
				assert.Equal(t, StdoutTraceExporter, c.Tracing.Exporter)
			},
		},
		{
			name: "ResolvedPath - home relative",
			args: []string{"--root-path=~/assets"},
			testFn: func(t *testing.T, c Config) {
				h, err := os.UserHomeDir()
				if assert.Nil(t, err) {
					assert.Equal(t, path.Join(h, "assets"), string(c.Kernel.RootPath))
				}
			},
		},
		{
			name: "ResolvedPath - with sekernel-parent-process-dir env set",
			setupFn: func(t *testing.T) {
				t.Setenv("sekernel-parent-process-dir", "/a")
			},
			args: []string{"--log-file=./kernel.log"},
			testFn: func(t *testing.T, c Config) {
				assert.Equal(t, "/a/kernel.log", string(c.Logging.FilePath))
			},
		},
		{
			name: "ResolvedPath - absolute path",
			args: []string{"--root-path=/srv/assets"},
			testFn: func(t *testing.T, c Config) {
				assert.Equal(t, "/srv/assets", string(c.Kernel.RootPath))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setupFn != nil {
				tc.setupFn(t)
			}

			c, err := parseArgs(t, tc.args...)

			if assert.Nil(t, err) {
				tc.testFn(t, c)
			}
		})
	}
}

func TestParsingError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{
			name:   "LogSeverity",
			args:   []string{"--log-severity=abc"},
			errMsg: "invalid log severity level: abc. Must be one of [TRACE, DEBUG, INFO, WARNING, ERROR, OFF]",
		},
		{
			name:   "TraceExporter",
			args:   []string{"--tracing-exporter=zipkin"},
			errMsg: "invalid tracing exporter value: zipkin",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseArgs(t, tc.args...)

			if assert.Error(t, err) {
				assert.ErrorContains(t, err, tc.errMsg)
			}
		})
	}
}
