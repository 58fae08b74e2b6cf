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
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unmarshalFlags(t *testing.T, args []string) (*viper.Viper, Config) {
	t.Helper()
	v := viper.New()
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, flagSet))
	require.NoError(t, flagSet.Parse(args))

	var c Config
	require.NoError(t, v.Unmarshal(&c, viper.DecodeHook(DecodeHook()), func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}))
	return v, c
}

func TestBindFlags_Defaults(t *testing.T) {
	_, c := unmarshalFlags(t, nil)

	assert.Equal(t, "text", c.Logging.Format)
	assert.Equal(t, InfoLogSeverity, c.Logging.Severity)
	assert.EqualValues(t, 10, c.Logging.LogRotate.BackupFileCount)
	assert.True(t, c.Logging.LogRotate.Compress)
	assert.EqualValues(t, 512, c.Logging.LogRotate.MaxFileSizeMb)
	assert.EqualValues(t, 0, c.ThreadPool.Workers)
	assert.EqualValues(t, 0, c.ThreadPool.MaxWorkers)
	assert.Equal(t, time.Minute, c.ThreadPool.WaitTimeout)
	assert.EqualValues(t, 0, c.Metrics.PrometheusPort)
	assert.Equal(t, NoTraceExporter, c.Tracing.Exporter)
	assert.Equal(t, 1.0, c.Tracing.SamplingRatio)
	assert.EqualValues(t, 16, c.Workload.Jobs)
	assert.EqualValues(t, 1, c.Workload.Repeat)
	assert.Equal(t, 10*time.Millisecond, c.Workload.JobDuration)
	assert.NoError(t, ValidateConfig(&c))
}

func TestBindFlags_Overrides(t *testing.T) {
	v, c := unmarshalFlags(t, []string{
		"--workers=4",
		"--max-workers=8",
		"--wait-timeout=5s",
		"--log-severity=warning",
		"--tracing-exporter=stdout",
		"--debug_mutex",
	})

	assert.EqualValues(t, 4, c.ThreadPool.Workers)
	assert.EqualValues(t, 8, c.ThreadPool.MaxWorkers)
	assert.Equal(t, 5*time.Second, c.ThreadPool.WaitTimeout)
	assert.Equal(t, WarningLogSeverity, c.Logging.Severity)
	assert.Equal(t, StdoutTraceExporter, c.Tracing.Exporter)
	assert.True(t, c.Debug.LogMutex)
	assert.True(t, v.IsSet(LogSeverityConfigKey))
}

func TestBindFlags_InvalidSeverityFailsDecode(t *testing.T) {
	v := viper.New()
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, flagSet))
	require.NoError(t, flagSet.Parse([]string{"--log-severity=chatty"}))

	var c Config
	err := v.Unmarshal(&c, viper.DecodeHook(DecodeHook()), func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})

	assert.Error(t, err)
}
