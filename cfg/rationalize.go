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
	"runtime"
)

// isSet interface is abstraction over the IsSet() method of viper, specially
// added to keep rationalize method simple.
type isSet interface {
	IsSet(string) bool
}

// resolveLoggingConfig raises the severity to TRACE when mutex debugging is
// on, since slow-holder reports are emitted at that level. An explicitly set
// severity wins.
func resolveLoggingConfig(v isSet, c *Config) {
	if c.Logging.Format == "" {
		c.Logging.Format = TextLogFormat
	}
	if c.Logging.Severity == "" {
		c.Logging.Severity = InfoLogSeverity
	}
	if c.Debug.LogMutex && !v.IsSet(LogSeverityConfigKey) {
		c.Logging.Severity = TraceLogSeverity
	}
}

func resolveThreadPoolWorkers(c *ThreadPoolConfig) {
	if c.Workers == 0 {
		c.Workers = int64(runtime.NumCPU())
	}
	if c.MaxWorkers > 0 && c.MaxWorkers < c.Workers {
		c.Workers = c.MaxWorkers
	}
}

func resolveMetricsConfig(c *MetricsConfig) {
	if c.Workers <= 0 {
		c.Workers = DefaultMetricsWorkers
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultMetricsBufferSize
	}
}

// Rationalize updates the config fields based on the values of other fields.
func Rationalize(v isSet, c *Config) error {
	resolveLoggingConfig(v, c)
	resolveThreadPoolWorkers(&c.ThreadPool)
	resolveMetricsConfig(&c.Metrics)

	return nil
}
