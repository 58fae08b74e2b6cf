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
	"fmt"
)

const (
	WorkersInvalidValueError      = "the value of workers for thread-pool can't be negative"
	MaxWorkersInvalidValueError   = "the value of max-workers for thread-pool can't be negative"
	MaxWorkersTooLowError         = "the value of max-workers for thread-pool must be 0 (unbounded) or at least the number of workers"
	WaitTimeoutInvalidValueError  = "the value of wait-timeout for thread-pool can't be negative"
	SamplingRatioOutOfRangeError  = "the value of sampling-ratio for tracing must be in [0, 1]"
	PrometheusPortOutOfRangeError = "the value of prometheus-port for metrics must be in [0, 65535]"
)

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be atleast 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidLogFormat(format string) error {
	switch format {
	case "", TextLogFormat, JSONLogFormat:
		return nil
	}
	return fmt.Errorf("unsupported log format %q, must be %q or %q", format, TextLogFormat, JSONLogFormat)
}

func isValidThreadPoolConfig(c *ThreadPoolConfig) error {
	if c.Workers < 0 {
		return fmt.Errorf(WorkersInvalidValueError)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf(MaxWorkersInvalidValueError)
	}
	if c.MaxWorkers > 0 && c.MaxWorkers < c.Workers {
		return fmt.Errorf(MaxWorkersTooLowError)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf(WaitTimeoutInvalidValueError)
	}
	return nil
}

func isValidMetricsConfig(c *MetricsConfig) error {
	if c.PrometheusPort < 0 || c.PrometheusPort > MaxPort {
		return fmt.Errorf(PrometheusPortOutOfRangeError)
	}
	return nil
}

func isValidTracingConfig(c *TracingConfig) error {
	if c.SamplingRatio < 0 || c.SamplingRatio > 1 {
		return fmt.Errorf(SamplingRatioOutOfRangeError)
	}
	return nil
}

func isValidWorkloadConfig(c *WorkloadConfig) error {
	if c.Jobs < 0 {
		return fmt.Errorf("jobs can't be negative")
	}
	if c.Repeat < 1 {
		return fmt.Errorf("repeat should be atleast 1")
	}
	if c.JobDuration < 0 {
		return fmt.Errorf("job-duration can't be negative")
	}
	if c.SubmitRate < 0 {
		return fmt.Errorf("submit-rate can't be negative")
	}
	if c.PanicEvery < 0 {
		return fmt.Errorf("panic-every can't be negative")
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	var err error

	if err = isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}

	if err = isValidLogFormat(config.Logging.Format); err != nil {
		return fmt.Errorf("error parsing logging config: %w", err)
	}

	if err = isValidThreadPoolConfig(&config.ThreadPool); err != nil {
		return fmt.Errorf("error parsing thread-pool config: %w", err)
	}

	if err = isValidMetricsConfig(&config.Metrics); err != nil {
		return fmt.Errorf("error parsing metrics config: %w", err)
	}

	if err = isValidTracingConfig(&config.Tracing); err != nil {
		return fmt.Errorf("error parsing tracing config: %w", err)
	}

	if err = isValidWorkloadConfig(&config.Workload); err != nil {
		return fmt.Errorf("error parsing workload config: %w", err)
	}

	return nil
}
