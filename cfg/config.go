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
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	AppName string `yaml:"app-name"`

	Debug DebugConfig `yaml:"debug"`

	Kernel KernelConfig `yaml:"kernel"`

	Logging LoggingConfig `yaml:"logging"`

	Metrics MetricsConfig `yaml:"metrics"`

	ThreadPool ThreadPoolConfig `yaml:"thread-pool"`

	Tracing TracingConfig `yaml:"tracing"`

	Workload WorkloadConfig `yaml:"workload"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation"`

	LogMutex bool `yaml:"log-mutex"`
}

type KernelConfig struct {
	LoadSimd bool `yaml:"load-simd"`

	RootPath ResolvedPath `yaml:"root-path"`
}

type LogRotateLoggingConfig struct {
	BackupFileCount int64 `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`

	MaxFileSizeMb int64 `yaml:"max-file-size-mb"`
}

type LoggingConfig struct {
	FilePath ResolvedPath `yaml:"file-path"`

	Format string `yaml:"format"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`

	Severity LogSeverity `yaml:"severity"`
}

type MetricsConfig struct {
	BufferSize int64 `yaml:"buffer-size"`

	PrometheusPort int64 `yaml:"prometheus-port"`

	Workers int64 `yaml:"workers"`
}

type ThreadPoolConfig struct {
	MaxWorkers int64 `yaml:"max-workers"`

	WaitTimeout time.Duration `yaml:"wait-timeout"`

	Workers int64 `yaml:"workers"`
}

type TracingConfig struct {
	Exporter TraceExporter `yaml:"exporter"`

	SamplingRatio float64 `yaml:"sampling-ratio"`
}

type WorkloadConfig struct {
	JobDuration time.Duration `yaml:"job-duration"`

	Jobs int64 `yaml:"jobs"`

	PanicEvery int64 `yaml:"panic-every"`

	Repeat int64 `yaml:"repeat"`

	SubmitRate float64 `yaml:"submit-rate"`
}

// BindFlags declares every config flag on flagSet and binds it to its config
// key in v.
func BindFlags(v *viper.Viper, flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "", "The application name reported in logs and telemetry.")

	err = v.BindPFlag("app-name", flagSet.Lookup("app-name"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Exit when internal invariants are violated.")

	err = v.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_mutex", "", false, "Print debug messages when a mutex is held too long.")

	err = v.BindPFlag("debug.log-mutex", flagSet.Lookup("debug_mutex"))
	if err != nil {
		return err
	}

	flagSet.BoolP("load-simd", "", false, "Detect the SIMD instruction sets of the host during kernel init and report them.")

	err = v.BindPFlag("kernel.load-simd", flagSet.Lookup("load-simd"))
	if err != nil {
		return err
	}

	flagSet.StringP("root-path", "", "", "Filesystem root the kernel resolves relative resources against. Defaults to the working directory.")

	err = v.BindPFlag("kernel.root-path", flagSet.Lookup("root-path"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "The file for storing logs. When empty, logs go to stdout.")

	err = v.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "The format of the log file: 'text' or 'json'.")

	err = v.BindPFlag("logging.format", flagSet.Lookup("log-format"))
	if err != nil {
		return err
	}

	flagSet.IntP("log-rotate-backup-file-count", "", 10, "The maximum number of backup log files to retain after they have been rotated. 0 retains all of them.")

	err = v.BindPFlag("logging.log-rotate.backup-file-count", flagSet.Lookup("log-rotate-backup-file-count"))
	if err != nil {
		return err
	}

	flagSet.BoolP("log-rotate-compress", "", true, "Compress rotated log files with gzip.")

	err = v.BindPFlag("logging.log-rotate.compress", flagSet.Lookup("log-rotate-compress"))
	if err != nil {
		return err
	}

	flagSet.IntP("log-rotate-max-file-size-mb", "", 512, "The maximum size in megabytes a log file can reach before it is rotated.")

	err = v.BindPFlag("logging.log-rotate.max-file-size-mb", flagSet.Lookup("log-rotate-max-file-size-mb"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "info", "Specifies the logging severity expressed as one of [trace, debug, info, warning, error, off]")

	err = v.BindPFlag("logging.severity", flagSet.Lookup("log-severity"))
	if err != nil {
		return err
	}

	flagSet.IntP("metrics-buffer-size", "", 256, "The maximum number of histogram records buffered before new ones are dropped.")

	err = v.BindPFlag("metrics.buffer-size", flagSet.Lookup("metrics-buffer-size"))
	if err != nil {
		return err
	}

	flagSet.IntP("prometheus-port", "", 0, "Expose Prometheus metrics endpoint on this port and a path of /metrics. 0 disables it.")

	err = v.BindPFlag("metrics.prometheus-port", flagSet.Lookup("prometheus-port"))
	if err != nil {
		return err
	}

	flagSet.IntP("metrics-workers", "", 3, "The number of goroutines recording histogram metrics.")

	err = v.BindPFlag("metrics.workers", flagSet.Lookup("metrics-workers"))
	if err != nil {
		return err
	}

	flagSet.IntP("max-workers", "", 0, "Upper bound on live worker goroutines across all thread pools. 0 means unbounded.")

	err = v.BindPFlag("thread-pool.max-workers", flagSet.Lookup("max-workers"))
	if err != nil {
		return err
	}

	flagSet.DurationP("wait-timeout", "", time.Minute, "How long to wait for the pool to drain before stopping it. 0 waits forever.")

	err = v.BindPFlag("thread-pool.wait-timeout", flagSet.Lookup("wait-timeout"))
	if err != nil {
		return err
	}

	flagSet.IntP("workers", "", 0, "Number of threads in the default pool. 0 uses the number of CPUs.")

	err = v.BindPFlag("thread-pool.workers", flagSet.Lookup("workers"))
	if err != nil {
		return err
	}

	flagSet.StringP("tracing-exporter", "", "", "Span exporter for job invocations: '' (disabled) or 'stdout'.")

	err = v.BindPFlag("tracing.exporter", flagSet.Lookup("tracing-exporter"))
	if err != nil {
		return err
	}

	flagSet.Float64P("tracing-sampling-ratio", "", 1, "Fraction of job invocations that are traced.")

	err = v.BindPFlag("tracing.sampling-ratio", flagSet.Lookup("tracing-sampling-ratio"))
	if err != nil {
		return err
	}

	flagSet.DurationP("job-duration", "", 10*time.Millisecond, "Time each synthetic job spends per invocation.")

	err = v.BindPFlag("workload.job-duration", flagSet.Lookup("job-duration"))
	if err != nil {
		return err
	}

	flagSet.IntP("jobs", "", 16, "Number of synthetic jobs to queue on the pool.")

	err = v.BindPFlag("workload.jobs", flagSet.Lookup("jobs"))
	if err != nil {
		return err
	}

	flagSet.IntP("panic-every", "", 0, "Make every n-th synthetic job panic. 0 disables it.")

	err = v.BindPFlag("workload.panic-every", flagSet.Lookup("panic-every"))
	if err != nil {
		return err
	}

	flagSet.IntP("repeat", "", 1, "Number of invocations each synthetic job asks for before it reports Finished.")

	err = v.BindPFlag("workload.repeat", flagSet.Lookup("repeat"))
	if err != nil {
		return err
	}

	flagSet.Float64P("submit-rate", "", 0, "Jobs queued per second. 0 queues everything at once.")

	err = v.BindPFlag("workload.submit-rate", flagSet.Lookup("submit-rate"))
	if err != nil {
		return err
	}

	return nil
}
