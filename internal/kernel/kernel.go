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

// Package kernel owns the process-wide services the rest of the runtime
// relies on: the logger, the root path, telemetry and the default thread
// pool. They are brought up together by Init and torn down by Clean.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sengine/sekernel/cfg"
	"github.com/sengine/sekernel/common"
	"github.com/sengine/sekernel/internal/locker"
	"github.com/sengine/sekernel/internal/logger"
	"github.com/sengine/sekernel/internal/monitor"
	"github.com/sengine/sekernel/internal/rootpath"
	"github.com/sengine/sekernel/internal/workerpool"
	"github.com/sengine/sekernel/metrics"
	"github.com/sengine/sekernel/tracing"
	"golang.org/x/sync/semaphore"
)

const (
	defaultPoolName = "kernel"
	shutdownTimeout = 10 * time.Second
)

// ErrAlreadyInitialized is returned by Init while a kernel is live.
var ErrAlreadyInitialized = errors.New("kernel already initialized")

// Kernel is the live set of process-wide services.
type Kernel struct {
	config      cfg.Config
	rootPath    string
	simd        SIMDFeatures
	totalMemory uint64

	pool         *workerpool.ThreadPool
	metricHandle metrics.MetricHandle
	closeMetrics func()
	shutdown     common.ShutdownFn

	cleanOnce sync.Once
}

var (
	mu      sync.Mutex
	current *Kernel // GUARDED_BY(mu)
)

// Init brings up the services described by c, in dependency order: lock
// debugging, logger, root path, telemetry, SIMD detection and the default
// pool. c is expected to be rationalized. Only one kernel may be live at a
// time; call Clean before initializing again.
func Init(ctx context.Context, c *cfg.Config) (*Kernel, error) {
	mu.Lock()
	defer mu.Unlock()

	if current != nil {
		return nil, ErrAlreadyInitialized
	}

	if c.Debug.ExitOnInvariantViolation {
		locker.EnableInvariantsCheck()
	}
	if c.Debug.LogMutex {
		locker.EnableDebugMessages()
	}

	if err := logger.InitLogFile(c.Logging); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rootPath, err := resolveRootPath(c.Kernel.RootPath)
	if err != nil {
		logger.Clean()
		return nil, fmt.Errorf("init root path: %w", err)
	}

	k := &Kernel{
		config:   *c,
		rootPath: rootPath,
	}

	k.shutdown = common.JoinShutdownFunc(
		monitor.SetupOTelMetricExporters(ctx, c),
		monitor.SetupTracing(ctx, c),
	)

	if mh, err := metrics.NewOTelMetrics(ctx, int(c.Metrics.Workers), int(c.Metrics.BufferSize)); err != nil {
		logger.Errorf("Falling back to no-op metrics: %v", err)
		k.metricHandle = metrics.NewNoopMetrics()
	} else {
		k.metricHandle = mh
		k.closeMetrics = mh.Close
	}

	traceHandle := tracing.NewNoopTracer()
	if c.Tracing.Exporter != cfg.NoTraceExporter {
		traceHandle = tracing.NewOTelTracer()
	}

	if c.Kernel.LoadSimd {
		k.simd = DetectSIMD()
		logger.Infof("SIMD features: %s", k.simd)
	}
	if k.totalMemory, err = totalMemory(); err != nil {
		logger.Debugf("Total memory unknown: %v", err)
	}

	opts := []workerpool.Option{
		workerpool.WithName(defaultPoolName),
		workerpool.WithMetricHandle(k.metricHandle),
		workerpool.WithTraceHandle(traceHandle),
	}
	if c.ThreadPool.MaxWorkers > 0 {
		opts = append(opts, workerpool.WithWorkerBudget(semaphore.NewWeighted(c.ThreadPool.MaxWorkers)))
	}
	k.pool = workerpool.NewThreadPool(int(c.ThreadPool.Workers), opts...)

	current = k
	logger.Infof("Kernel initialized: root %q, %d workers, %d MiB memory", k.rootPath, k.pool.Size(), k.totalMemory>>20)
	return k, nil
}

func resolveRootPath(p cfg.ResolvedPath) (string, error) {
	if p == "" {
		return rootpath.ResetRootPath()
	}
	return rootpath.SetRootPath([]string{string(p)})
}

// Clean stops the default pool, flushes telemetry, resets the root path and
// closes the logger. It is safe to call more than once.
func (k *Kernel) Clean() {
	k.cleanOnce.Do(func() {
		k.pool.Close()
		if err := k.pool.Err(); err != nil {
			logger.Warnf("Jobs panicked during the kernel lifetime: %v", err)
		}

		if k.closeMetrics != nil {
			k.closeMetrics()
		}
		if err := common.ShutdownWithTimeout(k.shutdown, shutdownTimeout); err != nil {
			logger.Warnf("Telemetry shutdown: %v", err)
		}

		if _, err := rootpath.ResetRootPath(); err != nil {
			logger.Warnf("Reset root path: %v", err)
		}
		logger.Infof("Kernel cleaned")
		logger.Clean()

		mu.Lock()
		defer mu.Unlock()
		if current == k {
			current = nil
		}
	})
}

// IsInitialized reports whether a kernel is live.
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()

	return current != nil
}

// Current returns the live kernel, or nil.
func Current() *Kernel {
	mu.Lock()
	defer mu.Unlock()

	return current
}

// Pool returns the default thread pool. It is Idle until started by the
// caller.
func (k *Kernel) Pool() *workerpool.ThreadPool {
	return k.pool
}

func (k *Kernel) RootPath() string {
	return k.rootPath
}

// SIMD returns the detected instruction sets. It is empty unless
// kernel.load-simd was set.
func (k *Kernel) SIMD() SIMDFeatures {
	return k.simd
}

// TotalMemory returns the memory available to the process in bytes, bounded
// by the container limit if any. It is 0 when it could not be determined.
func (k *Kernel) TotalMemory() uint64 {
	return k.totalMemory
}

func (k *Kernel) Config() cfg.Config {
	return k.config
}

// MetricHandle returns the handle shared by the default pool, for callers
// building additional pools.
func (k *Kernel) MetricHandle() metrics.MetricHandle {
	return k.metricHandle
}
