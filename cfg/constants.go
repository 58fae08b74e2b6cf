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

const (
	// Logging-level constants

	TRACE   string = "TRACE"
	DEBUG   string = "DEBUG"
	INFO    string = "INFO"
	WARNING string = "WARNING"
	ERROR   string = "ERROR"
	OFF     string = "OFF"
)

const (
	// Log formats accepted by logging.format.

	TextLogFormat = "text"
	JSONLogFormat = "json"
)

const (
	// Config key consulted through isSet during rationalization.

	LogSeverityConfigKey = "logging.severity"
)

const (
	// DefaultMetricsWorkers is used when metrics.workers is not positive.
	DefaultMetricsWorkers = 3
	// DefaultMetricsBufferSize is used when metrics.buffer-size is not positive.
	DefaultMetricsBufferSize = 256
	// MaxPort is the largest value accepted by metrics.prometheus-port.
	MaxPort = 65535
)
