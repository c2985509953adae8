/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelVersion  = "version"
	LabelPlatform = "platform"
	LabelFunction = "function"
	LabelStatus   = "status"
	LabelKind     = "kind"
)

const namespace = "udf_worker"

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "A metric with a constant value '1', labeled by binary version and platform",
	}, []string{LabelVersion, LabelPlatform})
)

// Session metrics
var (
	// SessionsCount is the number of finished sessions, by terminal status (clean, failed).
	SessionsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "total",
		Help:      "Total number of finished sessions",
	}, []string{LabelFunction, LabelStatus})

	// SessionErrorsCount is the number of failed sessions by error kind, setup failures
	// included. Sessions failing before a command is resolved use function "unknown".
	SessionErrorsCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "error_total",
		Help:      "Total number of failed sessions, by error kind",
	}, []string{LabelFunction, LabelKind})

	// TuplesCount is the number of tuples answered with a result frame.
	TuplesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tuple",
		Name:      "total",
		Help:      "Total number of tuples processed",
	}, []string{LabelFunction})

	// TupleProcessingTime is the time from a tuple frame read to its result frame flushed.
	TupleProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tuple",
		Name:      "processing_time",
		Help:      "Processing time of one tuple (1 microsecond to 1 second)",
		Buckets:   prometheus.ExponentialBucketsRange(1, 1000000, 20),
	}, []string{LabelFunction})

	// ReadBytesCount is the number of payload bytes read.
	ReadBytesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_bytes_total",
		Help:      "Total number of payload bytes read",
	}, []string{LabelFunction})

	// WriteBytesCount is the number of payload bytes written.
	WriteBytesCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "write_bytes_total",
		Help:      "Total number of payload bytes written",
	}, []string{LabelFunction})
)
