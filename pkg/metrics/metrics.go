// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics belongs to one engine. Each engine has its own registry so
// tests can build several without name clashes.
type Metrics struct {
	Registry *prometheus.Registry

	BatchCounter    *prometheus.CounterVec
	ScannedRows     prometheus.Counter
	FilteredRows    prometheus.Counter
	FallbackCounter prometheus.Counter
	QueryCounter    *prometheus.CounterVec
	PinGauge        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		BatchCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vexec",
				Subsystem: "executor",
				Name:      "batch_count",
				Help:      "Total number of batches produced.",
			}, []string{"node"}),
		ScannedRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vexec",
				Subsystem: "executor",
				Name:      "scanned_rows",
				Help:      "Total number of visible rows read by scans.",
			}),
		FilteredRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vexec",
				Subsystem: "executor",
				Name:      "filtered_rows",
				Help:      "Total number of rows removed by quals.",
			}),
		FallbackCounter: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vexec",
				Subsystem: "planner",
				Name:      "fallback_count",
				Help:      "Total number of queries left on the row engine.",
			}),
		QueryCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vexec",
				Subsystem: "engine",
				Name:      "query_count",
				Help:      "Total number of queries by engine.",
			}, []string{"engine"}),
		PinGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vexec",
				Subsystem: "storage",
				Name:      "buffer_pins",
				Help:      "Outstanding buffer pins.",
			}),
	}
	m.Registry.MustRegister(
		m.BatchCounter,
		m.ScannedRows,
		m.FilteredRows,
		m.FallbackCounter,
		m.QueryCounter,
		m.PinGauge,
	)
	return m
}

func (m *Metrics) Batch(node string) prometheus.Counter {
	return m.BatchCounter.WithLabelValues(node)
}
