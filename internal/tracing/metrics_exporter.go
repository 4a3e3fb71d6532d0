// Copyright 2025 Tom Barlow
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

package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricsProvider wraps an OTel MeterProvider backed by a Prometheus
// collector, so flowctl's run metrics (flowctl_runs_total,
// flowctl_steps_total, ...) can be pulled by a Prometheus server instead of
// only appearing in the terminal MetricsSnapshot.
type MetricsProvider struct {
	mp  *sdkmetric.MeterProvider
	exp *prometheus.Exporter
}

// NewMetricsProvider builds a MetricsProvider sharing res with the trace
// Provider so metrics and spans carry the same service.name/version.
func NewMetricsProvider(res *resource.Resource) (*MetricsProvider, error) {
	exp, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)

	return &MetricsProvider{mp: mp, exp: exp}, nil
}

// MeterProvider returns the provider to pass to NewMetricsCollector.
func (m *MetricsProvider) MeterProvider() metric.MeterProvider {
	return m.mp
}

// Handler returns the HTTP handler serving /metrics. The OTel Prometheus
// exporter registers with the default Prometheus registry, so promhttp's
// default handler picks up everything it exports.
func (m *MetricsProvider) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown releases the meter provider's resources.
func (m *MetricsProvider) Shutdown(ctx context.Context) error {
	return m.mp.Shutdown(ctx)
}
