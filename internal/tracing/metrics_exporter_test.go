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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/resource"
)

func TestNewMetricsProviderBuildsMeterProviderAndHandler(t *testing.T) {
	res := resource.Default()
	mp, err := NewMetricsProvider(res)
	require.NoError(t, err)
	require.NotNil(t, mp)
	defer mp.Shutdown(context.Background())

	assert.NotNil(t, mp.MeterProvider())
	assert.NotNil(t, mp.Handler())
}

func TestMetricsProviderHandlerServesPrometheusFormat(t *testing.T) {
	res := resource.Default()
	mp, err := NewMetricsProvider(res)
	require.NoError(t, err)
	defer mp.Shutdown(context.Background())

	meter := mp.MeterProvider().Meter("test")
	counter, err := meter.Int64Counter("flowctl_test_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mp.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowctl_test_total")
}

func TestMetricsProviderShutdownSucceeds(t *testing.T) {
	res := resource.Default()
	mp, err := NewMetricsProvider(res)
	require.NoError(t, err)

	require.NoError(t, mp.Shutdown(context.Background()))
}
