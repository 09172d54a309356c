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
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m1 := New()
	m2 := New()
	m1.Batch("scan").Inc()
	m1.Batch("scan").Inc()
	m1.FallbackCounter.Inc()
	assert.Equal(t, 2.0, testutil.ToFloat64(m1.Batch("scan")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.Batch("scan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m1.FallbackCounter))

	families, err := m1.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "vexec_executor_batch_count")
	assert.Contains(t, names, "vexec_planner_fallback_count")
}
