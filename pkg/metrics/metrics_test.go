// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	Register(r)
	assert.Equal(t, prometheus.Registerer(r), GetRegisterer())
	assert.Panics(t, func() { Register(r) })

	before := testutil.ToFloat64(PacketsDropped.WithLabelValues(DropReasonQueueFull))
	PacketsDropped.WithLabelValues(DropReasonQueueFull).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PacketsDropped.WithLabelValues(DropReasonQueueFull)))

	n, err := testutil.GatherAndCount(r, "chatrelay_packet_dropped_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDispatchLatencyInSeconds(t *testing.T) {
	r := prometheus.NewRegistry()
	r.MustRegister(DispatchLatency)

	DispatchLatency.WithLabelValues("joinServer").Observe((200 * time.Microsecond).Seconds())

	families, err := r.Gather()
	assert.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "chatrelay_packet_dispatch_latency_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetLabel()[0].GetValue() != "joinServer" {
				continue
			}
			found = true
			h := m.GetHistogram()
			assert.EqualValues(t, 1, h.GetSampleCount())
			assert.InDelta(t, 0.0002, h.GetSampleSum(), 1e-9)
			// 亚毫秒耗时落入低位桶，而不是被截断为 0
			var under float64
			for _, b := range h.GetBucket() {
				if b.GetUpperBound() < 0.0001 {
					assert.Zero(t, b.GetCumulativeCount())
				}
				if b.GetUpperBound() >= 0.0002 && under == 0 {
					under = b.GetUpperBound()
					assert.EqualValues(t, 1, b.GetCumulativeCount())
				}
			}
			assert.Less(t, under, 0.001)
		}
	}
	assert.True(t, found)
}
