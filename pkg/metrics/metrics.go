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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// relayNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	relayNamespace = "chatrelay"

	sessionSubsystem = "session"
	roomSubsystem    = "room"
	packetSubsystem  = "packet"
	acceptSubsystem  = "acceptor"

	commandLabelName = "command"
	reasonLabelName  = "reason"
	errorLabelName   = "error"
)

var (
	// buckets 为请求耗时直方图的桶划分，单位为秒。
	// [0.00005 0.0001 0.0002 ... 1.6384]
	buckets = prometheus.ExponentialBuckets(0.00005, 2, 16)

	metricRegisterer prometheus.Registerer
	registerMu       sync.Mutex
)

// GetRegisterer 返回最近一次 Register 使用的 Registerer，未注册时返回默认 Registerer。
func GetRegisterer() prometheus.Registerer {
	registerMu.Lock()
	defer registerMu.Unlock()
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 将全部指标注册到 r。
// 同一个 Registerer 只能注册一次，重复注册会 panic。
func Register(r prometheus.Registerer) {
	r.MustRegister(SessionsActive)
	r.MustRegister(ConnectionsAccepted)
	r.MustRegister(ConnectionFaults)
	r.MustRegister(WorkersWaiting)
	r.MustRegister(RoomsActive)
	r.MustRegister(PacketsReceived)
	r.MustRegister(PacketsSent)
	r.MustRegister(PacketsDropped)
	r.MustRegister(DispatchErrors)
	r.MustRegister(DispatchLatency)

	registerMu.Lock()
	metricRegisterer = r
	registerMu.Unlock()
}
