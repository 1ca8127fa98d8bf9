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
	"github.com/prometheus/client_golang/prometheus"
)

// 丢包原因标签取值。
const (
	DropReasonQueueFull   = "queue_full"
	DropReasonClosed      = "closed"
	DropReasonMalformed   = "malformed"
	DropReasonNotAllowed  = "not_allowed"
	DropReasonRateLimited = "rate_limited"
)

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: relayNamespace,
		Subsystem: sessionSubsystem,
		Name:      "active",
		Help:      "当前注册在会话表中的连接数",
	})

	ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: acceptSubsystem,
		Name:      "connections_accepted_total",
		Help:      "累计接受的连接数",
	})

	ConnectionFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: sessionSubsystem,
		Name:      "connection_faults_total",
		Help:      "因读写错误而结束的连接数",
	})

	WorkersWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: relayNamespace,
		Subsystem: acceptSubsystem,
		Name:      "workers_waiting",
		Help:      "等待空闲 worker 的已接受连接数",
	})

	RoomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: relayNamespace,
		Subsystem: roomSubsystem,
		Name:      "active",
		Help:      "当前存在的房间数",
	})

	PacketsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: packetSubsystem,
		Name:      "received_total",
		Help:      "按命令统计的已解码入站数据包数",
	}, []string{commandLabelName})

	PacketsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: packetSubsystem,
		Name:      "sent_total",
		Help:      "写入连接的出站数据包数",
	})

	PacketsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: packetSubsystem,
		Name:      "dropped_total",
		Help:      "按原因统计的被丢弃数据包数",
	}, []string{reasonLabelName})

	DispatchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: relayNamespace,
		Subsystem: packetSubsystem,
		Name:      "dispatch_errors_total",
		Help:      "按错误类型统计的命令处理失败数",
	}, []string{errorLabelName})

	DispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: relayNamespace,
		Subsystem: packetSubsystem,
		Name:      "dispatch_latency_seconds",
		Help:      "命令处理耗时，单位秒",
		Buckets:   buckets,
	}, []string{commandLabelName})
)
