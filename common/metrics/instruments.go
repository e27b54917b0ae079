// Copyright 2025 StreamNative, Inc.
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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pike"

var (
	AdminQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_queries_total",
		Help:      "Statements sent through the admin console, by outcome",
	}, []string{"outcome"})

	InstanceLaunchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "instance_launch_seconds",
		Help:      "Time from spawning an instance until it reports Online",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	RunningInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "running_instances",
		Help:      "Instances spawned by this process that have not exited yet",
	})
)
