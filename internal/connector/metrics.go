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

package connector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// syncRuns tracks completed inventory sync cycles
	syncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idpconnect_sync_runs_total",
			Help: "Total inventory sync runs by outcome",
		},
		[]string{"outcome"},
	)

	// syncApplications tracks normalized applications delivered per sync
	syncApplications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idpconnect_sync_applications_total",
			Help: "Total normalized applications delivered to the sink",
		},
	)

	// syncSkippedRecords tracks malformed records dropped during sync
	syncSkippedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "idpconnect_sync_skipped_records_total",
			Help: "Total malformed inventory records skipped",
		},
	)

	// syncDuration tracks sync cycle duration
	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idpconnect_sync_duration_seconds",
			Help:    "Inventory sync cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// membershipActions tracks applied membership changes
	membershipActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idpconnect_membership_actions_total",
			Help: "Total membership actions by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	// riskPushes tracks risk-score pushes
	riskPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idpconnect_risk_pushes_total",
			Help: "Total risk-score pushes by outcome",
		},
		[]string{"outcome"},
	)
)

// Action and push outcomes.
const (
	outcomeSuccess = "success"
	outcomeNoOp    = "noop"
	outcomeError   = "error"
	outcomePartial = "partial"
)

// recordSync records one sync cycle.
func recordSync(outcome string, elapsed time.Duration) {
	syncRuns.WithLabelValues(outcome).Inc()
	syncDuration.Observe(elapsed.Seconds())
}

// recordAction increments the membership action counter.
func recordAction(op, outcome string) {
	membershipActions.WithLabelValues(op, outcome).Inc()
}

// recordPush increments the risk push counter.
func recordPush(outcome string) {
	riskPushes.WithLabelValues(outcome).Inc()
}
