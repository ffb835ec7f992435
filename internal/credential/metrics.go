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

package credential

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apibridge_credential_cache_lookups_total",
			Help: "Credential cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	gatewayFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apibridge_credential_gateway_fetches_total",
			Help: "Credential authority fetches by outcome",
		},
		[]string{"outcome"},
	)

	gatewayFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apibridge_credential_gateway_fetch_duration_seconds",
		Help:    "Duration of successful credential authority fetches",
		Buckets: prometheus.DefBuckets,
	})
)
