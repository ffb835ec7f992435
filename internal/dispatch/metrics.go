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

package dispatch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/tombee/apibridge/pkg/errors"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apibridge_dispatch_duration_seconds",
			Help:    "Duration of upstream dispatches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apibridge_dispatch_retries_total",
			Help: "Upstream dispatch retries by operation",
		},
		[]string{"operation"},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apibridge_dispatch_errors_total",
			Help: "Upstream dispatch failures by error kind",
		},
		[]string{"kind"},
	)
)

func (d *Dispatcher) observe(method string, status int, start time.Time) {
	requestDuration.WithLabelValues(method, strconv.Itoa(status)).
		Observe(time.Since(start).Seconds())
}

func (d *Dispatcher) observeError(method string, err error, start time.Time) {
	kind := apierrors.Kind(err)
	errorsTotal.WithLabelValues(kind).Inc()
	requestDuration.WithLabelValues(method, "error").
		Observe(time.Since(start).Seconds())
}
