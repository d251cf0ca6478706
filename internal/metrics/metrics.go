/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package metrics provides Prometheus metrics for stream negotiation and
// callback delivery
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	opensTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loqa_stream_opens_total",
			Help: "Total number of streams opened, by negotiated backend and direction",
		},
		[]string{"api", "direction"},
	)

	openFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loqa_stream_open_failures_total",
			Help: "Total number of rejected open requests, by platform status",
		},
		[]string{"status", "direction"},
	)

	openStreams = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "loqa_stream_open_streams",
			Help: "Number of streams currently open",
		},
	)

	callbacksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loqa_stream_callbacks_total",
			Help: "Total number of data callback invocations delivered",
		},
		[]string{"direction"},
	)

	callbacksDroppedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "loqa_stream_callbacks_dropped_total",
			Help: "Total number of callback invocations refused because the stream was closed",
		},
	)

	framesRelayedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loqa_stream_frames_relayed_total",
			Help: "Total number of audio frames moved between streams and the message bus",
		},
		[]string{"path"},
	)
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry returns the registry holding every collector
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// StreamOpened records a successful open
func StreamOpened(api, direction string) {
	opensTotal.WithLabelValues(api, direction).Inc()
}

// StreamOpenFailed records a rejected open
func StreamOpenFailed(status, direction string) {
	openFailuresTotal.WithLabelValues(status, direction).Inc()
}

// StreamOpenCount adjusts the open stream gauge
func StreamOpenCount(delta float64) {
	openStreams.Add(delta)
}

// CallbackInvoked records a delivered data callback
func CallbackInvoked(direction string) {
	callbacksTotal.WithLabelValues(direction).Inc()
}

// CallbackDropped records an invocation refused after close
func CallbackDropped() {
	callbacksDroppedTotal.Inc()
}

// FramesRelayed records frames moved along path, e.g. "publish" or "relay"
func FramesRelayed(path string, frames int) {
	framesRelayedTotal.WithLabelValues(path).Add(float64(frames))
}
