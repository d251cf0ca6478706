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

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCounters(t *testing.T) {
	t.Run("opens_by_api", func(t *testing.T) {
		before := testutil.ToFloat64(opensTotal.WithLabelValues("aaudio", "output"))
		StreamOpened("aaudio", "output")
		StreamOpened("aaudio", "output")
		assert.InDelta(t, before+2, testutil.ToFloat64(opensTotal.WithLabelValues("aaudio", "output")), 0.001)
	})

	t.Run("open_failures_by_status", func(t *testing.T) {
		before := testutil.ToFloat64(openFailuresTotal.WithLabelValues("unavailable", "input"))
		StreamOpenFailed("unavailable", "input")
		assert.InDelta(t, before+1, testutil.ToFloat64(openFailuresTotal.WithLabelValues("unavailable", "input")), 0.001)
	})

	t.Run("open_streams_gauge", func(t *testing.T) {
		before := testutil.ToFloat64(openStreams)
		StreamOpenCount(1)
		assert.InDelta(t, before+1, testutil.ToFloat64(openStreams), 0.001)
		StreamOpenCount(-1)
		assert.InDelta(t, before, testutil.ToFloat64(openStreams), 0.001)
	})

	t.Run("callbacks", func(t *testing.T) {
		delivered := testutil.ToFloat64(callbacksTotal.WithLabelValues("input"))
		dropped := testutil.ToFloat64(callbacksDroppedTotal)
		CallbackInvoked("input")
		CallbackDropped()
		assert.InDelta(t, delivered+1, testutil.ToFloat64(callbacksTotal.WithLabelValues("input")), 0.001)
		assert.InDelta(t, dropped+1, testutil.ToFloat64(callbacksDroppedTotal), 0.001)
	})

	t.Run("frames_relayed", func(t *testing.T) {
		before := testutil.ToFloat64(framesRelayedTotal.WithLabelValues("publish"))
		FramesRelayed("publish", 480)
		assert.InDelta(t, before+480, testutil.ToFloat64(framesRelayedTotal.WithLabelValues("publish")), 0.001)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	StreamOpened("opensles", "input")

	server := httptest.NewServer(Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "loqa_stream_opens_total")
	assert.Contains(t, string(body), `api="opensles"`)
}
