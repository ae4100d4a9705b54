package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "billing_runs_total"}, []string{"outcome"})
	runs.WithLabelValues("success").Add(3)
	lag := prometheus.NewGauge(prometheus.GaugeOpts{Name: "scheduler_lag_seconds"})
	lag.Set(1.5)
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "billing_run_seconds"})
	hist.Observe(0.2)
	reg.MustRegister(runs, lag, hist)
	return reg
}

func TestRemoteWritePusherSendsCountersAndGauges(t *testing.T) {
	var got prompb.WriteRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, got.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "secret")
	pusher.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))

	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	require.Len(t, got.Timeseries, 2)

	byName := map[string]prompb.TimeSeries{}
	for _, ts := range got.Timeseries {
		for _, l := range ts.Labels {
			if l.Name == "__name__" {
				byName[l.Value] = ts
			}
		}
	}
	require.Contains(t, byName, "billing_runs_total")
	assert.Equal(t, 3.0, byName["billing_runs_total"].Samples[0].Value)
	assert.Equal(t, int64(1_700_000_000_000), byName["billing_runs_total"].Samples[0].Timestamp)
	assert.Equal(t, 1.5, byName["scheduler_lag_seconds"].Samples[0].Value)
}

func TestRemoteWritePusherReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))
	assert.ErrorContains(t, err, "400")
}

func TestBuildRemoteWriteSeriesSortsLabels(t *testing.T) {
	families, err := testRegistry(t).Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1)
	for _, ts := range series {
		for i := 1; i < len(ts.Labels); i++ {
			assert.Less(t, ts.Labels[i-1].Name, ts.Labels[i].Name)
		}
	}
}

func TestNewPusher(t *testing.T) {
	log := zap.NewNop()

	assert.Nil(t, NewPusher(Config{}, log))
	assert.Nil(t, NewPusher(Config{Exporter: ExporterRemoteWrite}, log))
	assert.Nil(t, NewPusher(Config{Exporter: ExporterRemoteWrite, Endpoint: "not a url"}, log))
	assert.Nil(t, NewPusher(Config{Exporter: "statsd", Endpoint: "http://x"}, log))
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(Config{Exporter: ExporterRemoteWrite, Endpoint: "http://collector/api/v1/write"}, log))
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(Config{Exporter: "PROMETHEUS_PUSHGATEWAY", Endpoint: "http://gw:9091", Job: "portal-scheduler"}, log))
}
