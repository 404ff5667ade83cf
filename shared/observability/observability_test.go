package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	mp, handler, err := SetupPrometheusMetrics()
	require.NoError(t, err)
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRequest(ctx, "chat", 150*time.Millisecond, nil)
	m.RecordRequest(ctx, "group_parallel", time.Second, errors.New("boom"))
	m.RecordGroupReply(ctx, "parallel")

	srv := httptest.NewServer(handler)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "chatmallu_stream_requests_total")
	assert.Contains(t, string(body), "chatmallu_stream_failures_total")
	assert.Contains(t, string(body), "chatmallu_group_replies_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest(context.Background(), "chat", time.Second, nil)
	m.RecordGroupReply(context.Background(), "sequential")
}

func TestSetupTracing(t *testing.T) {
	shutdown, err := SetupTracing("chatmallu-test", io.Discard)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
