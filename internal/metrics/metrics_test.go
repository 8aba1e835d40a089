package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/triage/pkg/consumer"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ consumer.Observer = (*Metrics)(nil)

func TestHooks(t *testing.T) {
	m := New()
	h := m.Hooks()
	ctx := context.Background()

	h.OnNodeEnter(ctx, &domain.NodeEvent{Node: "GP"})
	h.OnNodeEnter(ctx, &domain.NodeEvent{Node: "GP"})
	h.OnNodeLeave(ctx, &domain.NodeEvent{Node: "GP", Duration: time.Second, Err: errors.New("boom")})
	h.OnToolReturn(ctx, &domain.ToolEvent{Tool: "search"})
	h.OnToolReturn(ctx, &domain.ToolEvent{Tool: "search", IsError: true})
	h.OnRoute(ctx, &domain.RouteEvent{From: "GP", Decision: domain.Escalate("psychologist")})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.nodeVisits.WithLabelValues("GP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.nodeErrors.WithLabelValues("GP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("search", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("search", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routes.WithLabelValues("GP", "escalate")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.nodeDuration))
}

func TestObserveDelivery(t *testing.T) {
	m := New()

	m.ObserveDelivery("message_queue", consumer.ResultOK, 10*time.Millisecond)
	m.ObserveDelivery("message_queue", consumer.ResultDead, 10*time.Millisecond)
	m.ObserveDelivery("message_queue", consumer.ResultOK, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.deliveries.WithLabelValues("message_queue", consumer.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("message_queue", consumer.ResultDead)))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveDelivery("q", consumer.ResultOK, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `triage_deliveries_total{queue="q",result="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
