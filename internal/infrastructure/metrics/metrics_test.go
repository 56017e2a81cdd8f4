package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewWithRegistry()

	r.Invocation("agent", "completed")
	r.Invocation("agent", "completed")
	r.NodeExecuted("agent", "node", 5*time.Millisecond, nil)
	r.NodeExecuted("agent", "node", time.Millisecond, errors.New("boom"))
	r.CheckpointWritten("agent")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.invocations.WithLabelValues("agent", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.nodeExecs.WithLabelValues("agent", "node", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.nodeExecs.WithLabelValues("agent", "node", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.checkpoints.WithLabelValues("agent")))
}

func TestRecorder_Runs(t *testing.T) {
	r := NewWithRegistry()

	r.RunStarted()
	r.RunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.activeRuns))

	r.RunFinished("enqueue", "success")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("enqueue", "success")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Invocation("g", "completed")
		r.NodeExecuted("g", "n", time.Second, nil)
		r.CheckpointWritten("g")
		r.RunStarted()
		r.RunFinished("reject", "error")
		r.HTTPRequest("GET", "/healthz", "200")
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := NewWithRegistry()
	r.HTTPRequest("GET", "/healthz", "200")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `agentgraph_http_requests_total{code="200",method="GET",route="/healthz"} 1`), body)
}
