package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// One NewRecorder per process: the families live on the default registry,
// so every observation goes through this shared instance.
func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.ObserveRequest("gemini-2.0-flash", "wf-1", "GENERATING", 1000, 500, true, "", 2*time.Second)
	r.ObserveRequest("gemini-2.0-flash", "wf-1", "GENERATING", 800, 0, false, "rate_limit", time.Second)

	require.Equal(t, 1.0, testutil.ToFloat64(
		r.requestsTotal.WithLabelValues("gemini-2.0-flash", "wf-1", "GENERATING", "success", "")))
	require.Equal(t, 1.0, testutil.ToFloat64(
		r.requestsTotal.WithLabelValues("gemini-2.0-flash", "wf-1", "GENERATING", "error", "rate_limit")))

	// Failed requests are not billed: only the successful request's tokens count.
	require.Equal(t, 1000.0, testutil.ToFloat64(
		r.tokensTotal.WithLabelValues("gemini-2.0-flash", "wf-1", "GENERATING", "prompt")))
	require.Equal(t, 500.0, testutil.ToFloat64(
		r.tokensTotal.WithLabelValues("gemini-2.0-flash", "wf-1", "GENERATING", "completion")))

	r.IncIteration("wf-1")
	r.IncIteration("wf-1")
	r.IncEscalation("wf-1", "oscillation")
	r.IncFileProcessed("wf-1", "COMPLETED")

	require.Equal(t, 2.0, testutil.ToFloat64(r.iterationsTotal.WithLabelValues("wf-1")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.escalationsTotal.WithLabelValues("wf-1", "oscillation")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.filesProcessed.WithLabelValues("wf-1", "COMPLETED")))
}

func TestRequestCost(t *testing.T) {
	// gemini-2.0-flash: $0.10 in, $0.40 out per million tokens.
	cost := requestCost("gemini-2.0-flash", 1_000_000, 500_000)
	require.InEpsilon(t, 0.10+0.20, cost, 1e-9)

	require.Equal(t, 0.0, requestCost("made-up-model", 1_000_000, 1_000_000))
	require.True(t, math.Abs(requestCost("gemini-2.0-flash", 0, 0)) < 1e-12)
}

func TestNewQueryServiceRejectsBadURL(t *testing.T) {
	_, err := NewQueryService("://not-a-url")
	require.Error(t, err)
}
