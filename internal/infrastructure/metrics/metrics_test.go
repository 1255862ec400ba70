package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetSessionStateIsExclusive(t *testing.T) {
	SetSessionState("connecting")
	SetSessionState("ready")

	assert.Equal(t, float64(1), testutil.ToFloat64(sessionState.WithLabelValues("ready")))
	assert.Equal(t, float64(0), testutil.ToFloat64(sessionState.WithLabelValues("connecting")))
	assert.Equal(t, float64(0), testutil.ToFloat64(sessionState.WithLabelValues("disconnected")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(reconnectAttemptsTotal)
	IncReconnectAttempt()
	assert.Equal(t, before+1, testutil.ToFloat64(reconnectAttemptsTotal))

	in := testutil.ToFloat64(framesTotal.WithLabelValues("in", "reply"))
	IncInboundFrame("reply")
	assert.Equal(t, in+1, testutil.ToFloat64(framesTotal.WithLabelValues("in", "reply")))

	SetQueueDepth(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(queueDepth))
}
