package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
}

func TestRecordersCount(t *testing.T) {
	before := testutil.ToFloat64(dropped.WithLabelValues(ReasonParse))
	RecordDropped(ReasonParse)
	RecordDropped(ReasonParse)
	assert.Equal(t, before+2, testutil.ToFloat64(dropped.WithLabelValues(ReasonParse)))

	before = testutil.ToFloat64(connects.WithLabelValues("error"))
	RecordConnect(false)
	assert.Equal(t, before+1, testutil.ToFloat64(connects.WithLabelValues("error")))

	before = testutil.ToFloat64(frames.WithLabelValues("out"))
	RecordFrame("out")
	assert.Equal(t, before+1, testutil.ToFloat64(frames.WithLabelValues("out")))

	RecordCommand("patch-parameter")
	RecordPeerMessage("in")
}
