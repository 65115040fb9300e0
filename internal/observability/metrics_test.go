package observability

import (
	"testing"
	"time"

	"github.com/danmuck/redclient/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("subctl", "GET", "/health", 200, 12*time.Millisecond)
	RecordFrame("in", "array")
	RecordTransportError("parse")
	RecordSessionFailure("unexpected_response")
}

func TestCountersAdvance(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(commands.WithLabelValues("SUBSCRIBE"))
	RecordCommand("SUBSCRIBE")
	RecordCommand("SUBSCRIBE")
	if got := testutil.ToFloat64(commands.WithLabelValues("SUBSCRIBE")); got != before+2 {
		t.Fatalf("commands_total: got %v want %v", got, before+2)
	}

	beforeMsg := testutil.ToFloat64(deliveries.WithLabelValues("message"))
	RecordDelivery("message")
	if got := testutil.ToFloat64(deliveries.WithLabelValues("message")); got != beforeMsg+1 {
		t.Fatalf("deliveries_total: got %v want %v", got, beforeMsg+1)
	}

	beforePending := testutil.ToFloat64(channels.WithLabelValues("pending"))
	AddChannels("pending", 1)
	AddChannels("pending", -1)
	if got := testutil.ToFloat64(channels.WithLabelValues("pending")); got != beforePending {
		t.Fatalf("channels gauge: got %v want %v", got, beforePending)
	}
}
