package engine

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/efreitasn/brokerledger/internal/store/memory"
)

func TestMetrics_RecordOutcomesAndFills(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	clock := newFakeClock()
	e := New(memory.New(), Options{Clock: clock.Now, Logger: discardLogger(), Metrics: metrics})

	registerStock(t, e, "X", "10.00")
	openAccount(t, e, "A", "1000.00", nil)
	openAccount(t, e, "B", "0.00", map[string]int64{"X": 5})
	openAccount(t, e, "C", "0.00", map[string]int64{"X": 10})
	placeSell(t, e, "B", "X", 5, "10.00")
	placeSell(t, e, "C", "X", 10, "12.00")

	if _, err := e.PlaceBuy(ctx, "A", "X", 8, dec("12.00")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := e.PlaceBuy(ctx, "A", "X", 100, dec("12.00")); err == nil {
		t.Fatal("expected the oversized buy to fail")
	}

	if got := testutil.ToFloat64(metrics.Operations.WithLabelValues("place_buy", OutcomeOK)); got != 1 {
		t.Errorf("place_buy ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Operations.WithLabelValues("place_buy", OutcomeRejected)); got != 1 {
		t.Errorf("place_buy rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Operations.WithLabelValues("place_sell", OutcomeOK)); got != 2 {
		t.Errorf("place_sell ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.TradesExecuted.WithLabelValues("X")); got != 2 {
		t.Errorf("fills = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.SharesTraded.WithLabelValues("X")); got != 8 {
		t.Errorf("shares traded = %v, want 8", got)
	}
	if n := testutil.CollectAndCount(metrics.OperationLatency); n == 0 {
		t.Error("expected latency observations")
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("place_buy", OutcomeOK, time.Millisecond)
	m.ObserveFills("X", 1, 1)
}
