package health

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubProber struct {
	version string
	fail    bool
}

func (s *stubProber) CapabilityVersion(context.Context) (string, error) {
	if s.fail {
		return "", fmt.Errorf("gateway unreachable")
	}
	return s.version, nil
}

func TestProbe_success(t *testing.T) {
	prober := &stubProber{version: "memory/1"}
	m := New(prober, Config{ProbeTimeout: time.Second}, zap.NewNop())

	st := m.Probe(context.Background())
	if !st.Healthy {
		t.Error("expected healthy after successful probe")
	}
	if st.CapabilityVersion != "memory/1" {
		t.Errorf("capability version = %q", st.CapabilityVersion)
	}
}

func TestProbe_degradesAfterThreshold(t *testing.T) {
	prober := &stubProber{fail: true}
	m := New(prober, Config{ProbeTimeout: time.Second, FailThreshold: 3}, zap.NewNop())

	for i := 0; i < 2; i++ {
		if st := m.Probe(context.Background()); !st.Healthy {
			t.Fatalf("unhealthy after %d failures, threshold is 3", i+1)
		}
	}
	if st := m.Probe(context.Background()); st.Healthy {
		t.Error("still healthy after hitting the failure threshold")
	}
	if m.Healthy() {
		t.Error("Healthy() disagrees with the probe result")
	}
}

func TestProbe_recoversOnFirstSuccess(t *testing.T) {
	prober := &stubProber{fail: true}
	m := New(prober, Config{ProbeTimeout: time.Second, FailThreshold: 2}, zap.NewNop())

	m.Probe(context.Background())
	m.Probe(context.Background())
	if m.Healthy() {
		t.Fatal("expected unhealthy")
	}

	prober.fail = false
	prober.version = "PostgreSQL 16.3"
	st := m.Probe(context.Background())
	if !st.Healthy || st.ConsecutiveFails != 0 {
		t.Errorf("expected immediate recovery, got %+v", st)
	}
	if st.LastError != "" {
		t.Errorf("stale error kept after recovery: %q", st.LastError)
	}
}

func TestProbe_recordsMetrics(t *testing.T) {
	prober := &stubProber{version: "memory/1"}
	m := New(prober, Config{ProbeTimeout: time.Second}, zap.NewNop())

	var results []bool
	m.SetMetricsRecord(func(success bool) { results = append(results, success) })

	m.Probe(context.Background())
	prober.fail = true
	m.Probe(context.Background())

	if len(results) != 2 || !results[0] || results[1] {
		t.Errorf("recorded results = %v, want [true false]", results)
	}
}
