package dot1xmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/go8021x/go8021x/internal/dot1xmetrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	if c.PortStatus == nil {
		t.Error("PortStatus is nil")
	}
	if c.FramesSent == nil {
		t.Error("FramesSent is nil")
	}
	if c.FramesReceived == nil {
		t.Error("FramesReceived is nil")
	}
	if c.InvalidFrames == nil {
		t.Error("InvalidFrames is nil")
	}
	if c.PAETransitions == nil {
		t.Error("PAETransitions is nil")
	}
	if c.BackendTransitions == nil {
		t.Error("BackendTransitions is nil")
	}
	if c.KeysInstalled == nil {
		t.Error("KeysInstalled is nil")
	}

	// Verify all metrics are registered by gathering them.
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSetPortAuthorized(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	c.SetPortAuthorized("eth0", true)
	if v := gaugeValue(t, c.PortStatus, "eth0"); v != 1 {
		t.Errorf("port_authorized = %v, want 1", v)
	}

	c.SetPortAuthorized("eth0", false)
	if v := gaugeValue(t, c.PortStatus, "eth0"); v != 0 {
		t.Errorf("port_authorized = %v, want 0", v)
	}
}

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	c.IncFramesSent("eth0", "EAPOL-Start")
	c.IncFramesSent("eth0", "EAPOL-Start")
	c.IncFramesReceived("eth0", "EAP-Packet")
	c.IncInvalidFrames("eth0")

	if v := counterValue(t, c.FramesSent, "eth0", "EAPOL-Start"); v != 2 {
		t.Errorf("FramesSent = %v, want 2", v)
	}
	if v := counterValue(t, c.FramesReceived, "eth0", "EAP-Packet"); v != 1 {
		t.Errorf("FramesReceived = %v, want 1", v)
	}
	if v := counterValue(t, c.InvalidFrames, "eth0"); v != 1 {
		t.Errorf("InvalidFrames = %v, want 1", v)
	}
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	c.RecordPAETransition("eth0", "CONNECTING", "AUTHENTICATING")
	c.RecordPAETransition("eth0", "CONNECTING", "AUTHENTICATING")
	c.RecordBackendTransition("eth0", "IDLE", "REQUEST")

	if v := counterValue(t, c.PAETransitions, "eth0", "CONNECTING", "AUTHENTICATING"); v != 2 {
		t.Errorf("PAETransitions = %v, want 2", v)
	}
	if v := counterValue(t, c.BackendTransitions, "eth0", "IDLE", "REQUEST"); v != 1 {
		t.Errorf("BackendTransitions = %v, want 1", v)
	}
}

func TestKeysInstalled(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	c.IncKeysInstalled("eth0")
	c.IncKeysInstalled("eth0")

	if v := counterValue(t, c.KeysInstalled, "eth0"); v != 2 {
		t.Errorf("KeysInstalled = %v, want 2", v)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
