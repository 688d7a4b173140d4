// Package dot1xmetrics exposes the EAPOL supplicant's counters and state
// transitions as Prometheus metrics.
package dot1xmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "go8021x"
	subsystem = "supplicant"
)

// Label names for supplicant metrics.
const (
	labelIface     = "iface"
	labelFrom      = "from_state"
	labelTo        = "to_state"
	labelFrameType = "frame_type"
)

// -------------------------------------------------------------------------
// Collector — Prometheus EAPOL Metrics
// -------------------------------------------------------------------------

// Collector holds all supplicant Prometheus metrics.
//
//   - PortStatus tracks the current port authorization state as a gauge.
//   - FramesSent/FramesReceived count EAPOL traffic by frame type.
//   - PAETransitions/BackendTransitions count FSM state changes for
//     alerting on flapping ports.
//   - InvalidFrames counts malformed or undersized EAPOL frames dropped
//     at the demux.
//   - KeysInstalled counts successful dynamic-WEP key installs.
type Collector struct {
	// PortStatus is 1 when the port is Authorized, 0 otherwise, labeled
	// by interface.
	PortStatus *prometheus.GaugeVec

	// FramesSent counts transmitted EAPOL frames per frame type.
	FramesSent *prometheus.CounterVec

	// FramesReceived counts received, successfully decoded EAPOL frames
	// per frame type.
	FramesReceived *prometheus.CounterVec

	// InvalidFrames counts EAPOL frames dropped by the demux (too short,
	// declared length exceeds the buffer, unrecognized key type).
	InvalidFrames *prometheus.CounterVec

	// PAETransitions counts Supplicant PAE state machine transitions.
	PAETransitions *prometheus.CounterVec

	// BackendTransitions counts Supplicant Backend state machine transitions.
	BackendTransitions *prometheus.CounterVec

	// KeysInstalled counts successful dynamic-WEP key installations.
	KeysInstalled *prometheus.CounterVec
}

// NewCollector creates a Collector with all supplicant metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PortStatus,
		c.FramesSent,
		c.FramesReceived,
		c.InvalidFrames,
		c.PAETransitions,
		c.BackendTransitions,
		c.KeysInstalled,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	ifaceLabels := []string{labelIface}
	frameLabels := []string{labelIface, labelFrameType}
	transitionLabels := []string{labelIface, labelFrom, labelTo}

	return &Collector{
		PortStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "port_authorized",
			Help:      "1 if the port is Authorized, 0 otherwise.",
		}, ifaceLabels),

		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total EAPOL frames transmitted, by frame type.",
		}, frameLabels),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total EAPOL frames received and decoded, by frame type.",
		}, frameLabels),

		InvalidFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "invalid_frames_total",
			Help:      "Total malformed EAPOL frames dropped at the demux.",
		}, ifaceLabels),

		PAETransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pae_transitions_total",
			Help:      "Total Supplicant PAE state machine transitions.",
		}, transitionLabels),

		BackendTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backend_transitions_total",
			Help:      "Total Supplicant Backend state machine transitions.",
		}, transitionLabels),

		KeysInstalled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "keys_installed_total",
			Help:      "Total dynamic-WEP keys installed into the adapter.",
		}, ifaceLabels),
	}
}

// -------------------------------------------------------------------------
// Port Status
// -------------------------------------------------------------------------

// SetPortAuthorized sets the port_authorized gauge for iface.
func (c *Collector) SetPortAuthorized(iface string, authorized bool) {
	v := 0.0
	if authorized {
		v = 1.0
	}
	c.PortStatus.WithLabelValues(iface).Set(v)
}

// -------------------------------------------------------------------------
// Frame Counters
// -------------------------------------------------------------------------

// IncFramesSent increments the transmitted-frame counter for iface/frameType.
func (c *Collector) IncFramesSent(iface, frameType string) {
	c.FramesSent.WithLabelValues(iface, frameType).Inc()
}

// IncFramesReceived increments the received-frame counter for iface/frameType.
func (c *Collector) IncFramesReceived(iface, frameType string) {
	c.FramesReceived.WithLabelValues(iface, frameType).Inc()
}

// IncInvalidFrames increments the invalid-frame counter for iface.
func (c *Collector) IncInvalidFrames(iface string) {
	c.InvalidFrames.WithLabelValues(iface).Inc()
}

// -------------------------------------------------------------------------
// State Transitions
// -------------------------------------------------------------------------

// RecordPAETransition increments the PAE transition counter with the old
// and new state labels. Used for alerting on ports that flap between
// CONNECTING and HELD without ever reaching AUTHENTICATED.
func (c *Collector) RecordPAETransition(iface, from, to string) {
	c.PAETransitions.WithLabelValues(iface, from, to).Inc()
}

// RecordBackendTransition increments the Backend transition counter with
// the old and new state labels.
func (c *Collector) RecordBackendTransition(iface, from, to string) {
	c.BackendTransitions.WithLabelValues(iface, from, to).Inc()
}

// -------------------------------------------------------------------------
// Keys
// -------------------------------------------------------------------------

// IncKeysInstalled increments the keys-installed counter for iface.
func (c *Collector) IncKeysInstalled(iface string) {
	c.KeysInstalled.WithLabelValues(iface).Inc()
}
