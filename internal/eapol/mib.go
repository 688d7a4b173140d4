package eapol

// Stats holds the dot1x Supplicant MIB counters accumulated over the
// lifetime of a Supplicant instance.
type Stats struct {
	// InvalidEapolFramesRx counts frames dropped for a malformed header or
	// declared length.
	InvalidEapolFramesRx uint64
	// EapLengthErrorFramesRx counts EAPOL-Key frames dropped for a key body
	// shorter than the fixed size.
	EapLengthErrorFramesRx uint64

	// TXStart counts transmitted EAPOL-Start frames.
	TXStart uint64
	// TXLogoff counts transmitted EAPOL-Logoff frames.
	TXLogoff uint64
	// TXResponse counts transmitted EAP-Packet response frames.
	TXResponse uint64

	// LastEapolFrameVersion is the version field of the most recently
	// received EAPOL frame.
	LastEapolFrameVersion uint8
}

// TXTotal returns the sum of all per-type transmit counters.
func (s Stats) TXTotal() uint64 {
	return s.TXStart + s.TXLogoff + s.TXResponse
}

// MIB is a point-in-time snapshot of the supplicant's state and counters,
// suitable for host-side status readouts.
type MIB struct {
	PAEState     PAEState
	BackendState BackendState
	KeyRxState   KeyRxState
	PortStatus   PortStatus
	PortControl  PortControl
	Stats        Stats
}

// GetMIB returns a snapshot of the supplicant's states and statistics
// counters.
func (s *Supplicant) GetMIB() MIB {
	s.mu.Lock()
	defer s.mu.Unlock()

	return MIB{
		PAEState:     s.paeState,
		BackendState: s.backendState,
		KeyRxState:   s.keyRxState,
		PortStatus:   s.suppPortStatus,
		PortControl:  s.portControl,
		Stats:        s.stats,
	}
}

// Status is a condensed readout of the fields most relevant to a host
// operator.
type Status struct {
	PAEState     PAEState
	BackendState BackendState
	PortStatus   PortStatus
	PortValid    bool
	SuppSuccess  bool
	SuppFail     bool
}

// GetStatus returns a condensed status readout.
func (s *Supplicant) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		PAEState:     s.paeState,
		BackendState: s.backendState,
		PortStatus:   s.suppPortStatus,
		PortValid:    s.flags.PortValid,
		SuppSuccess:  s.flags.SuppSuccess,
		SuppFail:     s.flags.SuppFail,
	}
}

// GetKey copies up to len(buf) bytes of the most recently installed
// EAP-derived encryption key material into buf, returning the number of
// bytes copied. It returns 0 if no key has
// been installed.
func (s *Supplicant) GetKey(buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copy(buf, s.lastInstalledKey)
}
