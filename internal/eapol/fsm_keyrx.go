package eapol

import "context"

// stepKeyRx runs one iteration of the Key Receive state machine: global override, then the single rxKey transition available
// from either state.
func (s *Supplicant) stepKeyRx(ctx context.Context) {
	f := &s.flags

	if f.Initialize || !f.PortEnabled {
		s.keyRxEnter(ctx, KeyRxNoKeyReceive)
		return
	}

	if f.RxKey {
		s.keyRxEnter(ctx, KeyRxKeyReceive)
	}
}

// keyRxEnter transitions the Key Receive FSM to next. Entry to KeyReceive
// invokes the key processor over last_rx_key and clears rxKey.
func (s *Supplicant) keyRxEnter(ctx context.Context, next KeyRxState) {
	if next != s.keyRxState {
		s.flags.Changed = true
	}
	s.keyRxState = next

	if next == KeyRxKeyReceive {
		hdr, err := DecodeHeader(s.lastRxKey)
		if err != nil {
			s.logger.Debug("key receive: re-decode of last_rx_key failed", "error", err)
		} else if err := s.processKey(ctx, s.lastRxKey, hdr); err != nil {
			s.logger.Debug("key processing rejected frame", "error", err)
		}
		s.flags.RxKey = false
	}
}
