package eapol

import "context"

// stepBackend runs one iteration of the Supplicant Backend state machine
//: a single global override, then the state-local
// transition table for the current state.
func (s *Supplicant) stepBackend(ctx context.Context) {
	f := &s.flags

	if f.Initialize || f.SuppAbort {
		s.backendEnter(ctx, BackendInitialize)
		return
	}

	switch s.backendState {
	case BackendRequest:
		switch {
		case f.EapResp:
			s.backendEnter(ctx, BackendResponse)
		case f.EapNoResp:
			s.backendEnter(ctx, BackendReceive)
		}

	case BackendResponse:
		s.backendEnter(ctx, BackendReceive)

	case BackendSuccess:
		s.backendEnter(ctx, BackendIdle)

	case BackendFail:
		s.backendEnter(ctx, BackendIdle)

	case BackendTimeout:
		s.backendEnter(ctx, BackendIdle)

	case BackendIdle:
		switch {
		case f.EapFail && f.SuppStart:
			s.backendEnter(ctx, BackendFail)
		case f.EapolEap && f.SuppStart:
			s.backendEnter(ctx, BackendRequest)
		case f.EapSuccess && f.SuppStart:
			s.backendEnter(ctx, BackendSuccess)
		}

	case BackendInitialize:
		s.backendEnter(ctx, BackendIdle)

	case BackendReceive:
		switch {
		case f.EapolEap:
			s.backendEnter(ctx, BackendRequest)
		case f.EapFail:
			s.backendEnter(ctx, BackendFail)
		case s.timers.AuthWhile == 0:
			s.backendEnter(ctx, BackendTimeout)
		case f.EapSuccess:
			s.backendEnter(ctx, BackendSuccess)
		}

	case BackendUnknown:
		s.backendEnter(ctx, BackendInitialize)
	}
}

// backendEnter transitions the Backend FSM to next, running its entry side
// effects.
func (s *Supplicant) backendEnter(ctx context.Context, next BackendState) {
	if next != s.backendState {
		s.flags.Changed = true
	}
	s.backendState = next

	f := &s.flags
	switch next {
	case BackendRequest:
		s.timers.AuthWhile = 0
		f.EapReq = true
		s.requestEAPResponse(ctx)

	case BackendResponse:
		if s.pendingResponse != nil {
			s.sendEAPResponse(ctx, s.pendingResponse)
			s.pendingResponse = nil
		}
		f.EapResp = false
		s.stats.TXResponse++

	case BackendSuccess:
		f.KeyRun = true
		f.SuppSuccess = true
		if s.eap.KeyAvailable() {
			f.ReplayCounterValid = false
		}

	case BackendFail:
		f.SuppFail = true

	case BackendTimeout:
		f.SuppTimeout = true

	case BackendIdle:
		f.SuppStart = false
		f.InitialReq = true

	case BackendInitialize:
		s.lastRxKey = nil
		s.eapReqData = nil
		s.eap.Abort()
		f.SuppAbort = false
		f.EapSuccess = false
		f.EapFail = false

	case BackendReceive:
		s.timers.AuthWhile = s.config.AuthPeriod
		f.EapolEap = false
		f.EapNoResp = false
		f.InitialReq = false
	}
}

// requestEAPResponse asks the EAP engine to step in reaction to the pending
// request buffer, then classifies the outcome into eapResp/eapNoResp.
//
// If a host-supplied control response is pending (NotifyCtrlResponse), it
// takes precedence over the EAP engine's own response for this cycle.
func (s *Supplicant) requestEAPResponse(ctx context.Context) {
	if s.ctrlResponse != nil {
		s.pendingResponse = s.ctrlResponse
		s.ctrlResponse = nil
		s.flags.EapResp = true
		return
	}

	changed, err := s.eap.Step(ctx, s.eapReqData)
	if err != nil {
		s.logger.Debug("eap engine step failed", "error", err)
	}
	if changed {
		s.flags.Changed = true
	}

	if resp, ok := s.eap.Response(); ok {
		s.pendingResponse = resp
		s.flags.EapResp = true
	} else {
		s.flags.EapNoResp = true
	}
}

// sendEAPResponse wraps an EAP response blob in an EAPOL EAP-Packet frame
// and transmits it.
func (s *Supplicant) sendEAPResponse(ctx context.Context, resp []byte) {
	if err := s.transport.SendEAPOL(ctx, FrameEAPPacket, resp); err != nil {
		s.logger.Debug("eapol transport send failed", "frame", FrameEAPPacket, "error", err)
	}
}
