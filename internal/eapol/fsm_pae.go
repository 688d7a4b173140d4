package eapol

import "context"

// stepPAE runs one iteration of the Supplicant PAE state machine: global overrides first, in priority order, then the
// state-local transition table for the current state.
func (s *Supplicant) stepPAE(ctx context.Context) {
	if s.paeEnterGlobal(ctx) {
		return
	}
	s.paeEnterLocal(ctx)
}

// paeEnterGlobal evaluates the four global override clauses, highest
// priority first. It enters the target state unconditionally on match (even
// if already there) but only marks changed on an actual state change, and
// reports whether a global override fired so the caller skips the
// state-local table this iteration.
func (s *Supplicant) paeEnterGlobal(ctx context.Context) bool {
	f := &s.flags

	switch {
	case f.UserLogoff && !f.LogoffSent && !(f.Initialize || !f.PortEnabled):
		s.paeEnter(ctx, PAELogoff)
		return true

	case (s.portControl == PortControlAuto && s.sPortMode != s.portControl) || f.Initialize || !f.PortEnabled:
		s.paeEnter(ctx, PAEDisconnected)
		return true

	case s.portControl == PortControlForceAuthorized && s.sPortMode != s.portControl && !(f.Initialize || !f.PortEnabled):
		s.paeEnter(ctx, PAEForceAuth)
		return true

	case s.portControl == PortControlForceUnauthorized && s.sPortMode != s.portControl && !(f.Initialize || !f.PortEnabled):
		s.paeEnter(ctx, PAEForceUnauth)
		return true
	}

	return false
}

// paeEnterLocal evaluates the state-local transition table for the current
// PAE state, first match wins.
func (s *Supplicant) paeEnterLocal(ctx context.Context) {
	f := &s.flags

	switch s.paeState {
	case PAELogoff:
		if !f.UserLogoff {
			s.paeEnter(ctx, PAEDisconnected)
		}

	case PAEDisconnected:
		s.paeEnter(ctx, PAEConnecting)

	case PAEConnecting:
		switch {
		case s.timers.StartWhen == 0 && s.startCount < s.config.MaxStart:
			s.paeEnter(ctx, PAEConnecting)
		case s.timers.StartWhen == 0 && s.startCount >= s.config.MaxStart && f.PortValid:
			s.paeEnter(ctx, PAEAuthenticated)
		case f.EapSuccess || f.EapFail:
			s.paeEnter(ctx, PAEAuthenticating)
		case f.EapolEap:
			s.paeEnter(ctx, PAERestart)
		case s.timers.StartWhen == 0 && s.startCount >= s.config.MaxStart && !f.PortValid:
			s.paeEnter(ctx, PAEHeld)
		}

	case PAEAuthenticating:
		// Plaintext acceptance: synthesizes portValid before the ordinary
		// transitions run, and must not re-fire once portValid is already set.
		if f.EapSuccess && !f.PortValid && s.config.Accept8021xKeys && s.config.RequiredKeys == 0 {
			f.PortValid = true
			if s.doneCB != nil {
				s.doneCB()
			}
		}

		switch {
		case f.EapSuccess && f.PortValid:
			s.paeEnter(ctx, PAEAuthenticated)
		case f.EapFail || (f.KeyDone && !f.PortValid):
			s.paeEnter(ctx, PAEHeld)
		case f.SuppTimeout:
			s.paeEnter(ctx, PAEConnecting)
		}

	case PAEHeld:
		switch {
		case s.timers.HeldWhile == 0:
			s.paeEnter(ctx, PAEConnecting)
		case f.EapolEap:
			s.paeEnter(ctx, PAERestart)
		}

	case PAEAuthenticated:
		switch {
		case f.EapolEap && f.PortValid:
			s.paeEnter(ctx, PAERestart)
		case !f.PortValid:
			s.paeEnter(ctx, PAEDisconnected)
		}

	case PAERestart:
		if !f.EapRestart {
			s.paeEnter(ctx, PAEAuthenticating)
		}

	case PAEForceAuth, PAEForceUnauth:
		// No local transitions; only the global overrides move these states.

	case PAEUnknown:
		s.paeEnter(ctx, PAEDisconnected)
	}
}

// paeEnter transitions the PAE FSM to next, running its entry side effects.
// changed is set only if the state actually differs from the current one.
func (s *Supplicant) paeEnter(ctx context.Context, next PAEState) {
	if next != s.paeState {
		s.flags.Changed = true
	}
	s.paeState = next

	f := &s.flags
	switch next {
	case PAELogoff:
		s.sendFrame(ctx, FrameEAPOLLogoff)
		f.LogoffSent = true
		s.suppPortStatus = PortUnauthorized

	case PAEDisconnected:
		s.sPortMode = PortControlAuto
		s.startCount = 0
		f.LogoffSent = false
		s.suppPortStatus = PortUnauthorized
		f.SuppAbort = true
		f.UnicastKeyReceived = false
		f.BroadcastKeyReceived = false

	case PAEConnecting:
		s.timers.StartWhen = s.config.StartPeriod
		s.startCount++
		f.EapolEap = false
		s.sendFrame(ctx, FrameEAPOLStart)

	case PAEAuthenticating:
		s.startCount = 0
		f.SuppSuccess = false
		f.SuppFail = false
		f.SuppTimeout = false
		f.KeyRun = false
		f.KeyDone = false
		f.SuppStart = true

	case PAEHeld:
		s.timers.HeldWhile = s.config.HeldPeriod
		s.suppPortStatus = PortUnauthorized
		s.cbStatus = CBFailure

	case PAEAuthenticated:
		s.suppPortStatus = PortAuthorized
		s.cbStatus = CBSuccess

	case PAERestart:
		f.EapRestart = true

	case PAEForceAuth:
		s.suppPortStatus = PortAuthorized
		s.sPortMode = PortControlForceAuthorized

	case PAEForceUnauth:
		s.suppPortStatus = PortUnauthorized
		s.sPortMode = PortControlForceUnauthorized
		s.sendFrame(ctx, FrameEAPOLLogoff)
	}
}
