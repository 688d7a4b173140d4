package eapol

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Option configures a Supplicant at construction time, following the
// functional-options idiom used throughout this codebase for optional
// construction parameters.
type Option func(*Supplicant)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supplicant) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCompletionCallback registers the per-terminal-outcome completion
// callback.
func WithCompletionCallback(cb CompletionCallback) Option {
	return func(s *Supplicant) { s.cb = cb }
}

// WithDoneCallback registers the full-authorization completion callback.
func WithDoneCallback(cb DoneCallback) Option {
	return func(s *Supplicant) { s.doneCB = cb }
}

// Supplicant is the single owner of the EAPOL supplicant core: the three
// FSM states, shared event flags, countdown timers, configuration, and
// statistics. All mutation is
// guarded by mu so that notifiers called from arbitrary host goroutines are
// safely serialized into the single logical event-loop thread the FSMs
// assume.
type Supplicant struct {
	mu sync.Mutex

	paeState     PAEState
	backendState BackendState
	keyRxState   KeyRxState

	flags  Flags
	timers Timers
	config Config

	suppPortStatus PortStatus
	portControl    PortControl
	sPortMode      PortControl
	startCount     int

	cbStatus CBStatus

	lastRxKey         []byte
	lastReplayCounter [ReplayCounterLen]byte
	lastInstalledKey  []byte
	eapReqData        []byte
	pendingResponse   []byte
	ctrlResponse      []byte
	ctrlAttached      bool

	stats Stats

	transport Transport
	driver    Driver
	eap       EAPEngine

	cb     CompletionCallback
	doneCB DoneCallback

	logger *slog.Logger

	attached bool
}

// NewSupplicant constructs a Supplicant bound to the given capability
// bundle. The instance is not yet attached; call Attach before feeding it
// timers, frames, or notifications.
func NewSupplicant(transport Transport, driver Driver, eap EAPEngine, config Config, opts ...Option) (*Supplicant, error) {
	if transport == nil || driver == nil || eap == nil {
		return nil, fmt.Errorf("eapol: transport, driver, and eap engine are required")
	}

	s := &Supplicant{
		config:      config,
		transport:   transport,
		driver:      driver,
		eap:         eap,
		portControl: PortControlAuto,
		sPortMode:   PortControlAuto,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Attach brings the supplicant up: steps once with initialize=true to drive
// every FSM to its reset state, then once with initialize=false so normal
// operation can begin. The caller is
// responsible for registering the 1-Hz tick (see Tick) with its own event
// loop; Attach does not spawn any goroutine.
func (s *Supplicant) Attach(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return
	}

	s.flags.Initialize = true
	s.stepLocked(ctx)

	s.flags.Initialize = false
	s.stepLocked(ctx)

	s.attached = true
}

// Detach tears the supplicant down: aborts the EAP engine and releases the
// transiently held key and request buffers. No operation may be dispatched after Detach;
// the caller owns cancelling the 1-Hz tick registration it set up for
// Attach.
func (s *Supplicant) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return
	}

	s.eap.Abort()
	s.lastRxKey = nil
	s.eapReqData = nil
	s.pendingResponse = nil
	s.ctrlResponse = nil
	s.attached = false
}

// maxStepIterations bounds the loop-until-stable implementation of step(),
// which runs all its passes back to back under mu. This is far above any
// real convergence depth and exists only to fail loud instead of hanging if
// a future change breaks the fixpoint property.
const maxStepIterations = 64

// Step is the single cooperative entry point that runs every FSM to a
// fixpoint. It is safe to call from the host's timer
// callback, frame-delivery path, or directly in tests; internally it loops
// until a full pass produces no further change, which is the
// permitted alternative to scheduling a discrete zero-delay timer event.
func (s *Supplicant) Step(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepLocked(ctx)
}

// stepLocked is Step's body, assuming mu is already held.
func (s *Supplicant) stepLocked(ctx context.Context) {
	for i := 0; i < maxStepIterations; i++ {
		s.flags.Changed = false
		prevPAE, prevBackend := s.paeState, s.backendState

		s.stepPAE(ctx)
		s.stepKeyRx(ctx)
		s.stepBackend(ctx)

		if s.paeState != prevPAE || s.backendState != prevBackend {
			level := slog.LevelDebug
			if s.ctrlAttached {
				level = slog.LevelInfo
			}
			s.logger.Log(ctx, level, "step transition", "pae", s.paeState.String(), "backend", s.backendState.String())
		}

		if changed, err := s.eap.Step(ctx, nil); err != nil {
			s.logger.Debug("eap engine idle step failed", "error", err)
		} else if changed {
			s.flags.Changed = true
		}

		// eapRestart is a one-shot pulse the RESTART state raises to force a
		// fresh EAP exchange. The EAPEngine interface never sees the flag;
		// the orchestrator clears it here after each pass so it is not held
		// open and re-read on the next iteration.
		if s.flags.EapRestart {
			s.flags.EapRestart = false
		}

		if s.cbStatus != CBInProgress {
			success := s.cbStatus == CBSuccess
			s.cbStatus = CBInProgress
			if s.cb != nil {
				s.cb(success)
			}
		}

		if !s.flags.Changed {
			return
		}
	}

	s.logger.Warn("step: did not reach fixpoint within iteration bound", "bound", maxStepIterations)
}

// Tick decrements the four countdown timers by one second and steps if any
// of them changed. The caller is
// responsible for invoking Tick once per second; this package injects no
// timer of its own.
func (s *Supplicant) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timers.tick() {
		s.stepLocked(ctx)
	}
}

// sendFrame transmits an EAPOL-Start or EAPOL-Logoff frame (no payload) and
// updates the matching TX counter.
func (s *Supplicant) sendFrame(ctx context.Context, typ FrameType) {
	if err := s.transport.SendEAPOL(ctx, typ, nil); err != nil {
		s.logger.Debug("eapol transport send failed", "frame", typ, "error", err)
	}

	switch typ {
	case FrameEAPOLStart:
		s.stats.TXStart++
	case FrameEAPOLLogoff:
		s.stats.TXLogoff++
	}
}

// RxEAPOL is the inbound frame demux. buf is the
// complete received EAPOL frame (header plus body); srcMAC identifies the
// authenticator and is accepted for parity with the host interface but is
// not otherwise consulted by this core.
func (s *Supplicant) RxEAPOL(ctx context.Context, srcMAC [6]byte, buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hdr, err := DecodeHeader(buf)
	if err != nil {
		s.stats.InvalidEapolFramesRx++
		s.logger.Debug("rx_eapol: malformed header", "error", err)
		return
	}
	s.stats.LastEapolFrameVersion = hdr.Version

	switch hdr.Type {
	case FrameEAPPacket:
		s.rxEAPPacket(ctx, buf, hdr)
	case FrameEAPOLKey:
		s.rxEAPOLKey(ctx, buf, hdr)
	default:
		s.stats.InvalidEapolFramesRx++
	}
}

// rxEAPPacket handles an inbound EAP-Packet frame.
func (s *Supplicant) rxEAPPacket(ctx context.Context, buf []byte, hdr Header) {
	if s.flags.CachedPMK {
		// PMKSA-cache miss: the authenticator sent a real EAP request after
		// an optimistic cache hint, so the cached-PMK fast path must be
		// abandoned.
		s.paeState = PAEConnecting
		s.suppPortStatus = PortUnauthorized
		s.flags.EapRestart = true
		s.flags.CachedPMK = false
	}

	body := buf[HeaderSize : HeaderSize+int(hdr.Length)]
	s.eapReqData = append([]byte(nil), body...)
	s.flags.EapolEap = true

	s.stepLocked(ctx)
}

// rxEAPOLKey handles an inbound EAPOL-Key frame. It inspects the key type
// byte without a full step, routing RC4-subtype frames to last_rx_key and
// leaving WPA/RSN frames for another consumer (out of scope for this core).
func (s *Supplicant) rxEAPOLKey(ctx context.Context, buf []byte, hdr Header) {
	body := buf[HeaderSize:]
	if int(hdr.Length) < 1 || len(body) < 1 {
		s.stats.EapLengthErrorFramesRx++
		return
	}

	switch KeyType(body[0]) {
	case KeyTypeRC4:
		if int(hdr.Length) < KeyBodyFixedSize {
			s.stats.EapLengthErrorFramesRx++
			return
		}
		frame := buf[:HeaderSize+int(hdr.Length)]
		s.lastRxKey = append([]byte(nil), frame...)
		s.flags.RxKey = true
		s.stepLocked(ctx)
	case KeyTypeWPA, KeyTypeRSN:
		// Forwarded elsewhere; this core does not implement the 4-way
		// handshake.
	default:
		s.stats.InvalidEapolFramesRx++
	}
}

// Configure updates the adjustable timing parameters. It only changes the
// ceilings reloaded on the next state entry; it never resets a timer
// already in flight.
func (s *Supplicant) Configure(heldPeriod, authPeriod, startPeriod, maxStart int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.HeldPeriod = heldPeriod
	s.config.AuthPeriod = authPeriod
	s.config.StartPeriod = startPeriod
	s.config.MaxStart = maxStart
}

// SetKeyPolicy updates the dynamic-WEP key acceptance policy.
func (s *Supplicant) SetKeyPolicy(accept8021xKeys bool, requiredKeys uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.Accept8021xKeys = accept8021xKeys
	s.config.RequiredKeys = requiredKeys
}

// NotifyPortEnabled sets portEnabled and steps.
func (s *Supplicant) NotifyPortEnabled(ctx context.Context, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.PortEnabled = enabled
	s.stepLocked(ctx)
}

// NotifyPortValid sets portValid and steps.
func (s *Supplicant) NotifyPortValid(ctx context.Context, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.PortValid = valid
	s.stepLocked(ctx)
}

// NotifyEAPSuccess sets eapSuccess and steps.
func (s *Supplicant) NotifyEAPSuccess(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.EapSuccess = true
	s.stepLocked(ctx)
}

// NotifyEAPFail sets eapFail and steps.
func (s *Supplicant) NotifyEAPFail(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.EapFail = true
	s.stepLocked(ctx)
}

// NotifyLogoff sets or clears userLogoff and steps.
func (s *Supplicant) NotifyLogoff(ctx context.Context, logoff bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.UserLogoff = logoff
	s.stepLocked(ctx)
}

// NotifyPortControl sets the administrative port control mode and steps.
func (s *Supplicant) NotifyPortControl(ctx context.Context, mode PortControl) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portControl = mode
	s.stepLocked(ctx)
}

// NotifyCached jumps the PAE state machine straight to PAEAuthenticated:
// the authenticator accepted a cached PMK, so there is no fresh EAP
// exchange or key install to wait on. It sets suppPortStatus to Authorized
// and eapSuccess/portValid as if the EAP layer and key exchange had both
// already reported success, then steps. Full PMK cache storage is out of
// scope; this only drives the PAE fast path.
func (s *Supplicant) NotifyCached(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paeEnter(ctx, PAEAuthenticated)
	s.flags.EapSuccess = true
	s.flags.PortValid = true
	s.stepLocked(ctx)
}

// NotifyPMKIDAttempt sets cached_pmk, the PMKSA-cache hint: an optimistic
// attempt to reuse a cached PMK has been sent and a real EAP request may
// still follow if the authenticator doesn't accept it. Full PMK cache
// storage is out of scope; this is a boolean hint only. A successful cache
// hit is NotifyCached, not this method.
func (s *Supplicant) NotifyPMKIDAttempt(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags.CachedPMK = true
	s.stepLocked(ctx)
}

// NotifyCtrlAttached records whether a control interface client is
// attached. While attached, step transitions are logged at Info instead of
// Debug.
func (s *Supplicant) NotifyCtrlAttached(ctx context.Context, attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrlAttached = attached
	_ = ctx
}

// NotifyCtrlResponse forwards a host control-interface-supplied EAP
// response into the backend's pending-response slot, taking precedence over
// the EAP engine's own response on the next REQUEST cycle.
func (s *Supplicant) NotifyCtrlResponse(ctx context.Context, resp []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrlResponse = append([]byte(nil), resp...)
	s.stepLocked(ctx)
}
