package eapol_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/go8021x/go8021x/internal/eapol"
)

func TestNewSupplicantRequiresCapabilities(t *testing.T) {
	t.Parallel()

	eng := &mockEAPEngine{}
	if _, err := eapol.NewSupplicant(nil, &mockDriver{}, eng, eapol.DefaultConfig()); err == nil {
		t.Fatalf("NewSupplicant() with nil transport: want error, got nil")
	}
	if _, err := eapol.NewSupplicant(&mockTransport{}, nil, eng, eapol.DefaultConfig()); err == nil {
		t.Fatalf("NewSupplicant() with nil driver: want error, got nil")
	}
	if _, err := eapol.NewSupplicant(&mockTransport{}, &mockDriver{}, nil, eapol.DefaultConfig()); err == nil {
		t.Fatalf("NewSupplicant() with nil eap engine: want error, got nil")
	}
}

func TestAttachIsIdempotent(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newHarness(t, eapol.DefaultConfig())
	ctx := context.Background()

	s.Attach(ctx)
	first := s.GetStatus().PAEState

	s.Attach(ctx) // second call must be a no-op
	if got := s.GetStatus().PAEState; got != first {
		t.Fatalf("second Attach changed PAE state from %v to %v", first, got)
	}
}

func TestDetachAbortsEAPEngine(t *testing.T) {
	t.Parallel()

	s, _, _, eng := newHarness(t, eapol.DefaultConfig())
	ctx := context.Background()
	s.Attach(ctx)
	// Attach's Backend INITIALIZE entries already abort the engine; count
	// only the aborts Detach adds on top of those.
	before := eng.aborted

	s.Detach()
	if eng.aborted != before+1 {
		t.Fatalf("eap engine aborted %d times, want %d", eng.aborted, before+1)
	}

	s.Detach() // second call must be a no-op
	if eng.aborted != before+1 {
		t.Fatalf("second Detach called Abort again, aborted = %d", eng.aborted)
	}
}

func TestRxEAPOLMalformedFrameIncrementsCounter(t *testing.T) {
	t.Parallel()

	s, _, _, _ := newHarness(t, eapol.DefaultConfig())
	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)

	before := s.GetMIB().Stats.InvalidEapolFramesRx

	// Too short to hold even a header.
	s.RxEAPOL(ctx, [6]byte{}, []byte{1, 0})

	// Declared length exceeds the buffer.
	tooLong := make([]byte, eapol.HeaderSize)
	tooLong[1] = byte(eapol.FrameEAPPacket)
	binary.BigEndian.PutUint16(tooLong[2:4], 100)
	s.RxEAPOL(ctx, [6]byte{}, tooLong)

	after := s.GetMIB().Stats.InvalidEapolFramesRx
	if after != before+2 {
		t.Fatalf("InvalidEapolFramesRx = %d, want %d", after, before+2)
	}

	if got := s.GetStatus().PAEState; got != eapol.PAEConnecting {
		t.Fatalf("malformed frames must not cause a state transition, PAE state = %v", got)
	}
}

func TestKeyReceiveGatedByPortEnabled(t *testing.T) {
	t.Parallel()

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true

	s, _, drv, eng := newHarness(t, cfg)
	eng.setKeyMaterial(make([]byte, 64))
	ctx := context.Background()
	s.Attach(ctx)
	// portEnabled left false: the Key Receive global override forces
	// NoKeyReceive regardless of rxKey, so the key processor never runs.

	frame := make([]byte, eapol.HeaderSize+eapol.KeyBodyFixedSize)
	frame[0] = 1
	frame[1] = byte(eapol.FrameEAPOLKey)
	binary.BigEndian.PutUint16(frame[2:4], eapol.KeyBodyFixedSize)
	frame[eapol.HeaderSize] = byte(eapol.KeyTypeRC4)

	s.RxEAPOL(ctx, [6]byte{}, frame)

	if len(drv.installed) != 0 {
		t.Fatalf("driver installed a key while portEnabled=false")
	}
}

func TestConfigureUpdatesCeilingsOnly(t *testing.T) {
	t.Parallel()

	s, tr, _, _ := newHarness(t, eapol.DefaultConfig())
	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true) // enters CONNECTING, startWhen=30, 1 Start sent

	s.Configure(120, 60, 5, 7) // new startPeriod=5 must not affect the in-flight countdown

	for i := 0; i < 5; i++ {
		s.Tick(ctx)
	}

	// If Configure had reset startWhen to the new 5s ceiling, a second
	// EAPOL-Start would already have been retransmitted by now.
	if got := tr.countOf(eapol.FrameEAPOLStart); got != 1 {
		t.Fatalf("EAPOL-Start TX count = %d after 5 ticks, want 1 (old 30s ceiling still in flight)", got)
	}
}

func TestGetKeyReturnsLastInstalled(t *testing.T) {
	t.Parallel()

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true
	s, _, _, eng := newHarness(t, cfg)
	eng.setKeyMaterial(make([]byte, 64))
	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)

	buf := make([]byte, 32)
	if n := s.GetKey(buf); n != 0 {
		t.Fatalf("GetKey() before any key install = %d bytes, want 0", n)
	}

	plain := []byte{1, 2, 3, 4, 5}
	var iv [eapol.KeyIVLen]byte
	frame := buildKeyFrame(t, 1, 1, iv, false, 0, 5, plain, true, make([]byte, 32), make([]byte, 32))
	s.RxEAPOL(ctx, [6]byte{}, frame)

	if n := s.GetKey(buf); n != len(plain) || string(buf[:n]) != string(plain) {
		t.Fatalf("GetKey() after install = %x (%d bytes), want %x", buf[:n], n, plain)
	}
}
