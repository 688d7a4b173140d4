package eapol_test

import (
	"context"
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // test builds the same HMAC-MD5 signature the frame under test carries
	"crypto/rc4"
	"encoding/binary"
	"testing"

	"github.com/go8021x/go8021x/internal/eapol"
)

// buildKeyFrame constructs a complete EAPOL-Key (RC4 subtype) frame signed
// with signKey, optionally RC4-encrypting keyData with encrKey+iv first
// (when encrypt is true; otherwise keyData is embedded as-is, modeling the
// MS-MPPE-Send-Key zero-length path when keyData is empty).
func buildKeyFrame(t *testing.T, version uint8, replay uint64, iv [eapol.KeyIVLen]byte, unicast bool, slot uint8, announcedLen uint16, keyData []byte, encrypt bool, encrKey, signKey []byte) []byte {
	t.Helper()

	payload := keyData
	if encrypt {
		rc4Key := append(append([]byte(nil), iv[:]...), encrKey...)
		c, err := rc4.NewCipher(rc4Key)
		if err != nil {
			t.Fatalf("rc4.NewCipher: %v", err)
		}
		payload = make([]byte, len(keyData))
		c.XORKeyStream(payload, keyData)
	}

	bodyLen := eapol.KeyBodyFixedSize + len(payload)
	frame := make([]byte, eapol.HeaderSize+bodyLen)
	frame[0] = version
	frame[1] = byte(eapol.FrameEAPOLKey)
	binary.BigEndian.PutUint16(frame[2:4], uint16(bodyLen))

	body := frame[eapol.HeaderSize:]
	body[0] = byte(eapol.KeyTypeRC4)
	binary.BigEndian.PutUint16(body[1:3], announcedLen)
	binary.BigEndian.PutUint64(body[3:11], replay)
	copy(body[11:27], iv[:])
	idx := slot & 0x7F
	if unicast {
		idx |= 0x80
	}
	body[27] = idx
	// signature (body[28:44]) left zero for the HMAC computation below
	copy(body[44:], payload)

	mac := hmac.New(md5.New, signKey)
	mac.Write(frame)
	sig := mac.Sum(nil)
	copy(body[28:44], sig)

	return frame
}

func replayCounterBytes(v uint64) [eapol.ReplayCounterLen]byte {
	var out [eapol.ReplayCounterLen]byte
	binary.BigEndian.PutUint64(out[:], v)
	return out
}

func TestProcessKeyAcceptsValidRC4Frame(t *testing.T) {
	t.Parallel()

	encrKey := make([]byte, 32)
	signKey := make([]byte, 32)
	for i := range encrKey {
		encrKey[i] = byte(i + 1)
		signKey[i] = byte(200 - i)
	}
	keyMaterial := append(append([]byte(nil), encrKey...), signKey...)

	iv := [eapol.KeyIVLen]byte{}
	for i := range iv {
		iv[i] = byte(i)
	}
	plain := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	frame := buildKeyFrame(t, 1, 5, iv, true, 3, uint16(len(plain)), plain, true, encrKey, signKey)

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true
	cfg.RequiredKeys = eapol.RequireUnicastKey

	s, _, drv, eng := newHarness(t, cfg)
	eng.setKeyMaterial(keyMaterial)

	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)
	s.RxEAPOL(ctx, [6]byte{}, frame)

	install, ok := drv.last()
	if !ok {
		t.Fatalf("driver SetWEPKey was not called")
	}
	if !install.unicast || install.slot != 3 {
		t.Fatalf("install = %+v, want unicast slot 3", install)
	}
	if string(install.key) != string(plain) {
		t.Fatalf("installed key = %x, want %x", install.key, plain)
	}

	status := s.GetStatus()
	if !status.PortValid {
		t.Fatalf("PortValid = false, want true (required_keys satisfied by the installed unicast key)")
	}
}

func TestProcessKeyReplayRegression(t *testing.T) {
	t.Parallel()

	encrKey := make([]byte, 32)
	signKey := make([]byte, 32)
	keyMaterial := append(append([]byte(nil), encrKey...), signKey...)
	var iv [eapol.KeyIVLen]byte

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true

	s, _, drv, eng := newHarness(t, cfg)
	eng.setKeyMaterial(keyMaterial)

	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)

	first := buildKeyFrame(t, 1, 5, iv, false, 0, 0, nil, false, encrKey, signKey)
	s.RxEAPOL(ctx, [6]byte{}, first)
	if n := len(drv.installed); n != 1 {
		t.Fatalf("after first frame, installs = %d, want 1", n)
	}

	second := buildKeyFrame(t, 1, 3, iv, false, 0, 0, nil, false, encrKey, signKey)
	s.RxEAPOL(ctx, [6]byte{}, second)
	if n := len(drv.installed); n != 1 {
		t.Fatalf("after replay-regressed frame, installs = %d, want still 1", n)
	}
}

func TestProcessKeyBadSignature(t *testing.T) {
	t.Parallel()

	encrKey := make([]byte, 32)
	signKey := make([]byte, 32)
	keyMaterial := append(append([]byte(nil), encrKey...), signKey...)
	var iv [eapol.KeyIVLen]byte

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true

	s, _, drv, eng := newHarness(t, cfg)
	eng.setKeyMaterial(keyMaterial)

	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)

	frame := buildKeyFrame(t, 1, 5, iv, false, 0, 0, nil, false, encrKey, signKey)
	frame[eapol.HeaderSize+28] ^= 0x01 // flip one bit of the signature field

	s.RxEAPOL(ctx, [6]byte{}, frame)
	if n := len(drv.installed); n != 0 {
		t.Fatalf("installs = %d, want 0 for bad signature", n)
	}
}

func TestProcessKeyIgnoresWPAAndRSN(t *testing.T) {
	t.Parallel()

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true
	s, _, drv, _ := newHarness(t, cfg)

	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)

	for _, kt := range []eapol.KeyType{eapol.KeyTypeWPA, eapol.KeyTypeRSN} {
		frame := make([]byte, eapol.HeaderSize+eapol.KeyBodyFixedSize)
		frame[0] = 1
		frame[1] = byte(eapol.FrameEAPOLKey)
		binary.BigEndian.PutUint16(frame[2:4], eapol.KeyBodyFixedSize)
		frame[eapol.HeaderSize] = byte(kt)

		s.RxEAPOL(ctx, [6]byte{}, frame)
	}

	if n := len(drv.installed); n != 0 {
		t.Fatalf("installs = %d, want 0 for WPA/RSN key types", n)
	}
}

func TestProcessKeyMSMPPESendKeyPath(t *testing.T) {
	t.Parallel()

	encrKey := make([]byte, 32)
	for i := range encrKey {
		encrKey[i] = byte(i + 10)
	}
	signKey := make([]byte, 32)
	keyMaterial := append(append([]byte(nil), encrKey...), signKey...)
	var iv [eapol.KeyIVLen]byte

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true
	cfg.RequiredKeys = eapol.RequireBroadcastKey

	s, _, drv, eng := newHarness(t, cfg)
	eng.setKeyMaterial(keyMaterial)

	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)

	// key_len = 0 (no trailing key data), announced key_length = 13:
	// MS-MPPE-Send-Key path uses the first 13 bytes of the derived
	// encryption key directly.
	frame := buildKeyFrame(t, 1, 1, iv, false, 0, 13, nil, false, encrKey, signKey)
	s.RxEAPOL(ctx, [6]byte{}, frame)

	install, ok := drv.last()
	if !ok {
		t.Fatalf("driver SetWEPKey was not called")
	}
	if len(install.key) != 13 {
		t.Fatalf("installed key length = %d, want 13", len(install.key))
	}
	if string(install.key) != string(encrKey[:13]) {
		t.Fatalf("installed key = %x, want %x", install.key, encrKey[:13])
	}
}

func TestProcessKeyLEAPSixteenByteMaterial(t *testing.T) {
	t.Parallel()

	material16 := make([]byte, 16)
	for i := range material16 {
		material16[i] = byte(i + 1)
	}
	var iv [eapol.KeyIVLen]byte

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true

	s, _, drv, eng := newHarness(t, cfg)
	eng.setKeyMaterial(material16)

	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)

	// sign and encryption key are both material16 in the LEAP path.
	frame := buildKeyFrame(t, 1, 1, iv, false, 0, 0, nil, false, material16, material16)
	s.RxEAPOL(ctx, [6]byte{}, frame)

	if n := len(drv.installed); n != 1 {
		t.Fatalf("installs = %d, want 1 (LEAP 16-byte signature should verify)", n)
	}
}

func TestProcessKeyLEAPEncryptedKeyData(t *testing.T) {
	t.Parallel()

	material16 := make([]byte, 16)
	for i := range material16 {
		material16[i] = byte(i + 1)
	}
	var iv [eapol.KeyIVLen]byte
	for i := range iv {
		iv[i] = byte(0x80 + i)
	}
	plain := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true
	cfg.RequiredKeys = eapol.RequireBroadcastKey

	s, _, drv, eng := newHarness(t, cfg)
	eng.setKeyMaterial(material16)

	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)

	// Non-zero key_len on the LEAP (16-byte) path: the RC4 key must be
	// IV(16) + encrKey(16) = 32 bytes, not IV(16) + encrKey(32) = 48.
	// encrKey and signKey are both material16 in the LEAP path.
	frame := buildKeyFrame(t, 1, 1, iv, false, 0, uint16(len(plain)), plain, true, material16, material16)
	s.RxEAPOL(ctx, [6]byte{}, frame)

	install, ok := drv.last()
	if !ok {
		t.Fatalf("driver SetWEPKey was not called")
	}
	if string(install.key) != string(plain) {
		t.Fatalf("installed key = %x, want %x (wrong RC4 keystream means a bad LEAP encrKeyLen)", install.key, plain)
	}
}

func TestReplayCounterGreaterInvariant(t *testing.T) {
	t.Parallel()

	a := replayCounterBytes(5)
	b := replayCounterBytes(3)

	cfg := eapol.DefaultConfig()
	cfg.Accept8021xKeys = true
	s, _, drv, eng := newHarness(t, cfg)
	eng.setKeyMaterial(make([]byte, 64))

	ctx := context.Background()
	s.Attach(ctx)
	s.NotifyPortEnabled(ctx, true)

	var iv [eapol.KeyIVLen]byte
	encrKey := make([]byte, 32)
	signKey := make([]byte, 32)

	f1 := buildKeyFrame(t, 1, binary.BigEndian.Uint64(a[:]), iv, false, 0, 0, nil, false, encrKey, signKey)
	s.RxEAPOL(ctx, [6]byte{}, f1)
	if len(drv.installed) != 1 {
		t.Fatalf("first (higher) replay counter should install")
	}

	f2 := buildKeyFrame(t, 1, binary.BigEndian.Uint64(b[:]), iv, false, 0, 0, nil, false, encrKey, signKey)
	s.RxEAPOL(ctx, [6]byte{}, f2)
	if len(drv.installed) != 1 {
		t.Fatalf("second (lower) replay counter must not install, got %d total installs", len(drv.installed))
	}
}
