package eapol

import (
	"context"
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // G501: HMAC-MD5 mandated by legacy dynamic-WEP keying
	"crypto/rc4"
	"errors"
	"fmt"
	"log/slog"
)

// Sentinel errors for the key processing pipeline.
var (
	// ErrKeysNotAccepted indicates Config.Accept8021xKeys is false.
	ErrKeysNotAccepted = errors.New("eapol: dynamic key acceptance disabled")

	// ErrReplayRegressed indicates the received replay counter did not
	// strictly increase.
	ErrReplayRegressed = errors.New("eapol: replay counter did not increase")

	// ErrSignatureMismatch indicates the recomputed HMAC-MD5 did not match
	// the frame's signature field.
	ErrSignatureMismatch = errors.New("eapol: key signature mismatch")

	// ErrKeyMaterialUnavailable indicates the EAP engine could not supply
	// keying material.
	ErrKeyMaterialUnavailable = errors.New("eapol: eap key material unavailable")

	// ErrKeyDataMismatch indicates key_len is neither 0 nor the announced
	// key_length.
	ErrKeyDataMismatch = errors.New("eapol: key data length mismatch")
)

// eapKeyData holds up to 64 bytes of EAP-derived keying material, split
// into an encryption key and a signing key. Both are 32 bytes in the normal
// case; the LEAP-compatibility path derives 16-byte keys instead, and
// encrKeyLen/signKeyLen record which applies.
type eapKeyData struct {
	encrKey    [32]byte
	encrKeyLen int
	signKey    [32]byte
	signKeyLen int
}

// deriveKeyData requests keying material from the EAP engine and dispatches
// on the returned length per:
//
//   - 64 bytes: used as-is, 32+32 split.
//   - 16 bytes: re-requested into the same buffer and used as both sign and
//     encryption key (LEAP compatibility).
//   - anything else: abort.
func deriveKeyData(engine EAPEngine) (eapKeyData, error) {
	var kd eapKeyData
	var buf [64]byte

	n, err := engine.KeyMaterial(buf[:], 64)
	if err != nil {
		return kd, fmt.Errorf("derive key data: %w", ErrKeyMaterialUnavailable)
	}

	switch n {
	case 64:
		copy(kd.encrKey[:], buf[:32])
		kd.encrKeyLen = 32
		copy(kd.signKey[:], buf[32:64])
		kd.signKeyLen = 32
	case 16:
		// LEAP compatibility: request again into the same region, then
		// treat the 16 bytes as both the sign and the encryption key.
		n2, err := engine.KeyMaterial(buf[:16], 16)
		if err != nil || n2 != 16 {
			return kd, fmt.Errorf("derive key data (leap re-request): %w", ErrKeyMaterialUnavailable)
		}
		copy(kd.encrKey[:16], buf[:16])
		kd.encrKeyLen = 16
		copy(kd.signKey[:16], kd.encrKey[:16])
		kd.signKeyLen = 16
	default:
		return kd, fmt.Errorf("derive key data: unexpected length %d: %w", n, ErrKeyMaterialUnavailable)
	}

	return kd, nil
}

// processKey implements the full EAPOL-Key (RC4 subtype) processing
// pipeline: replay check, HMAC-MD5 verification,
// RC4 decryption / MS-MPPE-Send-Key extraction, and driver key install.
//
// frame is the complete received frame (header + body + trailing key
// data), as captured into last_rx_key. hdr is the already-decoded EAPOL
// header for frame.
func (s *Supplicant) processKey(ctx context.Context, frame []byte, hdr Header) error {
	if !s.config.Accept8021xKeys {
		return ErrKeysNotAccepted
	}

	body := frame[HeaderSize:]
	kb, err := DecodeKeyBody(body, int(hdr.Length))
	if err != nil {
		return fmt.Errorf("process key: %w", err)
	}

	if kb.Type != KeyTypeRC4 {
		// WPA/RSN frames never reach this path (filtered in the demux),
		// but guard defensively.
		return fmt.Errorf("process key: unexpected key type %d", kb.Type)
	}

	// Replay check.
	if s.flags.ReplayCounterValid && !replayCounterGreater(kb.ReplayCounter, s.lastReplayCounter) {
		s.logger.Warn("eapol-key rejected: replay counter did not increase")
		return ErrReplayRegressed
	}

	kd, err := deriveKeyData(s.eap)
	if err != nil {
		s.logger.Debug("eapol-key processing aborted: eap key material unavailable")
		return err
	}

	// Signature check: zero the signature field in a working copy, recompute
	// HMAC-MD5 over the whole frame with the signing key, compare.
	if err := verifySignature(frame, kb, kd.signKey[:kd.signKeyLen]); err != nil {
		s.logger.Warn("eapol-key rejected: signature mismatch")
		return err
	}

	keyLen := int(hdr.Length) - KeyBodyFixedSize
	if keyLen < 0 || keyLen > MaxKeyDataLen || int(kb.KeyLength) > MaxKeyDataLen {
		return fmt.Errorf("process key: key_len=%d announced=%d: %w", keyLen, kb.KeyLength, ErrKeyDataTooLong)
	}

	var plainKey []byte
	switch {
	case keyLen == int(kb.KeyLength) && keyLen > 0:
		plainKey, err = rc4DecryptKeyData(kb, kd)
		if err != nil {
			return fmt.Errorf("process key: %w", err)
		}
	case keyLen == 0:
		// MS-MPPE-Send-Key path: use the first announced key_length bytes
		// of the EAP-derived encryption key directly.
		if int(kb.KeyLength) > len(kd.encrKey) {
			return fmt.Errorf("process key: %w", ErrKeyDataTooLong)
		}
		plainKey = append([]byte(nil), kd.encrKey[:kb.KeyLength]...)
	default:
		return fmt.Errorf("process key: %w", ErrKeyDataMismatch)
	}

	// Accepted: update replay state before attempting install. This happens
	// unconditionally once the frame is accepted, regardless of whether the
	// driver install itself succeeds.
	s.lastReplayCounter = kb.ReplayCounter
	s.flags.ReplayCounterValid = true

	if err := s.driver.SetWEPKey(ctx, kb.UnicastFlag, kb.KeyIndex, plainKey); err != nil {
		s.logger.Warn("set_wep_key failed", slog.Bool("unicast", kb.UnicastFlag), slog.String("error", err.Error()))
		return nil //nolint:nilerr // install failure is logged, not propagated as a drop
	}
	s.lastInstalledKey = plainKey

	if kb.UnicastFlag {
		s.flags.UnicastKeyReceived = true
	} else {
		s.flags.BroadcastKeyReceived = true
	}

	if s.requiredKeysSatisfied() {
		s.flags.PortValid = true
		if s.doneCB != nil {
			s.doneCB()
		}
	}

	return nil
}

// requiredKeysSatisfied reports whether the configured RequiredKeys mask is
// satisfied by the keys received so far.
func (s *Supplicant) requiredKeysSatisfied() bool {
	need := s.config.RequiredKeys
	if need&RequireUnicastKey != 0 && !s.flags.UnicastKeyReceived {
		return false
	}
	if need&RequireBroadcastKey != 0 && !s.flags.BroadcastKeyReceived {
		return false
	}
	return true
}

// verifySignature recomputes HMAC-MD5 over frame with the signature field
// zeroed and compares it against the frame's original signature. The
// comparison is performed over a copy of the frame.
func verifySignature(frame []byte, kb KeyBody, signKey []byte) error {
	working := make([]byte, len(frame))
	copy(working, frame)

	off := kb.SignatureOffset
	for i := 0; i < KeySignatureLen; i++ {
		working[off+i] = 0
	}

	mac := hmac.New(md5.New, signKey)
	mac.Write(working)
	sum := mac.Sum(nil)

	if !hmac.Equal(sum, kb.Signature[:]) {
		return ErrSignatureMismatch
	}
	return nil
}

// rc4DecryptKeyData concatenates the frame's IV with the encryption key and
// applies RC4 to the trailing key-material bytes.
func rc4DecryptKeyData(kb KeyBody, kd eapKeyData) ([]byte, error) {
	rc4Key := make([]byte, 0, KeyIVLen+32)
	rc4Key = append(rc4Key, kb.IV[:]...)
	rc4Key = append(rc4Key, kd.encrKey[:kd.encrKeyLen]...)

	cipher, err := rc4.NewCipher(rc4Key)
	if err != nil {
		return nil, fmt.Errorf("rc4 init: %w", err)
	}

	out := make([]byte, len(kb.KeyData))
	cipher.XORKeyStream(out, kb.KeyData)
	return out, nil
}
