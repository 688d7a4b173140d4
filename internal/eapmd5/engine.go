// Package eapmd5 implements a minimal EAP engine supporting EAP-Identity
// and EAP-MD5-Challenge (RFC 3748 Sections 5.1, 5.4), the two base methods
// every EAP peer is expected to understand. It exists so the supplicant
// daemon has a real eapol.EAPEngine to construct instead of only a test
// double: EAP-TLS, PEAP, and MSCHAPv2 credential validation remain out of
// scope.
package eapmd5

import (
	"context"
	"crypto/md5" //nolint:gosec // G501: MD5 required by RFC 3748 Section 5.4, not a security choice of this package.
	"errors"
	"fmt"
)

// EAP codes (RFC 3748 Section 4).
const (
	codeRequest  = 1
	codeResponse = 2
	codeSuccess  = 3
	codeFailure  = 4
)

// EAP types (RFC 3748 Section 5).
const (
	typeIdentity     = 1
	typeNotification = 2
	typeNak          = 3
	typeMD5Challenge = 4
)

const headerSize = 4 // Code(1) + Identifier(1) + Length(2).

// ErrNoKeyMaterial indicates the method in use (MD5-Challenge) has no
// master key to export (RFC 3748 Section 5.4: "the MD5-Challenge Type...
// does not include support for... key derivation").
var ErrNoKeyMaterial = errors.New("eapmd5: method does not derive keying material")

// ErrShortPacket indicates a received EAP packet is too short to parse.
var ErrShortPacket = errors.New("eapmd5: packet shorter than EAP header")

// Engine implements eapol.EAPEngine using a fixed identity and password,
// answering Identity and MD5-Challenge requests and acknowledging
// Notification requests. Any other requested method is declined with a Nak
// proposing MD5-Challenge.
type Engine struct {
	identity string
	password []byte

	success bool
	fail    bool
	resp    []byte
	hasResp bool
}

// New creates an Engine that will answer EAP-Identity requests with
// identity and EAP-MD5-Challenge requests using password.
func New(identity string, password []byte) *Engine {
	return &Engine{identity: identity, password: password}
}

// Step parses one inbound EAP packet (the full Code/Identifier/Length/Type
// body handed up from the EAPOL demux) and updates the engine's outcome.
func (e *Engine) Step(_ context.Context, reqData []byte) (bool, error) {
	if len(reqData) < headerSize {
		return false, fmt.Errorf("step: %w", ErrShortPacket)
	}

	code := reqData[0]
	identifier := reqData[1]

	switch code {
	case codeSuccess:
		e.success = true
		e.fail = false
		e.hasResp = false
		return true, nil
	case codeFailure:
		e.fail = true
		e.success = false
		e.hasResp = false
		return true, nil
	case codeRequest:
		return e.stepRequest(identifier, reqData)
	default:
		// Responses and unknown codes are not requests this engine acts on.
		return false, nil
	}
}

func (e *Engine) stepRequest(identifier byte, reqData []byte) (bool, error) {
	if len(reqData) < headerSize+1 {
		return false, fmt.Errorf("step request: %w", ErrShortPacket)
	}
	typ := reqData[headerSize]
	typeData := reqData[headerSize+1:]

	switch typ {
	case typeIdentity:
		e.setResponse(identifier, typeIdentity, []byte(e.identity))
	case typeMD5Challenge:
		if err := e.respondMD5Challenge(identifier, typeData); err != nil {
			return false, err
		}
	case typeNotification:
		e.setResponse(identifier, typeNotification, nil)
	default:
		// RFC 3748 Section 5.3.1: Nak response, data is the list of one
		// desired alternative method.
		e.setResponse(identifier, typeNak, []byte{typeMD5Challenge})
	}

	return true, nil
}

// respondMD5Challenge computes the MD5-Challenge response value
// (RFC 3748 Section 5.4 / RFC 1994 Section 4.1):
// Value = MD5(Identifier || Password || Challenge).
func (e *Engine) respondMD5Challenge(identifier byte, typeData []byte) error {
	if len(typeData) < 1 {
		return fmt.Errorf("md5-challenge: %w", ErrShortPacket)
	}
	valueSize := int(typeData[0])
	if len(typeData) < 1+valueSize {
		return fmt.Errorf("md5-challenge: %w", ErrShortPacket)
	}
	challenge := typeData[1 : 1+valueSize]

	h := md5.New() //nolint:gosec // G401: MD5 required by RFC 1994 Section 4.1.
	h.Write([]byte{identifier})
	h.Write(e.password)
	h.Write(challenge)
	sum := h.Sum(nil)

	data := make([]byte, 0, 1+len(sum))
	data = append(data, byte(len(sum)))
	data = append(data, sum...)
	e.setResponse(identifier, typeMD5Challenge, data)

	return nil
}

// setResponse builds a full EAP-Response packet and stores it for Response.
func (e *Engine) setResponse(identifier byte, typ byte, typeData []byte) {
	length := headerSize + 1 + len(typeData)
	pkt := make([]byte, length)
	pkt[0] = codeResponse
	pkt[1] = identifier
	pkt[2] = byte(length >> 8) //nolint:gosec // G115: EAP packets are bounded well under 65535 bytes.
	pkt[3] = byte(length)
	pkt[4] = typ
	copy(pkt[5:], typeData)

	e.resp = pkt
	e.hasResp = true
}

// IsSuccess reports whether an EAP Success has been observed since the last
// Abort or EAP Failure.
func (e *Engine) IsSuccess() bool { return e.success }

// IsFail reports whether an EAP Failure has been observed since the last
// Abort or EAP Success.
func (e *Engine) IsFail() bool { return e.fail }

// Response returns the pending EAP response built by Step, consuming it.
func (e *Engine) Response() ([]byte, bool) {
	if !e.hasResp {
		return nil, false
	}
	resp := e.resp
	e.hasResp = false
	return resp, true
}

// KeyAvailable always reports false: MD5-Challenge has no key derivation.
func (e *Engine) KeyAvailable() bool { return false }

// KeyMaterial always fails: MD5-Challenge has no keying material to export.
func (e *Engine) KeyMaterial(_ []byte, _ int) (int, error) {
	return 0, ErrNoKeyMaterial
}

// Abort clears any pending response and terminal outcome, as if the engine
// had just been constructed.
func (e *Engine) Abort() {
	e.success = false
	e.fail = false
	e.hasResp = false
	e.resp = nil
}
