package eapol

import "context"

// Transport abstracts sending one EAPOL frame over the link layer.
// Implementations are borrowed capabilities supplied at construction and
// must outlive the Supplicant.
type Transport interface {
	SendEAPOL(ctx context.Context, typ FrameType, payload []byte) error
}

// Driver abstracts installing a dynamic WEP key into the network adapter.
type Driver interface {
	// SetWEPKey installs key as a unicast (isUnicast=true) or broadcast key
	// in the given slot. Returns a non-nil error on failure; the
	// corresponding received flag is not set on failure, so the port will
	// not advance to Authorized through this path.
	SetWEPKey(ctx context.Context, isUnicast bool, slot uint8, key []byte) error
}

// EAPEngine is the opaque, step-able EAP method engine this package drives
// but does not implement. The engine
// produces response byte blobs and success/fail/key-available signals.
type EAPEngine interface {
	// Step advances the EAP engine in reaction to a newly received EAP
	// request (reqData) and reports whether its internal state changed.
	Step(ctx context.Context, reqData []byte) (changed bool, err error)

	// IsSuccess reports whether the engine has reached a successful outcome.
	IsSuccess() bool
	// IsFail reports whether the engine has reached a failure outcome.
	IsFail() bool

	// Response returns the pending EAP response produced by Step, or
	// (nil, false) if the engine has nothing to send (eapNoResp).
	Response() (resp []byte, ok bool)

	// KeyAvailable reports whether fresh keying material is available from
	// the most recent successful exchange.
	KeyAvailable() bool

	// KeyMaterial requests up to maxLen bytes of keying material into buf,
	// returning the number of bytes written. The dispatch on the returned length (64, 16, or other)
	// is performed by the caller.
	KeyMaterial(buf []byte, maxLen int) (n int, err error)

	// Abort cancels any in-flight exchange and frees engine-owned buffers.
	Abort()
}

// CompletionCallback is invoked once per terminal PAE outcome with a
// boolean success flag.
type CompletionCallback func(success bool)

// DoneCallback is invoked when the port fully authorizes, either because
// all required dynamic-WEP keys were installed or because EAP success was
// accepted without keys.
type DoneCallback func()
