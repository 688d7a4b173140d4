package netio

import "errors"

// -------------------------------------------------------------------------
// IEEE 802.1X link-layer constants (802.1X-2010 Section 11.2)
// -------------------------------------------------------------------------

// EtherTypePAE is the EtherType carried by all EAPOL frames (0x888E).
const EtherTypePAE = 0x888E

// PAEGroupAddr is the Port Access Entity nearest-bridge group MAC address
// that EAPOL frames are sent to. A full-duplex point-to-point link sends
// EAPOL frames to this address rather than the authenticator's unicast
// address so the frame is picked up regardless of prior MAC learning.
var PAEGroupAddr = [6]byte{0x01, 0x80, 0xC2, 0x00, 0x00, 0x03}

// MaxFrameSize bounds the buffer used to read one Ethernet frame off the
// PAE raw socket. 1518 covers the largest untagged Ethernet II frame
// (14-byte header + 1500-byte payload + 4-byte FCS); the FCS is stripped
// by the kernel before delivery to an AF_PACKET socket so this is already
// generous.
const MaxFrameSize = 1518

// ErrUnexpectedConnType indicates a socket helper received a connection of
// a type it did not expect.
var ErrUnexpectedConnType = errors.New("unexpected connection type")
