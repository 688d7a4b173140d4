//go:build linux

package netio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/go8021x/go8021x/internal/eapol"
)

// -------------------------------------------------------------------------
// PAESocket — IEEE 802.1X Section 11.2 link-layer transport
// -------------------------------------------------------------------------

// PAESocket implements eapol.Transport over an AF_PACKET raw socket bound
// to a single network interface and filtered to EtherTypePAE. It also
// provides the receive side (ReadFrame) that the supplicant daemon pumps
// into Supplicant.RxEAPOL.
//
// Unlike the UDP sockets BFD binds per session, EAPOL has exactly one
// socket per physical port: the PAE group address is a link-local
// multicast, not a routed endpoint, so there is nothing to dial.
type PAESocket struct {
	fd        int
	ifName    string
	ifIndex   int
	localAddr [6]byte
	closed    bool
	mu        sync.Mutex
}

// NewPAESocket opens an AF_PACKET/SOCK_RAW socket on ifName, bound to
// EtherTypePAE so the kernel only queues EAPOL frames to this socket.
func NewPAESocket(ifName string) (*PAESocket, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(EtherTypePAE)))
	if err != nil {
		return nil, fmt.Errorf("open PAE raw socket: %w", err)
	}

	iface, err := unix.NameToIndex(ifName)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("resolve interface %s: %w", ifName, err)
	}
	ifIndex := int(iface)

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(EtherTypePAE),
		Ifindex:  ifIndex,
	}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind PAE socket to %s: %w", ifName, err)
	}

	hw, err := hardwareAddr(fd, ifName)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("read hardware address of %s: %w", ifName, err)
	}

	if err := joinPAEGroup(fd, ifIndex); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("join PAE group address on %s: %w", ifName, err)
	}

	return &PAESocket{
		fd:        fd,
		ifName:    ifName,
		ifIndex:   ifIndex,
		localAddr: hw,
	}, nil
}

// SendEAPOL implements eapol.Transport. It prefixes payload (the EAPOL body,
// empty for Start and Logoff) with a 4-byte EAPOL header of type typ, wraps
// the result in an Ethernet II header addressed to PAEGroupAddr and writes
// it to the raw socket.
func (s *PAESocket) SendEAPOL(_ context.Context, typ eapol.FrameType, payload []byte) error {
	// eapolVersion is the protocol version stamped on outgoing frames
	// (802.1X-2004).
	const eapolVersion = 2

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("send on closed PAE socket %s", s.ifName)
	}

	frame := make([]byte, 14+eapol.HeaderSize+len(payload))
	copy(frame[0:6], PAEGroupAddr[:])
	copy(frame[6:12], s.localAddr[:])
	binary.BigEndian.PutUint16(frame[12:14], EtherTypePAE)
	hdr := eapol.Header{Version: eapolVersion, Type: typ, Length: uint16(len(payload))} //nolint:gosec // G115: EAPOL bodies are bounded well under 65535 bytes.
	if err := eapol.EncodeHeader(hdr, frame[14:]); err != nil {
		return fmt.Errorf("send on %s: %w", s.ifName, err)
	}
	copy(frame[14+eapol.HeaderSize:], payload)

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(EtherTypePAE),
		Ifindex:  s.ifIndex,
		Halen:    6,
	}
	copy(addr.Addr[:6], PAEGroupAddr[:])

	if err := unix.Sendto(s.fd, frame, 0, addr); err != nil {
		return fmt.Errorf("sendto on %s: %w", s.ifName, err)
	}
	return nil
}

// ReadFrame blocks until one Ethernet frame arrives on the socket and
// returns the source MAC address and the EAPOL payload (the Ethernet
// header stripped). Callers feed the result directly to
// Supplicant.RxEAPOL.
func (s *PAESocket) ReadFrame(buf []byte) (src [6]byte, payload []byte, err error) {
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return src, nil, fmt.Errorf("recvfrom on %s: %w", s.ifName, err)
	}

	if ll, ok := from.(*unix.SockaddrLinklayer); ok {
		copy(src[:], ll.Addr[:6])
	}

	if n < 14 {
		return src, nil, fmt.Errorf("recvfrom on %s: frame of %d bytes is shorter than an Ethernet header", s.ifName, n)
	}

	return src, buf[14:n], nil
}

// LocalAddr returns the hardware address the socket is bound to.
func (s *PAESocket) LocalAddr() [6]byte {
	return s.localAddr
}

// Close releases the underlying socket. Safe to call more than once.
func (s *PAESocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := unix.Close(s.fd); err != nil {
		return fmt.Errorf("close PAE socket %s: %w", s.ifName, err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Socket setup helpers
// -------------------------------------------------------------------------

// htons converts a 16-bit value from host to network byte order, matching
// the protocol field AF_PACKET sockets expect (the kernel compares it
// against the big-endian EtherType on the wire).
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

// hardwareAddr reads the interface's MAC address via SIOCGIFHWADDR so
// SendEAPOL can stamp outgoing frames with a real source address.
func hardwareAddr(fd int, ifName string) ([6]byte, error) {
	var hw [6]byte

	ifr, err := unix.NewIfreq(ifName)
	if err != nil {
		return hw, fmt.Errorf("build ifreq for %s: %w", ifName, err)
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFHWADDR, ifr); err != nil {
		return hw, fmt.Errorf("SIOCGIFHWADDR %s: %w", ifName, err)
	}

	raw := ifr.RawHwAddr()
	copy(hw[:], raw[:6])
	return hw, nil
}

// joinPAEGroup adds PAEGroupAddr as an additional multicast address via
// PACKET_ADD_MEMBERSHIP so the kernel delivers frames sent to the nearest-
// bridge PAE address even though it is not the interface's own MAC.
func joinPAEGroup(fd, ifIndex int) error {
	mreq := unix.PacketMreq{
		Ifindex: int32(ifIndex), //nolint:gosec // G115: interface indexes are small positive ints
		Type:    unix.PACKET_MR_MULTICAST,
		Alen:    6,
	}
	copy(mreq.Address[:6], PAEGroupAddr[:])

	if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq); err != nil {
		return fmt.Errorf("PACKET_ADD_MEMBERSHIP: %w", err)
	}
	return nil
}
