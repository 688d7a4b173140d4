//go:build linux

package netio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// NetlinkInterfaceMonitor — NETLINK_ROUTE implementation
// -------------------------------------------------------------------------

// NetlinkInterfaceMonitor watches RTM_NEWLINK/RTM_DELLINK messages on a
// NETLINK_ROUTE socket and reports up/down transitions for a single
// interface. Unlike StubInterfaceMonitor, it actually drives the
// supplicant's portEnabled notifier from real link-state changes.
type NetlinkInterfaceMonitor struct {
	fd      int
	ifName  string
	ifIndex int
	events  chan InterfaceEvent
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewNetlinkInterfaceMonitor opens a NETLINK_ROUTE socket subscribed to the
// RTNLGRP_LINK multicast group and resolves ifName to a kernel interface
// index so events for other interfaces can be filtered out. Passing an
// empty ifName disables filtering and reports events for every interface.
func NewNetlinkInterfaceMonitor(ifName string, logger *slog.Logger) (*NetlinkInterfaceMonitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("open netlink route socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: unix.RTMGRP_LINK}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind netlink route socket: %w", err)
	}

	ifIndex := 0
	if ifName != "" {
		idx, err := unix.NameToIndex(ifName)
		if err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("resolve interface %s: %w", ifName, err)
		}
		ifIndex = int(idx)
	}

	return &NetlinkInterfaceMonitor{
		fd:      fd,
		ifName:  ifName,
		ifIndex: ifIndex,
		events:  make(chan InterfaceEvent, 16),
		logger:  logger.With(slog.String("component", "ifmon.netlink"), slog.String("interface", ifName)),
	}, nil
}

// Run blocks reading link-state messages until ctx is cancelled or the
// socket is closed. Events for interfaces other than the one passed to
// NewNetlinkInterfaceMonitor (if any) are dropped.
func (m *NetlinkInterfaceMonitor) Run(ctx context.Context) error {
	defer close(m.events)

	go func() {
		<-ctx.Done()
		_ = m.Close()
	}()

	m.logger.Info("netlink interface monitor started")

	buf := make([]byte, unix.Getpagesize())
	for {
		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			if m.isClosed() {
				return nil
			}
			return fmt.Errorf("recvfrom netlink route socket: %w", err)
		}

		msgs, err := unix.ParseNetlinkMessage(buf[:n])
		if err != nil {
			m.logger.Warn("failed to parse netlink message", slog.String("error", err.Error()))
			continue
		}

		for _, msg := range msgs {
			ev, ok := decodeLinkMessage(msg)
			if !ok || (m.ifIndex != 0 && ev.IfIndex != m.ifIndex) {
				continue
			}
			select {
			case m.events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Events returns the channel interface state changes are delivered on.
func (m *NetlinkInterfaceMonitor) Events() <-chan InterfaceEvent {
	return m.events
}

// Close releases the netlink socket, unblocking any in-flight Recvfrom in
// Run. Safe to call more than once.
func (m *NetlinkInterfaceMonitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := unix.Close(m.fd); err != nil {
		return fmt.Errorf("close netlink route socket: %w", err)
	}
	return nil
}

func (m *NetlinkInterfaceMonitor) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// decodeLinkMessage extracts an InterfaceEvent from an RTM_NEWLINK or
// RTM_DELLINK message. ok is false for any other message type, or one too
// short to carry a valid ifinfomsg.
func decodeLinkMessage(msg unix.NetlinkMessage) (ev InterfaceEvent, ok bool) {
	if msg.Header.Type != unix.RTM_NEWLINK && msg.Header.Type != unix.RTM_DELLINK {
		return ev, false
	}
	if len(msg.Data) < unix.SizeofIfInfomsg {
		return ev, false
	}

	ifi := (*unix.IfInfomsg)(unsafe.Pointer(&msg.Data[0])) //nolint:gosec // G103: standard netlink message decoding
	ev.IfIndex = int(ifi.Index)
	ev.Up = msg.Header.Type == unix.RTM_NEWLINK &&
		ifi.Flags&(unix.IFF_UP|unix.IFF_RUNNING) == unix.IFF_UP|unix.IFF_RUNNING

	attrs, err := unix.ParseNetlinkRouteAttr(&msg)
	if err == nil {
		for _, a := range attrs {
			if a.Attr.Type == unix.IFLA_IFNAME {
				if i := bytes.IndexByte(a.Value, 0); i >= 0 {
					ev.IfName = string(a.Value[:i])
				} else {
					ev.IfName = string(a.Value)
				}
				break
			}
		}
	}

	return ev, true
}
