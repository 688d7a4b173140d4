// Package hostapd exposes the EAPOL supplicant's status and control
// operations over D-Bus, in the spirit of wpa_supplicant's own D-Bus
// control interface (net.go8021x.Supplicant rather than fi.w1.wpa_supplicant1).
package hostapd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/go8021x/go8021x/internal/eapol"
)

// Bridge publishes a Supplicant's status on the session bus and accepts
// Logoff/Reauthenticate calls from external control clients (go8021xctl,
// or any D-Bus client speaking the exported interface).
type Bridge struct {
	conn    *dbus.Conn
	sup     *eapol.Supplicant
	busName string
	objPath dbus.ObjectPath
	logger  *slog.Logger
}

// interfaceName is the D-Bus interface exported on objPath.
const interfaceName = "net.go8021x.Supplicant1"

// New connects to the D-Bus session bus, requests busName, and exports the
// supplicant's control methods on objPath. The returned Bridge must be
// closed to release the bus name and connection.
func New(ctx context.Context, sup *eapol.Supplicant, busName, objPath string, logger *slog.Logger) (*Bridge, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	b := &Bridge{
		conn:    conn,
		sup:     sup,
		busName: busName,
		objPath: dbus.ObjectPath(objPath),
		logger:  logger,
	}

	if err := conn.Export(b, b.objPath, interfaceName); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("export %s on %s: %w", interfaceName, objPath, err)
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("request bus name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		_ = conn.Close()
		return nil, fmt.Errorf("bus name %s already owned", busName)
	}

	sup.NotifyCtrlAttached(ctx, true)
	logger.Info("hostapd-style control bridge attached",
		slog.String("bus_name", busName),
		slog.String("object_path", objPath),
	)

	return b, nil
}

// Close releases the bus name and closes the D-Bus connection.
func (b *Bridge) Close() error {
	b.sup.NotifyCtrlAttached(context.Background(), false)
	if err := b.conn.ReleaseName(b.busName); err != nil {
		b.logger.Warn("release bus name failed", slog.String("error", err.Error()))
	}
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("close dbus connection: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Exported D-Bus methods (net.go8021x.Supplicant1)
// -------------------------------------------------------------------------

// Status returns the current PAE/Backend state names and port authorization,
// as a (paeState, backendState, portStatus string, portValid bool) tuple.
func (b *Bridge) Status() (string, string, string, bool, *dbus.Error) {
	st := b.sup.GetStatus()
	return st.PAEState.String(), st.BackendState.String(), st.PortStatus.String(), st.PortValid, nil
}

// Logoff triggers or clears a user-initiated logoff.
func (b *Bridge) Logoff(active bool) *dbus.Error {
	b.sup.NotifyLogoff(context.Background(), active)
	return nil
}

// Reauthenticate forces a fresh authentication attempt by reporting the port
// disabled and then enabled again, which takes the PAE through DISCONNECTED
// into CONNECTING at once; the cached-PMK hint is left as it is. It is the
// D-Bus equivalent of go8021xctl's "reauth" command.
func (b *Bridge) Reauthenticate() *dbus.Error {
	b.sup.NotifyPortEnabled(context.Background(), false)
	b.sup.NotifyPortEnabled(context.Background(), true)
	return nil
}
