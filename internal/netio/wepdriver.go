package netio

import (
	"context"
	"log/slog"
)

// LoggingKeyDriver implements eapol.Driver by logging intended dynamic-WEP
// key installs instead of issuing them to an adapter. Real key installation
// requires a wireless-driver-specific ioctl (e.g. Linux wireless extensions
// SIOCSIWENCODEEXT) that varies by driver and is out of scope; this driver
// lets the supplicant core run end to end against a real link without that
// glue, and gives an operator a log line to confirm keys were derived.
type LoggingKeyDriver struct {
	logger    *slog.Logger
	onInstall func(isUnicast bool, slot uint8, keyLen int)
}

// NewLoggingKeyDriver creates a LoggingKeyDriver. onInstall, if non-nil, is
// called after every logged install so callers can wire in metrics without
// this package depending on a metrics package.
func NewLoggingKeyDriver(logger *slog.Logger, onInstall func(isUnicast bool, slot uint8, keyLen int)) *LoggingKeyDriver {
	return &LoggingKeyDriver{logger: logger, onInstall: onInstall}
}

// SetWEPKey logs the key install that would be performed against the
// adapter and reports success unconditionally.
func (d *LoggingKeyDriver) SetWEPKey(_ context.Context, isUnicast bool, slot uint8, key []byte) error {
	kind := "broadcast"
	if isUnicast {
		kind = "unicast"
	}

	d.logger.Info("dynamic WEP key ready for installation",
		slog.String("kind", kind),
		slog.Int("slot", int(slot)),
		slog.Int("key_len", len(key)),
	)

	if d.onInstall != nil {
		d.onInstall(isUnicast, slot, len(key))
	}

	return nil
}
