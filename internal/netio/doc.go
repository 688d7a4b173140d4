// Package netio provides the link-layer transport and interface-state
// monitoring the EAPOL supplicant core (internal/eapol) treats as injected
// capabilities: a raw Ethernet socket bound to the IEEE 802.1X PAE group
// address (01:80:C2:00:00:03, ethertype 0x888E) and a network-interface
// up/down watcher that feeds the supplicant's portEnabled notifier.
package netio
