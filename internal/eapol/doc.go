// Package eapol implements the IEEE 802.1X EAPOL supplicant core.
//
// This includes the Supplicant PAE, Supplicant Backend, and Key Receive
// state machines (IEEE 802.1X-2004 Section 8), the EAPOL frame codec, the
// legacy dynamic-WEP EAPOL-Key processing pipeline, and the cooperative
// step orchestrator that drives all three state machines to a fixpoint in
// response to timers, inbound frames, and host notifications.
//
// The EAP method engine itself is not part of this package: it is an
// injected capability (EAPEngine) that the Backend state machine drives.
package eapol
