package eapol_test

import (
	"context"
	"sync"

	"github.com/go8021x/go8021x/internal/eapol"
)

// sentFrame records one call to mockTransport.SendEAPOL.
type sentFrame struct {
	typ     eapol.FrameType
	payload []byte
}

// mockTransport is a recording eapol.Transport test double.
type mockTransport struct {
	mu   sync.Mutex
	sent []sentFrame
	err  error
}

func (m *mockTransport) SendEAPOL(_ context.Context, typ eapol.FrameType, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := append([]byte(nil), payload...)
	m.sent = append(m.sent, sentFrame{typ: typ, payload: cp})
	return nil
}

func (m *mockTransport) countOf(typ eapol.FrameType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, f := range m.sent {
		if f.typ == typ {
			n++
		}
	}
	return n
}

// keyInstall records one call to mockDriver.SetWEPKey.
type keyInstall struct {
	unicast bool
	slot    uint8
	key     []byte
}

// mockDriver is a recording eapol.Driver test double.
type mockDriver struct {
	mu        sync.Mutex
	installed []keyInstall
	err       error
}

func (m *mockDriver) SetWEPKey(_ context.Context, isUnicast bool, slot uint8, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := append([]byte(nil), key...)
	m.installed = append(m.installed, keyInstall{unicast: isUnicast, slot: slot, key: cp})
	return nil
}

func (m *mockDriver) last() (keyInstall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.installed) == 0 {
		return keyInstall{}, false
	}
	return m.installed[len(m.installed)-1], true
}

// mockEAPEngine is a scripted eapol.EAPEngine test double. Every field is
// read directly by the interface methods; tests mutate them to script the
// engine's behavior between steps.
type mockEAPEngine struct {
	mu sync.Mutex

	success     bool
	fail        bool
	response    []byte
	hasResponse bool
	keyAvail    bool
	keyMaterial []byte

	stepChanged bool
	stepErr     error
	steps       int
	aborted     int
}

func (e *mockEAPEngine) Step(_ context.Context, _ []byte) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps++
	return e.stepChanged, e.stepErr
}

func (e *mockEAPEngine) IsSuccess() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.success
}

func (e *mockEAPEngine) IsFail() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fail
}

func (e *mockEAPEngine) Response() ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.response, e.hasResponse
}

func (e *mockEAPEngine) KeyAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keyAvail
}

func (e *mockEAPEngine) KeyMaterial(buf []byte, maxLen int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := copy(buf, e.keyMaterial)
	if n > maxLen {
		n = maxLen
	}
	return n, nil
}

func (e *mockEAPEngine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aborted++
}

func (e *mockEAPEngine) setKeyMaterial(km []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keyMaterial = km
}

// newHarness builds a Supplicant wired to fresh mocks, ready for Attach.
func newHarness(t testingTB, cfg eapol.Config) (*eapol.Supplicant, *mockTransport, *mockDriver, *mockEAPEngine) {
	t.Helper()

	tr := &mockTransport{}
	drv := &mockDriver{}
	eng := &mockEAPEngine{}

	s, err := eapol.NewSupplicant(tr, drv, eng, cfg)
	if err != nil {
		t.Fatalf("NewSupplicant: %v", err)
	}
	return s, tr, drv, eng
}

// testingTB is the subset of *testing.T used by newHarness, so it can be
// shared between Test and Benchmark functions without importing "testing"
// twice in incompatible ways.
type testingTB interface {
	Helper()
	Fatalf(format string, args ...any)
}
