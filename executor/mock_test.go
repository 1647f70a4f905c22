package executor

import (
	"os"
	"path/filepath"
	"testing"
)

// minimalWasm is the smallest valid module: magic and version, no sections.
// It instantiates and returns immediately.
const minimalWasm = "\x00asm\x01\x00\x00\x00"

// mockLanguage implements Language for testing executor logic without the
// overhead of a real interpreter.
type mockLanguage struct {
	name string
	bin  []byte
}

func (m *mockLanguage) Name() string { return m.name }
func (m *mockLanguage) Module() []byte { return m.bin }
func (m *mockLanguage) Args(string) []string { return []string{m.name} }
func (m *mockLanguage) SessionInit() string { return "" }
func (m *mockLanguage) Mounts() []Mount { return nil }

func newMinimalLanguage(name string) *mockLanguage {
	return &mockLanguage{name: name, bin: []byte(minimalWasm)}
}

// loadMockLanguage returns the driver-protocol mock built from
// testdata/mock.go, skipping the test when it has not been built.
func loadMockLanguage(t *testing.T) *mockLanguage {
	t.Helper()
	bin, err := os.ReadFile(filepath.Join("testdata", "mock.wasm"))
	if err != nil {
		t.Skip("testdata/mock.wasm not built; run: GOOS=wasip1 GOARCH=wasm go build -o testdata/mock.wasm testdata/mock.go")
	}
	return &mockLanguage{name: "mock", bin: bin}
}
