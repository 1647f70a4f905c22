package executor

// Language describes a WASM interpreter runtime and how to drive it in
// session mode.
type Language interface {
	// Name returns a unique identifier for this language (e.g. "ruby").
	// Used as the cache key for compiled modules.
	Name() string

	// Module returns the WASM binary for the interpreter.
	Module() []byte

	// Args returns the command-line arguments that make the interpreter run
	// script, e.g. []string{"ruby", "-e", script}.
	Args(script string) []string

	// SessionInit returns the script run at session start: the bootstrap
	// vocabulary followed by the driver loop that speaks the session
	// protocol on stdin/stderr.
	SessionInit() string

	// Mounts returns host directories exposed read-only to the guest.
	Mounts() []Mount
}

// Mount exposes HostPath inside the guest at GuestPath, read-only.
type Mount struct {
	GuestPath string
	HostPath  string
}
