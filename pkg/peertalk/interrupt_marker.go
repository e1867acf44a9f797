//go:build !peertalk_interrupt_unit

package peertalk

// guardInterruptLogging is a no-op in every normal build. Building the
// package with the peertalk_interrupt_unit tag swaps in the version in
// interrupt_marker_trap.go, which references an undefined symbol, so
// the package does not compile at all under that tag. The trap is
// unconditional: it does not detect whether anything reaches for
// LogSink.Log, and nothing in the package calls guardInterruptLogging.
// Mirrors the
// teacher's platform-split convention (netmonitor_linux.go /
// netmonitor_darwin.go / netmonitor_other.go) but used here as a safety
// trap rather than a platform dispatch.
func guardInterruptLogging() {}
