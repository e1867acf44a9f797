//go:build peertalk_interrupt_unit

package peertalk

// guardInterruptLogging deliberately references an undefined symbol, so
// any build with -tags peertalk_interrupt_unit fails to compile here,
// whether or not the code being built reaches LogSink.Log. Only
// deferredLog.push, SetFlag-style bit stores, and 8-bit atomic
// operations are safe from interrupt context (spec §5).
func guardInterruptLogging() {
	forbiddenLoggingFromInterruptContext()
}
