// Package monitoring provides the module's diagnostic logging hook.
//
// Gating algorithms accumulate analyst-facing warnings on their Diagnostics
// value, but operational messages (sampling shortfalls, consensus progress,
// rejected control thresholds) also go through Logf so pipelines can route
// them into their own logging stack.
package monitoring

import "log"

// Logf is the module-level diagnostic logger. It defaults to log.Printf and
// may be replaced with SetLogger; tests typically mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the module logger. A nil argument installs a no-op
// logger, silencing all diagnostic output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Mute silences the module logger and returns a function restoring the
// previous logger. Intended for test setup:
//
//	defer monitoring.Mute()()
func Mute() func() {
	prev := Logf
	Logf = func(string, ...interface{}) {}
	return func() { Logf = prev }
}
