package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Warnf logs a recoverable problem, such as a QC test skipped for lack of
// input.
func Warnf(format string, v ...interface{}) {
	Logf("warning: "+format, v...)
}

// Diagf logs an informational diagnostic: approximations taken, statistics
// left empty after filtering.
func Diagf(format string, v ...interface{}) {
	Logf("diag: "+format, v...)
}
