// Package monitoring carries the process-wide diagnostic logger.
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

// Stagef logs a message scoped to one pipeline stage of one burst. All stage
// lifecycle messages go through here so runs are grep-able by burst id.
func Stagef(burstID, stage, format string, v ...interface{}) {
	args := append([]interface{}{burstID, stage}, v...)
	Logf("[%s/%s] "+format, args...)
}
