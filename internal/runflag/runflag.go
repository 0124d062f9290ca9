// Package runflag provides the process-wide running flag that the
// supervisor clears on shutdown and every mining worker and session loop
// polls cooperatively.
package runflag

import "sync/atomic"

// Flag is a concurrency-safe boolean, true while the process should keep
// mining and false once shutdown has been requested. There is no way to
// set it back to true: a Flag is single-use for the life of the process.
type Flag struct {
	running atomic.Bool
}

// New returns a Flag already set to running.
func New() *Flag {
	f := &Flag{}
	f.running.Store(true)
	return f
}

// Running reports whether the process should keep mining.
func (f *Flag) Running() bool {
	return f.running.Load()
}

// Clear requests shutdown. Safe to call more than once or concurrently.
func (f *Flag) Clear() {
	f.running.Store(false)
}
