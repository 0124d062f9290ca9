//go:build linux

package engine

import "golang.org/x/sys/unix"

// pinToCore binds the calling OS thread to a single logical CPU. Must be
// called after runtime.LockOSThread so the binding sticks to the
// goroutine's underlying thread for the rest of the round.
func pinToCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}
