//go:build !linux

package engine

import "errors"

// pinToCore is a no-op on platforms without SCHED_SETAFFINITY; the
// caller logs the resulting error once per worker at debug level.
func pinToCore(core int) error {
	return errors.New("cpu affinity pinning is not supported on this platform")
}
