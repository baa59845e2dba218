// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral API for CPU affinity. Platform-specific implementations
// live in separate files guarded by build tags. Pinning the session loop
// to one core keeps heartbeat timing jitter down on busy hosts.

package affinity

// Pin locks the calling goroutine to its OS thread and binds the thread
// to the given logical CPU on supported platforms. On unsupported
// platforms it returns an error.
func Pin(cpuID int) error {
	return pinPlatform(cpuID)
}
