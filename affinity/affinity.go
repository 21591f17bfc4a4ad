// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations
// live in separate files guarded by build tags. Callers must hold the OS
// thread (runtime.LockOSThread) for pinning to stick.

package affinity

// Pin pins the current OS thread to the given logical CPU on supported
// platforms. On unsupported platforms it returns an error.
func Pin(cpuID int) error {
	return setAffinityPlatform(cpuID)
}
