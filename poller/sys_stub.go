//go:build !linux && !darwin && !freebsd

// File: poller/sys_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poller

func closeFd(fd int) error { return nil }
