//go:build linux || darwin || freebsd

// File: poller/sys_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poller

import "golang.org/x/sys/unix"

func closeFd(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}
