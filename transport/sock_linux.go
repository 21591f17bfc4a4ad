//go:build linux

// File: transport/sock_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux socket creation and accept. SOCK_NONBLOCK/SOCK_CLOEXEC and
// accept4(2) set the flags atomically with the descriptor.

package transport

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/internal/oserr"
)

func rawTCPSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, oserr.Map("socket", err)
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, nil
}

func rawAccept(fd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, nil, oserr.Map("accept4", err)
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return nfd, sa, nil
}
