//go:build darwin || freebsd

// File: transport/sock_bsd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Darwin/FreeBSD socket creation and accept. Non-blocking and
// close-on-exec are applied after the descriptor exists; accept4 is not
// portable here.

package transport

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/internal/oserr"
)

func rawTCPSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, oserr.Map("socket", err)
	}
	if err := prepareFd(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return fd, nil
}

func rawAccept(fd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept(fd)
	if err != nil {
		return -1, nil, oserr.Map("accept", err)
	}
	if err := prepareFd(nfd); err != nil {
		unix.Close(nfd)
		return -1, nil, err
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return nfd, sa, nil
}

func prepareFd(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return oserr.Map("set nonblock", err)
	}
	unix.CloseOnExec(fd)
	return nil
}
