//go:build linux || darwin || freebsd

// File: transport/addr_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Address conversion between net.TCPAddr and the raw sockaddr forms.

package transport

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/api"
)

// tcpSockaddr converts a resolved TCP address into a unix.Sockaddr plus
// the matching socket family.
func tcpSockaddr(a *net.TCPAddr) (unix.Sockaddr, int, error) {
	if ip4 := a.IP.To4(); ip4 != nil || a.IP == nil {
		sa := &unix.SockaddrInet4{Port: a.Port}
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return sa, unix.AF_INET, nil
	}
	if ip6 := a.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: a.Port}
		copy(sa.Addr[:], ip6)
		return sa, unix.AF_INET6, nil
	}
	return nil, 0, api.NewError(api.ErrCodeInternal, "unsupported address family").
		WithContext("addr", a.String())
}

// sockaddrToTCP converts a kernel-reported sockaddr back to net form.
func sockaddrToTCP(sa unix.Sockaddr) *net.TCPAddr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}
	default:
		return nil
	}
}

// localTCPAddr reads the bound address of fd.
func localTCPAddr(fd int) *net.TCPAddr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return sockaddrToTCP(sa)
}

// remoteTCPAddr reads the peer address of fd.
func remoteTCPAddr(fd int) *net.TCPAddr {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil
	}
	return sockaddrToTCP(sa)
}
