//go:build linux || darwin || freebsd

// File: internal/oserr/oserr_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Errno classification for unix platforms. Transient errnos map to
// ErrWouldBlock so callers can retry on the next readiness event; resource
// exhaustion and timeouts map to their sentinels; everything else becomes
// a structured I/O error carrying the operation name.

package oserr

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-io/api"
)

// Map converts err, raised by the named operation, into a portable error.
// Returns nil for nil.
func Map(op string, err error) error {
	if err == nil {
		return nil
	}
	// EWOULDBLOCK aliases EAGAIN on every platform built here, so a single
	// case covers both names.
	switch err {
	case unix.EAGAIN:
		return api.ErrWouldBlock
	case unix.ETIMEDOUT:
		return api.ErrTimeout
	case unix.EBADF:
		return api.ErrHandleClosed
	case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
		return api.WrapError(api.ErrCodeResourceExhausted, op, api.ErrResourceExhausted).
			WithContext("errno", err.Error())
	case unix.EPIPE, unix.ECONNRESET:
		return api.WrapError(api.ErrCodeIO, op, err)
	default:
		return api.WrapError(api.ErrCodeIO, op, err)
	}
}

// IsConnReset reports whether err is a peer reset or broken pipe.
func IsConnReset(err error) bool {
	return err == unix.ECONNRESET || err == unix.EPIPE
}
