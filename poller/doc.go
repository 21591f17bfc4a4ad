// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package poller provides the Handle arena and the per-OS event queue
// backends: epoll (Linux), kqueue (Darwin/FreeBSD). Backend selection
// happens once per queue through the New factory.
package poller
