// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the connection multiplexer: a single-threaded
// dispatch loop over one event queue, and a sharded group of such loops
// where every handle is pinned to one worker by its arena index.
package reactor
