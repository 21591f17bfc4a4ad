// File: transport/doc.go
// Author: momentics <momentics@gmail.com>
//
// Package transport implements non-blocking TCP sockets and listeners on
// top of the poller handle arena. Sockets carry an explicit connection
// state machine and a pending-write queue drained on write-readiness;
// no wire protocol lives at this layer.
package transport
