// File: pool/doc.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package pool provides size-classed byte buffer pooling for socket read
// paths and completion actions.
package pool
