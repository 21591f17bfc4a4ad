// File: internal/oserr/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package oserr translates raw OS error codes into the portable error
// taxonomy of the api package.
package oserr
