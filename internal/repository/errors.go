// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// inspecting error strings.
package repository

import "errors"

// ErrLockTimeout is returned when the per-event advisory lock could not
// be acquired within the configured wait. The operation performed no
// writes and is safe to retry in full. Handlers should translate this
// into an HTTP 503 response with a Retry-After hint.
var ErrLockTimeout = errors.New("event lock timeout")

// ErrBarcodeExists is returned when a patron account with the same
// barcode already exists. Handlers map it to HTTP 409.
var ErrBarcodeExists = errors.New("barcode already exists")
