package warmer

import "errors"

// ErrTransport marks a request that failed before a response was read
// (connection, TLS, DNS, timeout or body decoding).
var ErrTransport = errors.New("transport error")
