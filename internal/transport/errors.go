package transport

import (
	"errors"
	"fmt"
)

// ErrTransportClosed is returned by Send and Receive once the connection
// is closed, whether by the caller, the server, or a network failure.
var ErrTransportClosed = errors.New("transport closed")

// ConnectionError reports a failure to establish the WebSocket session:
// DNS, TLS, handshake, or credential rejection.
type ConnectionError struct {
	URL        string
	StatusCode int // HTTP status from the handshake response, 0 if none
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connecting to %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("connecting to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsAuthRejection reports whether the handshake was refused for bad credentials
func (e *ConnectionError) IsAuthRejection() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
