package ptcp

import "fmt"

// TransportProtocolError indicates a PTCP frame arrived with a body
// leading byte that violates an asserted handshake expectation (e.g. the
// device echoing something other than the hello literal, or a sign-submit
// reply not beginning with 0x1A). It is fatal to the link.
type TransportProtocolError struct {
	Expected string
	Got      []byte
}

func (e *TransportProtocolError) Error() string {
	return fmt.Sprintf("transport protocol error: expected %s, got %x", e.Expected, e.Got)
}
