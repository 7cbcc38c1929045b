package ptcp

// HandshakeRendezvous performs the PTCP handshake against the main/agent
// leg (spec §4.5 steps 1-3): send the hello opener, read its reply, send
// the sign-request, read frames until a non-empty body arrives (the
// opaque sign blob past its 12-byte prefix), then send an empty ack.
func (l *Link) HandshakeRendezvous() (sign []byte, err error) {
	if err := l.Send(Hello); err != nil {
		return nil, err
	}
	if _, err := l.Receive(); err != nil {
		return nil, err
	}

	signRequest := append([]byte{0x17, 0x00, 0x00, 0x00}, make([]byte, 8)...)
	if err := l.Send(signRequest); err != nil {
		return nil, err
	}

	var reply *Frame
	for {
		reply, err = l.Receive()
		if err != nil {
			return nil, err
		}
		if len(reply.Body) > 0 {
			break
		}
	}

	if len(reply.Body) < 12 {
		return nil, &TransportProtocolError{Expected: "sign-request reply with >=12 byte prefix", Got: reply.Body}
	}
	sign = append([]byte(nil), reply.Body[12:]...)

	if err := l.Ack(); err != nil {
		return nil, err
	}

	return sign, nil
}

// HandshakeDevice performs the PTCP handshake against the device leg
// (spec §4.5 steps 4-6): re-send the hello opener and require the echoed
// body to equal the hello literal, submit the sign blob obtained from
// HandshakeRendezvous and require the reply to begin with 0x1A, then send
// the ready frame and require an empty-body reply.
func (l *Link) HandshakeDevice(sign []byte) error {
	if err := l.Send(Hello); err != nil {
		return err
	}
	reply, err := l.Receive()
	if err != nil {
		return err
	}
	if string(reply.Body) != string(Hello) {
		return &TransportProtocolError{Expected: "hello echo", Got: reply.Body}
	}

	signSubmit := make([]byte, 0, 12+len(sign))
	signSubmit = append(signSubmit, 0x19, 0x00, 0x00, 0x00)
	signSubmit = append(signSubmit, make([]byte, 8)...)
	signSubmit = append(signSubmit, sign...)
	if err := l.Send(signSubmit); err != nil {
		return err
	}

	reply, err = l.Receive()
	if err != nil {
		return err
	}
	if len(reply.Body) == 0 {
		reply, err = l.Receive()
		if err != nil {
			return err
		}
	}
	if len(reply.Body) == 0 || reply.Body[0] != BodySignSubmitReply {
		return &TransportProtocolError{Expected: "sign-submit reply (0x1A)", Got: reply.Body}
	}

	ready := append([]byte{BodyReady, 0x00, 0x00, 0x00}, make([]byte, 8)...)
	if err := l.Send(ready); err != nil {
		return err
	}

	reply, err = l.Receive()
	if err != nil {
		return err
	}
	if len(reply.Body) != 0 {
		return &TransportProtocolError{Expected: "empty ready ack", Got: reply.Body}
	}

	return nil
}
