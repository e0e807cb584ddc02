package elektroid

import "fmt"

// VendorHeader is the fixed 6-byte SysEx prefix identifying a
// manufacturer/family/model/version class, e.g. Elektron's
// {0xF0, 0x00, 0x20, 0x3C, 0x10, 0x00}.
type VendorHeader [6]byte

const sysexStart = 0xF0
const sysexEnd = 0xF7

// newMessageBody allocates a message body: 2 reserved zero bytes for the
// sequence number the framer will fill in, 2 reserved zero bytes, the
// opcode, and its argument bytes. The 4 leading zero bytes mirror
// connector_new_msg's "\0\0\0\0" + template layout.
func newMessageBody(opcode byte, args ...byte) []byte {
	body := make([]byte, 4, 5+len(args))
	body = append(body, opcode)
	body = append(body, args...)
	return body
}

// seqCounter allocates the 16-bit big-endian sequence numbers written into
// the first two bytes of every outgoing message body. It cycles 0..65535
// and carries no synchronization of its own — callers serialize access via
// Backend.mu, matching the "correctness relies on the serialization lock,
// not on the counter" rule in §5.
type seqCounter struct {
	next uint16
}

func (s *seqCounter) allocate() uint16 {
	v := s.next
	s.next++
	return v
}

// frameMessage stamps body[0:2] with seq, 7-bit-packs the whole body, and
// wraps it in the vendor header and SysEx terminator. Grounded on
// connector_tx + connector_msg_to_sysex.
func frameMessage(header VendorHeader, seq uint16, body []byte) []byte {
	stamped := make([]byte, len(body))
	copy(stamped, body)
	putBE16(stamped[:2], seq)

	encoded := EncodePayload(stamped)

	sysex := make([]byte, 0, len(header)+len(encoded)+1)
	sysex = append(sysex, header[:]...)
	sysex = append(sysex, encoded...)
	sysex = append(sysex, sysexEnd)
	return sysex
}

// unframeMessage strips the vendor header and terminator from a received
// SysEx message, returning the decoded body, or an error wrapping
// ErrProtocol if the header does not match or the message is too short to
// contain one. Grounded on connector_sysex_to_msg.
func unframeMessage(header VendorHeader, sysex []byte) ([]byte, error) {
	if len(sysex) < len(header)+1 {
		return nil, fmt.Errorf("%w: message too short (%d bytes)", ErrProtocol, len(sysex))
	}
	for i := range header {
		if sysex[i] != header[i] {
			return nil, fmt.Errorf("%w: vendor header mismatch", ErrProtocol)
		}
	}

	payload := sysex[len(header) : len(sysex)-1]
	if len(payload) == 0 {
		return nil, nil
	}
	return DecodePayload(payload), nil
}
