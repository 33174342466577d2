// Package pdu implements the DICOM upper layer protocol data units (PS3.8):
// reading and writing framed PDUs over a stream, association negotiation
// structures, and P-DATA fragment handling.
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Type identifies a PDU kind on the wire.
type Type uint8

const (
	TypeAssociateRQ Type = 0x01
	TypeAssociateAC Type = 0x02
	TypeAssociateRJ Type = 0x03
	TypePDataTF     Type = 0x04
	TypeReleaseRQ   Type = 0x05
	TypeReleaseRP   Type = 0x06
	TypeAbort       Type = 0x07
)

// MaxAssociateLength bounds the first PDU of a connection, before a maximum
// PDU length has been negotiated.
const MaxAssociateLength = 1 << 20

// headerLength is the fixed PDU prefix: type, reserved, 4-byte length.
const headerLength = 6

// PDU is one framed upper-layer message.
type PDU struct {
	Type Type
	Data []byte
}

// Read reads the next PDU from r. A PDU whose declared length exceeds limit
// is rejected without consuming the body.
func Read(r io.Reader, limit uint32) (*PDU, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[2:6])
	if limit > 0 && length > limit {
		return nil, fmt.Errorf("pdu length %d exceeds limit %d", length, limit)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("pdu body truncated: %w", err)
	}

	return &PDU{Type: Type(header[0]), Data: data}, nil
}

// Write frames body as a PDU of type t and writes it to w.
func Write(w io.Writer, t Type, body []byte) error {
	header := make([]byte, headerLength, headerLength+len(body))
	header[0] = byte(t)
	binary.BigEndian.PutUint32(header[2:6], uint32(len(body)))

	_, err := w.Write(append(header, body...))
	return err
}

// ReleaseBody is the fixed body of A-RELEASE-RQ and A-RELEASE-RP PDUs.
func ReleaseBody() []byte {
	return make([]byte, 4)
}

// Abort carries the source and reason fields of an A-ABORT PDU.
type Abort struct {
	Source uint8
	Reason uint8
}

// ParseAbort decodes an A-ABORT body.
func ParseAbort(body []byte) (*Abort, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("abort body too short: %d bytes", len(body))
	}
	return &Abort{Source: body[2], Reason: body[3]}, nil
}

// EncodeAbort builds an A-ABORT body.
func EncodeAbort(source, reason uint8) []byte {
	return []byte{0, 0, source, reason}
}
