// Package dimse encodes and decodes DIMSE command sets (PS3.7 §9): the
// group-0000 element lists exchanged as command fragments on an association.
// Command sets are always implicit VR little endian regardless of the
// negotiated transfer syntax.
package dimse

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Command field values (PS3.7 table E.1-1).
const (
	CStoreRQ  uint16 = 0x0001
	CStoreRSP uint16 = 0x8001
	CEchoRQ   uint16 = 0x0030
	CEchoRSP  uint16 = 0x8030
)

// Status values carried in responses.
const (
	StatusSuccess           uint16 = 0x0000
	StatusProcessingFailure uint16 = 0x0110
)

// DataSetTypeNull signals that no data set follows the command set.
const DataSetTypeNull uint16 = 0x0101

// Command element tags, all in group 0000.
const (
	elemGroupLength       = 0x0000
	elemAffectedSOPClass  = 0x0002
	elemCommandField      = 0x0100
	elemMessageID         = 0x0110
	elemMessageIDReplied  = 0x0120
	elemDataSetType       = 0x0800
	elemStatus            = 0x0900
	elemAffectedSOPInstUI = 0x1000
)

// Command is a decoded DIMSE command set. Fields not present on the wire are
// zero values.
type Command struct {
	Field                     uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	DataSetType               uint16
	Status                    uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
}

// HasDataSet reports whether a data set follows this command on the
// association.
func (c *Command) HasDataSet() bool {
	return c.DataSetType != DataSetTypeNull
}

// Decode parses a command set from its implicit VR little endian encoding.
// Unrecognized elements are skipped.
func Decode(data []byte) (*Command, error) {
	cmd := &Command{DataSetType: DataSetTypeNull}
	seen := false

	for len(data) > 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("command element header truncated: %d bytes", len(data))
		}
		group := binary.LittleEndian.Uint16(data[0:2])
		element := binary.LittleEndian.Uint16(data[2:4])
		length := binary.LittleEndian.Uint32(data[4:8])
		if uint32(len(data)-8) < length {
			return nil, fmt.Errorf("command element (%04x,%04x) truncated: want %d bytes", group, element, length)
		}
		value := data[8 : 8+length]
		data = data[8+length:]

		if group != 0x0000 {
			continue
		}
		seen = true

		switch element {
		case elemAffectedSOPClass:
			cmd.AffectedSOPClassUID = trimUID(value)
		case elemCommandField:
			cmd.Field = uint16Value(value)
		case elemMessageID:
			cmd.MessageID = uint16Value(value)
		case elemMessageIDReplied:
			cmd.MessageIDBeingRespondedTo = uint16Value(value)
		case elemDataSetType:
			cmd.DataSetType = uint16Value(value)
		case elemStatus:
			cmd.Status = uint16Value(value)
		case elemAffectedSOPInstUI:
			cmd.AffectedSOPInstanceUID = trimUID(value)
		}
	}

	if !seen {
		return nil, fmt.Errorf("buffer contains no command elements")
	}
	return cmd, nil
}

// Encode serializes the command set as implicit VR little endian, prefixed
// with the mandatory group length element.
func (c *Command) Encode() []byte {
	var body []byte
	if c.AffectedSOPClassUID != "" {
		body = appendUID(body, elemAffectedSOPClass, c.AffectedSOPClassUID)
	}
	body = appendUint16(body, elemCommandField, c.Field)
	if c.isRequest() {
		body = appendUint16(body, elemMessageID, c.MessageID)
	} else {
		body = appendUint16(body, elemMessageIDReplied, c.MessageIDBeingRespondedTo)
	}
	body = appendUint16(body, elemDataSetType, c.DataSetType)
	if !c.isRequest() {
		body = appendUint16(body, elemStatus, c.Status)
	}
	if c.AffectedSOPInstanceUID != "" {
		body = appendUID(body, elemAffectedSOPInstUI, c.AffectedSOPInstanceUID)
	}

	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(len(body)))
	return append(appendElement(nil, elemGroupLength, length), body...)
}

// NewEchoRSP builds the success response to a C-ECHO-RQ.
func NewEchoRSP(req *Command) *Command {
	return &Command{
		Field:                     CEchoRSP,
		MessageIDBeingRespondedTo: req.MessageID,
		DataSetType:               DataSetTypeNull,
		Status:                    StatusSuccess,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
	}
}

// NewStoreRSP builds the response to a C-STORE-RQ with the given status.
func NewStoreRSP(req *Command, status uint16) *Command {
	return &Command{
		Field:                     CStoreRSP,
		MessageIDBeingRespondedTo: req.MessageID,
		DataSetType:               DataSetTypeNull,
		Status:                    status,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    req.AffectedSOPInstanceUID,
	}
}

func (c *Command) isRequest() bool {
	return c.Field&0x8000 == 0
}

func appendElement(buf []byte, element uint16, value []byte) []byte {
	header := make([]byte, 8)
	binary.LittleEndian.PutUint16(header[0:2], 0x0000)
	binary.LittleEndian.PutUint16(header[2:4], element)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(value)))
	return append(append(buf, header...), value...)
}

func appendUint16(buf []byte, element uint16, v uint16) []byte {
	value := make([]byte, 2)
	binary.LittleEndian.PutUint16(value, v)
	return appendElement(buf, element, value)
}

func appendUID(buf []byte, element uint16, uid string) []byte {
	value := []byte(uid)
	if len(value)%2 != 0 {
		value = append(value, 0x00) // UI values are padded to even length
	}
	return appendElement(buf, element, value)
}

func uint16Value(value []byte) uint16 {
	if len(value) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(value[0:2])
}

func trimUID(value []byte) string {
	return strings.TrimRight(string(value), "\x00 ")
}
