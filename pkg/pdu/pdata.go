package pdu

import (
	"encoding/binary"
	"fmt"
)

// Message control header bits of a presentation data value (PS3.8 §9.3.5.1).
const (
	controlCommand = 0x01
	controlLast    = 0x02
)

// PDV is one presentation data value fragment inside a P-DATA-TF PDU.
// Command fragments carry DIMSE command sets; data fragments carry data sets.
type PDV struct {
	ContextID uint8
	Command   bool
	Last      bool
	Data      []byte
}

// ParsePData decodes the fragments of a P-DATA-TF body.
func ParsePData(body []byte) ([]PDV, error) {
	var pdvs []PDV
	for len(body) > 0 {
		if len(body) < 6 {
			return nil, fmt.Errorf("pdv header truncated: %d bytes", len(body))
		}
		length := binary.BigEndian.Uint32(body[0:4])
		if length < 2 || uint32(len(body)-4) < length {
			return nil, fmt.Errorf("pdv length %d out of range", length)
		}

		control := body[5]
		pdvs = append(pdvs, PDV{
			ContextID: body[4],
			Command:   control&controlCommand != 0,
			Last:      control&controlLast != 0,
			Data:      body[6 : 4+length],
		})
		body = body[4+length:]
	}
	if len(pdvs) == 0 {
		return nil, fmt.Errorf("p-data-tf carries no fragments")
	}
	return pdvs, nil
}

// EncodePData builds a P-DATA-TF body from the given fragments.
func EncodePData(pdvs []PDV) []byte {
	var body []byte
	for _, v := range pdvs {
		header := make([]byte, 6)
		binary.BigEndian.PutUint32(header[0:4], uint32(len(v.Data))+2)
		header[4] = v.ContextID
		if v.Command {
			header[5] |= controlCommand
		}
		if v.Last {
			header[5] |= controlLast
		}
		body = append(append(body, header...), v.Data...)
	}
	return body
}
