package pdu

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Variable item types inside associate PDUs (PS3.8 §9.3).
const (
	itemApplicationContext   = 0x10
	itemPresentationContext  = 0x20
	itemPresentationResult   = 0x21
	itemAbstractSyntax       = 0x30
	itemTransferSyntax       = 0x40
	itemUserInformation      = 0x50
	subItemMaxLength         = 0x51
	subItemImplementationUID = 0x52
	subItemVersionName       = 0x55
)

// Presentation context negotiation results (PS3.8 table 9-18).
const (
	ResultAccept                 = 0
	ResultUserRejection          = 1
	ResultNoReason               = 2
	ResultAbstractSyntaxRejected = 3
	ResultTransferSyntaxRejected = 4
)

const protocolVersion = 1

// PresentationContext is one proposed (abstract syntax, transfer syntaxes)
// combination from an A-ASSOCIATE-RQ.
type PresentationContext struct {
	ID               uint8
	AbstractSyntax   string
	TransferSyntaxes []string
}

// AssociateRQ is a decoded A-ASSOCIATE-RQ.
type AssociateRQ struct {
	CalledAETitle          string
	CallingAETitle         string
	ApplicationContext     string
	PresentationContexts   []PresentationContext
	MaxPDULength           uint32
	ImplementationClassUID string
	ImplementationVersion  string
}

// PresentationContextResult is the negotiation outcome for one proposed
// presentation context.
type PresentationContextResult struct {
	ID             uint8
	Result         uint8
	TransferSyntax string
}

// AssociateAC is an A-ASSOCIATE-AC, built by the acceptor in response to an
// A-ASSOCIATE-RQ.
type AssociateAC struct {
	CalledAETitle          string
	CallingAETitle         string
	ApplicationContext     string
	Results                []PresentationContextResult
	MaxPDULength           uint32
	ImplementationClassUID string
	ImplementationVersion  string
}

// ParseAssociateRQ decodes an A-ASSOCIATE-RQ body.
func ParseAssociateRQ(body []byte) (*AssociateRQ, error) {
	if len(body) < 68 {
		return nil, fmt.Errorf("associate-rq body too short: %d bytes", len(body))
	}
	if v := binary.BigEndian.Uint16(body[0:2]); v != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version %d", v)
	}

	rq := &AssociateRQ{
		CalledAETitle:  trimAETitle(body[4:20]),
		CallingAETitle: trimAETitle(body[20:36]),
	}

	rest := body[68:]
	for len(rest) > 0 {
		itemType, payload, next, err := readItem(rest)
		if err != nil {
			return nil, err
		}
		rest = next

		switch itemType {
		case itemApplicationContext:
			rq.ApplicationContext = string(payload)
		case itemPresentationContext:
			pc, err := parsePresentationContext(payload)
			if err != nil {
				return nil, err
			}
			rq.PresentationContexts = append(rq.PresentationContexts, *pc)
		case itemUserInformation:
			if err := rq.parseUserInformation(payload); err != nil {
				return nil, err
			}
		default:
			// Unknown items are skipped for forward compatibility.
		}
	}

	return rq, nil
}

// Encode builds an A-ASSOCIATE-RQ body. The receiver only decodes RQs; the
// encoder exists for loopback tests and SCU use.
func (rq *AssociateRQ) Encode() []byte {
	body := make([]byte, 68)
	binary.BigEndian.PutUint16(body[0:2], protocolVersion)
	copy(body[4:20], padAETitle(rq.CalledAETitle))
	copy(body[20:36], padAETitle(rq.CallingAETitle))

	body = appendItem(body, itemApplicationContext, []byte(rq.ApplicationContext))
	for _, pc := range rq.PresentationContexts {
		payload := []byte{pc.ID, 0, 0, 0}
		payload = appendItem(payload, itemAbstractSyntax, []byte(pc.AbstractSyntax))
		for _, ts := range pc.TransferSyntaxes {
			payload = appendItem(payload, itemTransferSyntax, []byte(ts))
		}
		body = appendItem(body, itemPresentationContext, payload)
	}
	body = appendItem(body, itemUserInformation,
		encodeUserInformation(rq.MaxPDULength, rq.ImplementationClassUID, rq.ImplementationVersion))
	return body
}

// Encode builds an A-ASSOCIATE-AC body.
func (ac *AssociateAC) Encode() []byte {
	body := make([]byte, 68)
	binary.BigEndian.PutUint16(body[0:2], protocolVersion)
	copy(body[4:20], padAETitle(ac.CalledAETitle))
	copy(body[20:36], padAETitle(ac.CallingAETitle))

	body = appendItem(body, itemApplicationContext, []byte(ac.ApplicationContext))
	for _, res := range ac.Results {
		payload := []byte{res.ID, 0, res.Result, 0}
		payload = appendItem(payload, itemTransferSyntax, []byte(res.TransferSyntax))
		body = appendItem(body, itemPresentationResult, payload)
	}
	body = appendItem(body, itemUserInformation,
		encodeUserInformation(ac.MaxPDULength, ac.ImplementationClassUID, ac.ImplementationVersion))
	return body
}

// ParseAssociateAC decodes an A-ASSOCIATE-AC body.
func ParseAssociateAC(body []byte) (*AssociateAC, error) {
	if len(body) < 68 {
		return nil, fmt.Errorf("associate-ac body too short: %d bytes", len(body))
	}

	ac := &AssociateAC{
		CalledAETitle:  trimAETitle(body[4:20]),
		CallingAETitle: trimAETitle(body[20:36]),
	}

	rest := body[68:]
	for len(rest) > 0 {
		itemType, payload, next, err := readItem(rest)
		if err != nil {
			return nil, err
		}
		rest = next

		switch itemType {
		case itemApplicationContext:
			ac.ApplicationContext = string(payload)
		case itemPresentationResult:
			if len(payload) < 4 {
				return nil, fmt.Errorf("presentation context result too short: %d bytes", len(payload))
			}
			res := PresentationContextResult{ID: payload[0], Result: payload[2]}
			sub := payload[4:]
			for len(sub) > 0 {
				subType, subPayload, next, err := readItem(sub)
				if err != nil {
					return nil, err
				}
				sub = next
				if subType == itemTransferSyntax {
					res.TransferSyntax = string(subPayload)
				}
			}
			ac.Results = append(ac.Results, res)
		case itemUserInformation:
			sub := payload
			for len(sub) > 0 {
				subType, subPayload, next, err := readItem(sub)
				if err != nil {
					return nil, err
				}
				sub = next
				switch subType {
				case subItemMaxLength:
					if len(subPayload) == 4 {
						ac.MaxPDULength = binary.BigEndian.Uint32(subPayload)
					}
				case subItemImplementationUID:
					ac.ImplementationClassUID = string(subPayload)
				case subItemVersionName:
					ac.ImplementationVersion = string(subPayload)
				}
			}
		}
	}

	return ac, nil
}

// EncodeAssociateRJ builds an A-ASSOCIATE-RJ body.
func EncodeAssociateRJ(result, source, reason uint8) []byte {
	return []byte{0, result, source, reason}
}

func parsePresentationContext(payload []byte) (*PresentationContext, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("presentation context too short: %d bytes", len(payload))
	}

	pc := &PresentationContext{ID: payload[0]}
	rest := payload[4:]
	for len(rest) > 0 {
		subType, subPayload, next, err := readItem(rest)
		if err != nil {
			return nil, err
		}
		rest = next

		switch subType {
		case itemAbstractSyntax:
			pc.AbstractSyntax = string(subPayload)
		case itemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, string(subPayload))
		}
	}
	return pc, nil
}

func (rq *AssociateRQ) parseUserInformation(payload []byte) error {
	for len(payload) > 0 {
		subType, subPayload, next, err := readItem(payload)
		if err != nil {
			return err
		}
		payload = next

		switch subType {
		case subItemMaxLength:
			if len(subPayload) == 4 {
				rq.MaxPDULength = binary.BigEndian.Uint32(subPayload)
			}
		case subItemImplementationUID:
			rq.ImplementationClassUID = string(subPayload)
		case subItemVersionName:
			rq.ImplementationVersion = string(subPayload)
		}
	}
	return nil
}

func encodeUserInformation(maxLength uint32, implementationUID, versionName string) []byte {
	maxBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(maxBuf, maxLength)

	var payload []byte
	payload = appendItem(payload, subItemMaxLength, maxBuf)
	payload = appendItem(payload, subItemImplementationUID, []byte(implementationUID))
	if versionName != "" {
		payload = appendItem(payload, subItemVersionName, []byte(versionName))
	}
	return payload
}

// readItem decodes one (type, reserved, 2-byte length, payload) variable item
// and returns the remainder of the buffer.
func readItem(buf []byte) (itemType uint8, payload, rest []byte, err error) {
	if len(buf) < 4 {
		return 0, nil, nil, fmt.Errorf("item header truncated: %d bytes", len(buf))
	}
	length := int(binary.BigEndian.Uint16(buf[2:4]))
	if len(buf) < 4+length {
		return 0, nil, nil, fmt.Errorf("item payload truncated: want %d, have %d", length, len(buf)-4)
	}
	return buf[0], buf[4 : 4+length], buf[4+length:], nil
}

func appendItem(buf []byte, itemType uint8, payload []byte) []byte {
	header := [4]byte{itemType, 0}
	binary.BigEndian.PutUint16(header[2:4], uint16(len(payload)))
	return append(append(buf, header[:]...), payload...)
}

func trimAETitle(b []byte) string {
	return strings.TrimSpace(string(b))
}

func padAETitle(title string) []byte {
	b := []byte(title)
	if len(b) > 16 {
		b = b[:16]
	}
	for len(b) < 16 {
		b = append(b, ' ')
	}
	return b
}
