package object

import (
	"encoding/binary"

	"github.com/openpacs/pacsd/pkg/uid"
)

// Part10Bytes wraps a raw data set received over an association into DICOM
// Part-10 file content: the 128-byte preamble, the "DICM" magic, and a file
// meta information group (explicit VR little endian) declaring the transfer
// syntax the data set is encoded in. sopClassUID and sopInstanceUID come from
// the store request's command set and may be empty.
func Part10Bytes(sopClassUID, sopInstanceUID, transferSyntax string, dataset []byte) []byte {
	var meta []byte
	meta = appendMetaOB(meta, 0x0001, []byte{0x00, 0x01}) // FileMetaInformationVersion
	meta = appendMetaUI(meta, 0x0002, sopClassUID)        // MediaStorageSOPClassUID
	meta = appendMetaUI(meta, 0x0003, sopInstanceUID)     // MediaStorageSOPInstanceUID
	meta = appendMetaUI(meta, 0x0010, transferSyntax)     // TransferSyntaxUID
	meta = appendMetaUI(meta, 0x0012, uid.ImplementationClassUID)
	meta = appendMetaSH(meta, 0x0013, uid.ImplementationVersionName)

	out := make([]byte, 0, 132+12+len(meta)+len(dataset))
	out = append(out, make([]byte, 128)...)
	out = append(out, 'D', 'I', 'C', 'M')

	// FileMetaInformationGroupLength covers everything after its own value.
	groupLength := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupLength, uint32(len(meta)))
	out = appendMetaShortVR(out, 0x0000, "UL", groupLength)

	out = append(out, meta...)
	return append(out, dataset...)
}

// appendMetaShortVR appends a group-0002 element using the short explicit VR
// form: tag, two-byte VR, two-byte length.
func appendMetaShortVR(buf []byte, element uint16, vr string, value []byte) []byte {
	header := make([]byte, 8)
	binary.LittleEndian.PutUint16(header[0:2], 0x0002)
	binary.LittleEndian.PutUint16(header[2:4], element)
	header[4] = vr[0]
	header[5] = vr[1]
	binary.LittleEndian.PutUint16(header[6:8], uint16(len(value)))
	return append(append(buf, header...), value...)
}

// appendMetaOB appends a group-0002 OB element, which uses the long explicit
// VR form: tag, VR, two reserved bytes, four-byte length.
func appendMetaOB(buf []byte, element uint16, value []byte) []byte {
	header := make([]byte, 12)
	binary.LittleEndian.PutUint16(header[0:2], 0x0002)
	binary.LittleEndian.PutUint16(header[2:4], element)
	header[4] = 'O'
	header[5] = 'B'
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(value)))
	return append(append(buf, header...), value...)
}

func appendMetaUI(buf []byte, element uint16, value string) []byte {
	return appendMetaShortVR(buf, element, "UI", padEven([]byte(value), 0x00))
}

func appendMetaSH(buf []byte, element uint16, value string) []byte {
	return appendMetaShortVR(buf, element, "SH", padEven([]byte(value), ' '))
}

func padEven(b []byte, pad byte) []byte {
	if len(b)%2 != 0 {
		b = append(b, pad)
	}
	return b
}
