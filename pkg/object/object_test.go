package object

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/openpacs/pacsd/pkg/uid"
)

func mustElement(t *testing.T, tg tag.Tag, value interface{}) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, value)
	require.NoError(t, err)
	return el
}

func TestFromDataset_ExtractsFields(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.PatientID, []string{"P1"}),
		mustElement(t, tag.PatientName, []string{"DOE^JOHN"}),
		mustElement(t, tag.PatientBirthDate, []string{"19700101"}),
		mustElement(t, tag.StudyInstanceUID, []string{"1.2.3"}),
		mustElement(t, tag.StudyDescription, []string{"CHEST CT"}),
		mustElement(t, tag.Modality, []string{"CT"}),
		mustElement(t, tag.SeriesInstanceUID, []string{"1.2.3.4"}),
		mustElement(t, tag.SeriesNumber, []string{"3"}),
		mustElement(t, tag.SOPInstanceUID, []string{"1.2.3.4.5"}),
		mustElement(t, tag.SOPClassUID, []string{uid.CTImageStorage}),
		mustElement(t, tag.InstanceNumber, []string{"12"}),
		mustElement(t, tag.Rows, []int{512}),
		mustElement(t, tag.Columns, []int{512}),
		mustElement(t, tag.BitsAllocated, []int{16}),
	}}

	obj := FromDataset(ds, uid.ImplicitVRLittleEndian)

	assert.Equal(t, "P1", obj.PatientID)
	assert.Equal(t, "DOE^JOHN", obj.PatientName)
	assert.Equal(t, "19700101", obj.PatientBirthDate)
	assert.Equal(t, "1.2.3", obj.StudyInstanceUID)
	assert.Equal(t, "CHEST CT", obj.StudyDescription)
	assert.Equal(t, "CT", obj.Modality)
	assert.Equal(t, "1.2.3.4", obj.SeriesInstanceUID)
	assert.Equal(t, "1.2.3.4.5", obj.SOPInstanceUID)
	assert.Equal(t, uid.CTImageStorage, obj.SOPClassUID)
	assert.Equal(t, uid.ImplicitVRLittleEndian, obj.TransferSyntaxUID)

	require.NotNil(t, obj.SeriesNumber)
	assert.Equal(t, 3, *obj.SeriesNumber)
	require.NotNil(t, obj.InstanceNumber)
	assert.Equal(t, 12, *obj.InstanceNumber)
	require.NotNil(t, obj.ImageRows)
	assert.Equal(t, 512, *obj.ImageRows)
	require.NotNil(t, obj.BitsAllocated)
	assert.Equal(t, 16, *obj.BitsAllocated)
}

func TestFromDataset_Fallbacks(t *testing.T) {
	obj := FromDataset(dicom.Dataset{}, uid.ImplicitVRLittleEndian)

	assert.Equal(t, UnknownValue, obj.PatientID)
	assert.Equal(t, UnknownValue, obj.PatientName)
	assert.Empty(t, obj.PatientBirthDate)
	assert.Nil(t, obj.SeriesNumber)
	assert.Nil(t, obj.ImageRows)

	// Hierarchy keys are generated when the sender omitted them.
	for _, key := range []string{obj.StudyInstanceUID, obj.SeriesInstanceUID, obj.SOPInstanceUID} {
		assert.True(t, strings.HasPrefix(key, "2.25."), "generated key %q missing 2.25 root", key)
	}
	assert.NotEqual(t, obj.StudyInstanceUID, obj.SeriesInstanceUID)
	assert.NotEqual(t, obj.SeriesInstanceUID, obj.SOPInstanceUID)
}

func TestFromDataset_TrimsPadding(t *testing.T) {
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustElement(t, tag.PatientID, []string{"P1 "}),
		mustElement(t, tag.StudyInstanceUID, []string{"1.2.3"}),
		mustElement(t, tag.SeriesInstanceUID, []string{"1.2.3.4"}),
		mustElement(t, tag.SOPInstanceUID, []string{"1.2.3.4.5"}),
	}}

	obj := FromDataset(ds, uid.ImplicitVRLittleEndian)
	assert.Equal(t, "P1", obj.PatientID)
}

// implicitElement encodes one implicit VR little endian element.
func implicitElement(group, element uint16, value []byte) []byte {
	if len(value)%2 != 0 {
		value = append(value, 0x00)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], group)
	binary.LittleEndian.PutUint16(buf[2:4], element)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(value)))
	return append(buf, value...)
}

func TestPart10Bytes_Structure(t *testing.T) {
	dataset := implicitElement(0x0010, 0x0020, []byte("P1"))
	out := Part10Bytes(uid.CTImageStorage, "1.2.3.4.5", uid.ImplicitVRLittleEndian, dataset)

	require.Greater(t, len(out), 132+len(dataset))
	assert.Equal(t, make([]byte, 128), out[:128], "preamble must be zeroed")
	assert.Equal(t, []byte("DICM"), out[128:132])

	// First meta element is the group length, explicit VR UL.
	assert.Equal(t, uint16(0x0002), binary.LittleEndian.Uint16(out[132:134]))
	assert.Equal(t, uint16(0x0000), binary.LittleEndian.Uint16(out[134:136]))
	assert.Equal(t, []byte("UL"), out[136:138])
	assert.Equal(t, uint16(4), binary.LittleEndian.Uint16(out[138:140]))

	// The declared group length covers exactly the remaining meta elements.
	groupLength := binary.LittleEndian.Uint32(out[140:144])
	assert.Equal(t, len(out)-144-len(dataset), int(groupLength))

	// The raw data set rides along unmodified at the tail.
	assert.True(t, bytes.HasSuffix(out, dataset))
	assert.Contains(t, string(out[:len(out)-len(dataset)]), uid.ImplicitVRLittleEndian)
}

func TestPart10Bytes_ParsesBack(t *testing.T) {
	var dataset []byte
	dataset = append(dataset, implicitElement(0x0008, 0x0016, []byte(uid.CTImageStorage))...)
	dataset = append(dataset, implicitElement(0x0008, 0x0018, []byte("1.2.3.4.5"))...)
	dataset = append(dataset, implicitElement(0x0010, 0x0020, []byte("P1"))...)

	out := Part10Bytes(uid.CTImageStorage, "1.2.3.4.5", uid.ImplicitVRLittleEndian, dataset)

	ds, err := dicom.Parse(bytes.NewReader(out), int64(len(out)), nil, dicom.SkipPixelData())
	require.NoError(t, err)

	obj := FromDataset(ds, uid.ImplicitVRLittleEndian)
	assert.Equal(t, "P1", obj.PatientID)
	assert.Equal(t, "1.2.3.4.5", obj.SOPInstanceUID)
	assert.Equal(t, uid.CTImageStorage, obj.SOPClassUID)
}
