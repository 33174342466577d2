// Package object extracts the identifying and descriptive metadata of a
// received DICOM data set and assembles Part-10 file content for storage.
package object

import (
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/openpacs/pacsd/pkg/uid"
)

// UnknownValue substitutes missing non-key descriptive identifiers.
const UnknownValue = "UNKNOWN"

// Object carries the hierarchy keys and descriptive fields of one received
// instance. Natural keys are always non-empty: missing study, series, or SOP
// instance UIDs are replaced with generated ones at extraction time so the
// storage path and the metadata rows agree.
type Object struct {
	PatientID        string
	PatientName      string
	PatientBirthDate string
	PatientSex       string

	StudyInstanceUID string
	StudyID          string
	StudyDate        string
	StudyTime        string
	StudyDescription string
	AccessionNumber  string
	Modality         string

	SeriesInstanceUID string
	SeriesNumber      *int
	SeriesDescription string
	BodyPartExamined  string

	SOPInstanceUID    string
	SOPClassUID       string
	InstanceNumber    *int
	TransferSyntaxUID string

	ImageRows     *int
	ImageColumns  *int
	BitsAllocated *int
}

// FromDataset extracts an Object from a parsed data set. transferSyntax is
// the negotiated transfer syntax of the presentation context the data set
// arrived on.
func FromDataset(ds dicom.Dataset, transferSyntax string) *Object {
	obj := &Object{
		PatientID:         stringOr(ds, tag.PatientID, UnknownValue),
		PatientName:       stringOr(ds, tag.PatientName, UnknownValue),
		PatientBirthDate:  stringOr(ds, tag.PatientBirthDate, ""),
		PatientSex:        stringOr(ds, tag.PatientSex, ""),
		StudyInstanceUID:  stringOr(ds, tag.StudyInstanceUID, ""),
		StudyID:           stringOr(ds, tag.StudyID, ""),
		StudyDate:         stringOr(ds, tag.StudyDate, ""),
		StudyTime:         stringOr(ds, tag.StudyTime, ""),
		StudyDescription:  stringOr(ds, tag.StudyDescription, ""),
		AccessionNumber:   stringOr(ds, tag.AccessionNumber, ""),
		Modality:          stringOr(ds, tag.Modality, ""),
		SeriesInstanceUID: stringOr(ds, tag.SeriesInstanceUID, ""),
		SeriesNumber:      intValue(ds, tag.SeriesNumber),
		SeriesDescription: stringOr(ds, tag.SeriesDescription, ""),
		BodyPartExamined:  stringOr(ds, tag.BodyPartExamined, ""),
		SOPInstanceUID:    stringOr(ds, tag.SOPInstanceUID, ""),
		SOPClassUID:       stringOr(ds, tag.SOPClassUID, ""),
		InstanceNumber:    intValue(ds, tag.InstanceNumber),
		TransferSyntaxUID: transferSyntax,
		ImageRows:         intValue(ds, tag.Rows),
		ImageColumns:      intValue(ds, tag.Columns),
		BitsAllocated:     intValue(ds, tag.BitsAllocated),
	}

	// Every level of the hierarchy must be uniquely keyed even when the
	// sender omitted the identifier.
	if obj.StudyInstanceUID == "" {
		obj.StudyInstanceUID = uid.New()
	}
	if obj.SeriesInstanceUID == "" {
		obj.SeriesInstanceUID = uid.New()
	}
	if obj.SOPInstanceUID == "" {
		obj.SOPInstanceUID = uid.New()
	}

	return obj
}

// stringValue returns the first string of the element, trimmed, and whether a
// non-empty value was present.
func stringValue(ds dicom.Dataset, t tag.Tag) (string, bool) {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return "", false
	}
	ss, ok := el.Value.GetValue().([]string)
	if !ok || len(ss) == 0 {
		return "", false
	}
	v := strings.TrimSpace(ss[0])
	return v, v != ""
}

func stringOr(ds dicom.Dataset, t tag.Tag, fallback string) string {
	if v, ok := stringValue(ds, t); ok {
		return v
	}
	return fallback
}

// intValue handles both binary (US) and integer-string (IS) representations.
func intValue(ds dicom.Dataset, t tag.Tag) *int {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return nil
	}
	switch vs := el.Value.GetValue().(type) {
	case []int:
		if len(vs) > 0 {
			v := vs[0]
			return &v
		}
	case []string:
		if len(vs) > 0 {
			if v, err := strconv.Atoi(strings.TrimSpace(vs[0])); err == nil {
				return &v
			}
		}
	}
	return nil
}
