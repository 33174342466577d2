// Package uid provides DICOM unique identifier generation and the catalogs of
// SOP classes and transfer syntaxes this receiver negotiates.
package uid

import (
	"math/big"

	"github.com/google/uuid"
)

// ApplicationContext defines the DICOM application-level message exchange rules
// advertised during association negotiation.
const ApplicationContext = "1.2.840.10008.3.1.1.1"

// Verification is the C-ECHO SOP class.
const Verification = "1.2.840.10008.1.1"

// Transfer syntaxes accepted for incoming data sets.
const (
	ImplicitVRLittleEndian = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"
	ExplicitVRBigEndian    = "1.2.840.10008.1.2.2"
	JPEGBaseline           = "1.2.840.10008.1.2.4.50"
	JPEGLossless           = "1.2.840.10008.1.2.4.70"
	JPEG2000               = "1.2.840.10008.1.2.4.90"
)

// Storage SOP classes accepted for C-STORE (DICOM PS3.4 Annex B).
const (
	ComputedRadiographyImageStorage = "1.2.840.10008.5.1.4.1.1.1"
	DigitalXRayImageStorage         = "1.2.840.10008.5.1.4.1.1.1.1"
	CTImageStorage                  = "1.2.840.10008.5.1.4.1.1.2"
	MRImageStorage                  = "1.2.840.10008.5.1.4.1.1.4"
	SecondaryCaptureImageStorage    = "1.2.840.10008.5.1.4.1.1.7"
	XRayAngiographicImageStorage    = "1.2.840.10008.5.1.4.1.1.12.1"
	NuclearMedicineImageStorage     = "1.2.840.10008.5.1.4.1.1.20"
	PETImageStorage                 = "1.2.840.10008.5.1.4.1.1.128"
	RTImageStorage                  = "1.2.840.10008.5.1.4.1.1.481.1"
)

// Implementation identity reported in negotiation and file meta headers.
const (
	ImplementationClassUID    = "2.25.111173937813085577130942948245717698939"
	ImplementationVersionName = "PACSD_0_1"
)

// StorageClasses returns the storage SOP classes this receiver accepts.
func StorageClasses() []string {
	return []string{
		CTImageStorage,
		MRImageStorage,
		ComputedRadiographyImageStorage,
		SecondaryCaptureImageStorage,
		DigitalXRayImageStorage,
		XRayAngiographicImageStorage,
		NuclearMedicineImageStorage,
		PETImageStorage,
		RTImageStorage,
	}
}

// TransferSyntaxes returns the transfer syntaxes this receiver accepts,
// in preference order.
func TransferSyntaxes() []string {
	return []string{
		ImplicitVRLittleEndian,
		ExplicitVRLittleEndian,
		ExplicitVRBigEndian,
		JPEGBaseline,
		JPEGLossless,
		JPEG2000,
	}
}

// New returns a freshly generated, protocol-valid UID under the UUID-derived
// "2.25" root (PS3.5 B.2): the 128-bit UUID rendered as a decimal integer.
func New() string {
	u := uuid.New()
	var n big.Int
	n.SetBytes(u[:])
	return "2.25." + n.String()
}
