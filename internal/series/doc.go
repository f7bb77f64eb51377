// Package series decodes raw series descriptors into in-memory series.
//
// A Reader opens the image named by a grouping.Descriptor (PNG stills or
// NIfTI volumes), narrows the element type with ndarray.DownType, collapses
// the DICOM JSON sidecar into a plain keyword mapping, and derives voxel
// spacing and the subject, session and modality identifiers from the uid.
package series
