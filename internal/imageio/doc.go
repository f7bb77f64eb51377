// Package imageio decodes the two pixel containers found in the dataset:
// PNG still images and NIfTI-1 volumes. Both produce ndarray values whose
// axis order matches what the dataset's Python tooling reports, so geometry
// corrections keyed by series id line up.
package imageio
