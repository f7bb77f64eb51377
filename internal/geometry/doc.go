// Package geometry normalizes CT volumes: a per-series axis rotation looked
// up from a precomputed table, followed by trimming of blank or
// artifact-like border slices from all six faces of the volume.
package geometry
