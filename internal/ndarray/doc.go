// Package ndarray holds the in-memory pixel arrays produced by the image
// decoders and consumed by the geometry normalizer.
//
// An Array is a dense, row-major block of values tagged with the element type
// it was decoded from. Values are kept as float64 so every supported element
// type (up to 32-bit integers and float32) round-trips exactly; the DType tag
// records what the data should be serialized as. Views give strided,
// copy-free access for axis flips, swaps and slicing, and are materialized
// back into an Array when a transform is complete.
package ndarray
