// Package layout writes the prepared dataset tree.
//
// Each written series gets a directory under series/ holding its identifiers,
// a gzip-compressed NumPy array, shape, spacing and collapsed tags. The
// sessions/ and subjects/ trees are aggregate indexes rebuilt after a run from
// the list of written series.
//
// Compressed files use gzip level 3 with a zero modification time so that
// re-preparing identical input produces byte-identical output.
package layout
