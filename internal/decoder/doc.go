// Package decoder extracts typed vertex, UV, and index arrays straight from a
// tile's raw binary buffer.
//
// An Accessor describes where one attribute lives inside the buffer: its
// element Kind, the byte window of its buffer view, the offset within that
// view, the stride between elements, and the element count. Decoding reads
// little-endian values in place with no intermediate object model, and every
// read is range-checked up front so a malformed accessor fails with a
// faults.ErrDecode error instead of a panic.
package decoder
