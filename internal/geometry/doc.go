// Package geometry converts raw decoded primitives into host-ready meshes.
//
// Normalize applies the fixed glTF (Y-up) to host (Z-up) axis change, flips
// the V texture coordinate, groups indices into triangles, and expands
// per-face-loop UVs. It only accepts decoder.Primitive values and only
// produces Mesh values, so already-normalized data can never be normalized a
// second time.
package geometry
