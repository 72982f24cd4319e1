// Package manifest discovers tile descriptors on disk and reads each one into
// an immutable Tile: its identifier, the external buffer it references, the
// accessor layouts and node transforms of its primitives, and the texture
// references of its materials.
//
// Descriptors are parsed as plain glTF JSON; buffers are never loaded here.
package manifest
