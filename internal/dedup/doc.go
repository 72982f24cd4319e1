// Package dedup realizes each distinct texture asset as exactly one material
// in the destination scene.
//
// A MaterialKey identifies a texture by file metadata (absolute path, size,
// modification time) rather than by content. Two files with identical pixels
// at different paths produce two materials; a file rewritten in place with the
// same size inside the same mtime tick would be mistaken for the old one.
// Both trade-offs are accepted to keep key computation to a single stat.
package dedup
