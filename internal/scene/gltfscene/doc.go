// Package gltfscene accumulates committed tiles into a single binary glTF
// file.
//
// The scene has one root node per group, one child node per tile, and one
// grandchild node per mesh. Each material instance becomes one material,
// texture, and image; the image references the source texture file relative
// to the output. Material keys and tile ids are kept in node and material
// extras so a later run can reopen the file, re-seed its registry, and keep
// extending the same scene. Coordinates are written in host conventions
// (Z up, V flipped) as committed.
package gltfscene
