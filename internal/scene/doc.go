// Package scene defines the boundary between the importer and a destination
// scene. Only the importer talks to a Host; the other pipeline stages never
// see it.
package scene
