package geometry

import (
	dmat "github.com/flywave/go3d/float64/mat4"
	"github.com/flywave/go3d/float64/quaternion"
	dvec3 "github.com/flywave/go3d/float64/vec3"
	dvec4 "github.com/flywave/go3d/float64/vec4"
)

// Matrices are column-major, matching glTF: m[col][row].

// axisToHost maps glTF (x, y, z) to host (x, -z, y).
var axisToHost = dmat.T{
	{1, 0, 0, 0},
	{0, 0, 1, 0},
	{0, -1, 0, 0},
	{0, 0, 0, 1},
}

// axisFromHost is the inverse of axisToHost: (x, y, z) -> (x, z, -y).
var axisFromHost = dmat.T{
	{1, 0, 0, 0},
	{0, 0, -1, 0},
	{0, 1, 0, 0},
	{0, 0, 0, 1},
}

// Identity returns the identity transform.
func Identity() dmat.T {
	return dmat.Ident
}

// FromColumnMajor builds a transform from a glTF node matrix.
func FromColumnMajor(m [16]float64) dmat.T {
	var out dmat.T
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = m[c*4+r]
		}
	}
	return out
}

// ColumnMajor flattens a transform back into glTF node matrix order.
func ColumnMajor(t dmat.T) [16]float64 {
	var out [16]float64
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c*4+r] = t[c][r]
		}
	}
	return out
}

// Compose builds T * R * S from glTF translation, rotation quaternion
// (x, y, z, w), and scale.
func Compose(translation [3]float64, rotation [4]float64, scale [3]float64) dmat.T {
	quat := quaternion.FromVec4(&dvec4.T{rotation[0], rotation[1], rotation[2], rotation[3]})
	var rot dmat.T
	rot.AssignQuaternion(&quat)

	scaling := dmat.Ident
	scaling.ScaleVec3(&dvec3.T{scale[0], scale[1], scale[2]})

	var out dmat.T
	out.AssignMul(&rot, &scaling)
	out.SetTranslation(&dvec3.T{translation[0], translation[1], translation[2]})
	return out
}

// ToHostAxes conjugates a glTF-space transform into host space.
func ToHostAxes(t dmat.T) dmat.T {
	var toHost, out dmat.T
	toHost.AssignMul(&axisToHost, &t)
	out.AssignMul(&toHost, &axisFromHost)
	return out
}
