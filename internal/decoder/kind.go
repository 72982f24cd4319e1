package decoder

import (
	"fmt"

	"tilebatch/internal/faults"
)

// Component types as written in glTF accessors.
const (
	ComponentUnsignedShort = 5123
	ComponentUnsignedInt   = 5125
	ComponentFloat         = 5126
)

// Element types as written in glTF accessors.
const (
	ElementScalar = "SCALAR"
	ElementVec2   = "VEC2"
	ElementVec3   = "VEC3"
)

// Kind is the closed set of (component, element) pairs the decoder supports.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindVec3Float32
	KindVec2Float32
	KindScalarUint16
	KindScalarUint32
	KindVec3Uint16
	KindVec3Uint32
)

// KindFor maps a descriptor's component type and element type to a Kind.
func KindFor(componentType int, elementType string) (Kind, error) {
	switch {
	case componentType == ComponentFloat && elementType == ElementVec3:
		return KindVec3Float32, nil
	case componentType == ComponentFloat && elementType == ElementVec2:
		return KindVec2Float32, nil
	case componentType == ComponentUnsignedShort && elementType == ElementScalar:
		return KindScalarUint16, nil
	case componentType == ComponentUnsignedInt && elementType == ElementScalar:
		return KindScalarUint32, nil
	case componentType == ComponentUnsignedShort && elementType == ElementVec3:
		return KindVec3Uint16, nil
	case componentType == ComponentUnsignedInt && elementType == ElementVec3:
		return KindVec3Uint32, nil
	default:
		return KindInvalid, faults.Wrap(faults.ErrDecode, "", "accessor kind",
			fmt.Sprintf("unsupported component %d with element %q", componentType, elementType), nil)
	}
}

// Components is the number of scalars per element.
func (k Kind) Components() int {
	switch k {
	case KindVec3Float32, KindVec3Uint16, KindVec3Uint32:
		return 3
	case KindVec2Float32:
		return 2
	case KindScalarUint16, KindScalarUint32:
		return 1
	default:
		return 0
	}
}

// ComponentSize is the byte size of one scalar.
func (k Kind) ComponentSize() int {
	switch k {
	case KindScalarUint16, KindVec3Uint16:
		return 2
	case KindVec3Float32, KindVec2Float32, KindScalarUint32, KindVec3Uint32:
		return 4
	default:
		return 0
	}
}

// ElementSize is the packed byte size of one element.
func (k Kind) ElementSize() int {
	return k.Components() * k.ComponentSize()
}

func (k Kind) isIndex() bool {
	switch k {
	case KindScalarUint16, KindScalarUint32, KindVec3Uint16, KindVec3Uint32:
		return true
	default:
		return false
	}
}

func (k Kind) String() string {
	switch k {
	case KindVec3Float32:
		return "vec3<float32>"
	case KindVec2Float32:
		return "vec2<float32>"
	case KindScalarUint16:
		return "scalar<uint16>"
	case KindScalarUint32:
		return "scalar<uint32>"
	case KindVec3Uint16:
		return "vec3<uint16>"
	case KindVec3Uint32:
		return "vec3<uint32>"
	default:
		return "invalid"
	}
}
