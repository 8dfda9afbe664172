package contact

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Transform is a rigid-body pose: a rotation followed by a translation.
// The zero value is the identity.
type Transform struct {
	Translation r3.Vec      `json:"translation"`
	Rotation    r3.Rotation `json:"rotation"`
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rotation: r3.Rotation{Real: 1}}
}

// Translate returns a pure translation.
func Translate(x, y, z float64) Transform {
	return Transform{Translation: r3.Vec{X: x, Y: y, Z: z}, Rotation: r3.Rotation{Real: 1}}
}

// RotateAbout returns a pure rotation of angle radians about axis.
func RotateAbout(angle float64, axis r3.Vec) Transform {
	return Transform{Rotation: r3.NewRotation(angle, axis)}
}

func (t Transform) rotation() r3.Rotation {
	if t.Rotation == (r3.Rotation{}) {
		return r3.Rotation{Real: 1}
	}
	return t.Rotation
}

// Apply maps a point expressed in the transform's child frame into its parent frame.
func (t Transform) Apply(p r3.Vec) r3.Vec {
	return r3.Add(t.rotation().Rotate(p), t.Translation)
}

// Compose returns t*u, the transform that applies u first and then t.
func (t Transform) Compose(u Transform) Transform {
	q := quat.Mul(quat.Number(t.rotation()), quat.Number(u.rotation()))
	return Transform{
		Translation: t.Apply(u.Translation),
		Rotation:    r3.Rotation(q),
	}
}
