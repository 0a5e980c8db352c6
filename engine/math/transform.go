package math

/**
 * @brief Represents the transform of an object in the world. Only the
 * position, rotation and scale are kept so the value can be persisted
 * as part of scenes and prefabs.
 */
type Transform struct {
	/** @brief The position in the world. */
	Position Vec3 `json:"position" yaml:"position"`
	/** @brief The rotation in the world. */
	Rotation Quaternion `json:"rotation" yaml:"rotation"`
	/** @brief The scale in the world. */
	Scale Vec3 `json:"scale" yaml:"scale"`
}

func TransformCreate() Transform {
	return TransformFromPositionRotationScale(NewVec3Zero(), NewQuatIdentity(), NewVec3One())
}

func TransformFromPosition(position Vec3) Transform {
	return TransformFromPositionRotationScale(position, NewQuatIdentity(), NewVec3One())
}

func TransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) Transform {
	return Transform{
		Position: position,
		Rotation: rotation,
		Scale:    scale,
	}
}

func (t *Transform) Translate(translation Vec3) {
	t.Position = t.Position.Add(translation)
}

func (t *Transform) Rotate(rotation Quaternion) {
	t.Rotation = t.Rotation.Mul(rotation)
}

func (t *Transform) ScaleIt(scale Vec3) {
	t.Scale = t.Scale.Mul(scale)
}
