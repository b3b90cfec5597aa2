package spatialmath

import "math"

// RodriguesToRotationMatrix converts an axis-angle (Rodrigues) 3-vector,
// whose direction is the rotation axis and magnitude the rotation angle in
// radians, to a proper orthonormal rotation matrix.
func RodriguesToRotationMatrix(r [3]float64) *RotationMatrix {
	theta := math.Sqrt(r[0]*r[0] + r[1]*r[1] + r[2]*r[2])
	if theta < 1e-12 {
		return &RotationMatrix{rows: [3][3]float64{
			{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		}}
	}
	kx, ky, kz := r[0]/theta, r[1]/theta, r[2]/theta
	s, c := math.Sin(theta), math.Cos(theta)
	t := 1 - c

	rows := [3][3]float64{
		{c + kx*kx*t, kx*ky*t - kz*s, kx*kz*t + ky*s},
		{ky*kx*t + kz*s, c + ky*ky*t, ky*kz*t - kx*s},
		{kz*kx*t - ky*s, kz*ky*t + kx*s, c + kz*kz*t},
	}
	return &RotationMatrix{rows: rows}
}

// RotationMatrixToRodrigues is the inverse of RodriguesToRotationMatrix.
func RotationMatrixToRodrigues(r *RotationMatrix) [3]float64 {
	m := r.rows
	trace := m[0][0] + m[1][1] + m[2][2]
	cosTheta := (trace - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)

	if theta < 1e-9 {
		return [3]float64{0, 0, 0}
	}

	if math.Pi-theta < 1e-6 {
		// Near-pi rotations: sin(theta) ~ 0, recover the axis from the
		// symmetric part of (R+I)/2 instead of the antisymmetric part.
		axis := [3]float64{
			math.Sqrt(math.Max(0, (m[0][0]+1)/2)),
			math.Sqrt(math.Max(0, (m[1][1]+1)/2)),
			math.Sqrt(math.Max(0, (m[2][2]+1)/2)),
		}
		// Fix signs using off-diagonal terms.
		if m[0][1]+m[1][0] < 0 {
			axis[1] = -axis[1]
		}
		if m[0][2]+m[2][0] < 0 {
			axis[2] = -axis[2]
		}
		return [3]float64{axis[0] * theta, axis[1] * theta, axis[2] * theta}
	}

	s := 2 * math.Sin(theta)
	axis := [3]float64{
		(m[2][1] - m[1][2]) / s,
		(m[0][2] - m[2][0]) / s,
		(m[1][0] - m[0][1]) / s,
	}
	return [3]float64{axis[0] * theta, axis[1] * theta, axis[2] * theta}
}
