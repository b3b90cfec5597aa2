package spatialmath

import (
	"gonum.org/v1/gonum/mat"

	"github.com/mocap-toolkit/corecalib/corerrors"
)

// OrthonormalizeRotation finds the nearest proper rotation matrix to an
// arbitrary 3x3 matrix via the polar decomposition M = U*S*V^T -> R =
// U*V^T, flipping the sign of U's last column when det(U*V^T) is
// negative so the result always has det=+1. Used wherever a rotation is
// recovered from an algebraic construction that doesn't guarantee
// orthonormality on its own (homography decomposition in
// rimage/transform's EstimatePlanarPose, the relative-pose seed in
// `stereo`).
func OrthonormalizeRotation(m [3][3]float64) (*RotationMatrix, error) {
	a := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			a.Set(i, j, m[i][j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, &corerrors.ShapeOrInvariantViolation{What: "orthonormalize: SVD factorization failed"}
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())

	if det3FromDense(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}

	var rows [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rows[i][j] = r.At(i, j)
		}
	}
	return NewRotationMatrix(rows)
}

func det3FromDense(m *mat.Dense) float64 {
	return m.At(0, 0)*(m.At(1, 1)*m.At(2, 2)-m.At(1, 2)*m.At(2, 1)) -
		m.At(0, 1)*(m.At(1, 0)*m.At(2, 2)-m.At(1, 2)*m.At(2, 0)) +
		m.At(0, 2)*(m.At(1, 0)*m.At(2, 1)-m.At(1, 1)*m.At(2, 0))
}
