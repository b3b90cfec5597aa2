package bundle

import "github.com/mocap-toolkit/corecalib/spatialmath"

// residuals projects every observation's 3-D point through its camera's
// current (in-progress) pose and fixed intrinsics, returning
// [u'-u, v'-v] pairs (spec §4.5). Distortion coefficients are held fixed
// — they are never part of the parameter vector.
func residuals(x []float64, l *paramLayout, intrinsicsOf map[int]cameraModel) []float64 {
	out := make([]float64, 0, l.numResiduals())
	for _, o := range l.obs {
		ci := l.camIndexOf[o.Port]
		base := cameraParamCount * ci
		rot := spatialmath.RodriguesToRotationMatrix([3]float64{x[base], x[base+1], x[base+2]}).Rows()
		tx, ty, tz := x[base+3], x[base+4], x[base+5]

		pi := l.pointIndexOf[pointKey{o.SyncIndex, o.PointID}]
		px, py, pz := unpackedPoint(x, l, pi)

		cx := rot[0][0]*px + rot[0][1]*py + rot[0][2]*pz + tx
		cy := rot[1][0]*px + rot[1][1]*py + rot[1][2]*pz + ty
		cz := rot[2][0]*px + rot[2][1]*py + rot[2][2]*pz + tz
		if cz <= 1e-9 {
			cz = 1e-9
		}

		in := intrinsicsOf[o.Port]
		nx, ny := cx/cz, cy/cz
		dx, dy := in.distort(nx, ny)
		u, v := in.fx*dx+in.cx, in.fy*dy+in.cy

		out = append(out, u-o.ImgLocX, v-o.ImgLocY)
	}
	return out
}

// sparsityCols declares that residual row `row` (belonging to observation
// row/2) depends only on its camera's 6-float block and its point's
// 3-float block (spec §4.5 Jacobian sparsity).
func sparsityCols(row int, l *paramLayout) []int {
	o := l.obs[row/2]
	ci := l.camIndexOf[o.Port]
	pi := l.pointIndexOf[pointKey{o.SyncIndex, o.PointID}]
	camBase := cameraParamCount * ci
	pointBase := cameraParamCount*len(l.camOrder) + 3*pi

	cols := make([]int, 0, cameraParamCount+3)
	for i := 0; i < cameraParamCount; i++ {
		cols = append(cols, camBase+i)
	}
	for i := 0; i < 3; i++ {
		cols = append(cols, pointBase+i)
	}
	return cols
}

// cameraModel is the fixed (non-optimized) projection data for one
// camera: focal length, principal point, and distortion.
type cameraModel struct {
	fx, fy, cx, cy float64
	distort        func(x, y float64) (float64, float64)
}

