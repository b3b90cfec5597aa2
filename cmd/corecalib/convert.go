package main

import (
	"github.com/golang/geo/r3"

	"github.com/mocap-toolkit/corecalib/spatialmath"
)

func spatialmathRotationFromRows(rows [3][3]float64) (*spatialmath.RotationMatrix, error) {
	return spatialmath.NewRotationMatrix(rows)
}

func vectorFrom(xyz [3]float64) r3.Vector {
	return r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}
}
