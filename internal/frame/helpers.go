package frame

import (
	"math"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/loader"
)

func fullBounds(w, h int) loader.Slicer {
	return loader.Slicer{XMin: 0, YMin: 0, XMax: w, YMax: h}
}

func errNotConnected() error {
	return errs.New(errs.ComputationCancelled, "frame is disconnected")
}

func mathNaN() float64 { return math.NaN() }
