package fitter

import (
	"math"
	"testing"
)

func synthesize(width, height int, comp Component, zero float64) []float32 {
	data := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data[y*width+x] = float32(zero + gaussianValue(float64(x), float64(y), comp))
		}
	}
	return data
}

func TestFitImageRecoversSingleComponent(t *testing.T) {
	truth := Component{Amplitude: 10, CenterX: 8, CenterY: 8, FWHMMajor: 4, FWHMMinor: 3, PositionAngleDeg: 20}
	width, height := 16, 16
	data := synthesize(width, height, truth, 0)

	result, err := FitImage(Request{
		Data: data, Width: width, Height: height,
		Estimates: []Component{{Amplitude: 9, CenterX: 7.5, CenterY: 7.5, FWHMMajor: 4.5, FWHMMinor: 3.2, PositionAngleDeg: 15}},
	})
	if err != nil {
		t.Fatalf("FitImage: %v", err)
	}
	got := result.Components[0]
	if math.Abs(got.Amplitude-truth.Amplitude) > 1.0 {
		t.Fatalf("amplitude off: want ~%v got %v", truth.Amplitude, got.Amplitude)
	}
	if math.Abs(got.CenterX-truth.CenterX) > 0.5 || math.Abs(got.CenterY-truth.CenterY) > 0.5 {
		t.Fatalf("center off: want (%v,%v) got (%v,%v)", truth.CenterX, truth.CenterY, got.CenterX, got.CenterY)
	}

	maxResidual := 0.0
	for _, r := range result.Residual {
		if math.Abs(float64(r)) > maxResidual {
			maxResidual = math.Abs(float64(r))
		}
	}
	if maxResidual > 1.0 {
		t.Fatalf("want small residual after fit, got max abs residual %v", maxResidual)
	}
}

func TestFitImageRejectsNoEstimates(t *testing.T) {
	_, err := FitImage(Request{Data: make([]float32, 4), Width: 2, Height: 2})
	if err == nil {
		t.Fatalf("expected error with zero estimates")
	}
}
