package regionhandler

import (
	"context"

	"github.com/google/uuid"

	"github.com/pspoerri/carta-compute/internal/config"
	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/frame"
	"github.com/pspoerri/carta-compute/internal/generator/fitter"
	"github.com/pspoerri/carta-compute/internal/generator/moment"
	"github.com/pspoerri/carta-compute/internal/generator/pv"
	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/loader/memraster"
	"github.com/pspoerri/carta-compute/internal/region"
)

// syntheticFileIDBase is the first id handed to generator output images,
// chosen far above any plausible client-assigned real file id so the two
// namespaces never collide.
const syntheticFileIDBase = 1_000_000

// GeneratedImage is one derived image a generator produced: a synthetic
// Frame wrapping a memraster.Loader, tagged with both the stable integer
// file id the session hands to the client and a uuid for server-side
// tracing, per spec.md §2's "emit results as in-memory images tagged
// with a stable synthetic file id".
type GeneratedImage struct {
	FileID int
	Tag    string
	Frame  *frame.Frame
}

func (h *RegionHandler) newSyntheticImage(shape loader.Shape, planes [][]float32, cfg config.Constants) (GeneratedImage, error) {
	h.mu.Lock()
	if h.nextSynthetic == 0 {
		h.nextSynthetic = syntheticFileIDBase
	}
	id := h.nextSynthetic
	h.nextSynthetic++
	h.mu.Unlock()

	ld := memraster.New(shape, planes, nil)
	fr, err := frame.New(id, ld, cfg, nil)
	if err != nil {
		return GeneratedImage{}, err
	}
	return GeneratedImage{FileID: id, Tag: uuid.NewString(), Frame: fr}, nil
}

// fullImageMask expands regionID's lattice into a Width*Height boolean
// mask over fr's full pixel grid (true only at pixels inside the
// region's lattice), or nil when regionID is 0 (the whole-image
// pseudo-region).
func (h *RegionHandler) fullImageMask(regionID int, fr *frame.Frame, refCsys loader.CoordinateSystem) ([]bool, error) {
	if regionID == 0 {
		return nil, nil
	}
	lat, err := h.ApplyRegionToFile(regionID, fr, refCsys)
	if err != nil {
		return nil, err
	}
	if lat == nil {
		return nil, errs.New(errs.RegionOutsideImage, "region does not intersect the target image")
	}
	w, ht := fr.Shape().Width, fr.Shape().Height
	mask := make([]bool, w*ht)
	for y := 0; y < lat.Height; y++ {
		for x := 0; x < lat.Width; x++ {
			if !lat.Mask[y*lat.Width+x] {
				continue
			}
			fx, fy := lat.OriginX+x, lat.OriginY+y
			if fx < 0 || fy < 0 || fx >= w || fy >= ht {
				continue
			}
			mask[fy*w+fx] = true
		}
	}
	return mask, nil
}

// CalculateMoments builds the spectral-range mask region (spec.md §4.5:
// "StokesRegion over [spectral.min, spectral.max] at the frame's current
// stokes") and hands off to generator/moment, emitting one GeneratedImage
// per requested moment type in request order.
func (h *RegionHandler) CalculateMoments(ctx context.Context, regionID int, fr *frame.Frame, refCsys loader.CoordinateSystem, stokes, zStart, zEnd int, spectralValues []float64, moments []moment.Type, cfg config.Constants, progress moment.Progress) ([]GeneratedImage, error) {
	mask, err := h.fullImageMask(regionID, fr, refCsys)
	if err != nil {
		return nil, err
	}
	shape := fr.Shape()

	fetch := func(ctx context.Context, z int) ([]float32, error) {
		return fr.PlaneAt(ctx, z, stokes)
	}
	results, err := moment.Compute(ctx, fetch, moment.Request{
		Width: shape.Width, Height: shape.Height,
		ZStart: zStart, ZEnd: zEnd,
		SpectralValues: spectralValues, Moments: moments, Mask: mask,
	}, progress)
	if err != nil {
		return nil, err
	}

	out := make([]GeneratedImage, len(results))
	outShape := loader.Shape{Width: shape.Width, Height: shape.Height, Depth: 1, NumStokes: 1}
	for i, r := range results {
		gen, err := h.newSyntheticImage(outShape, [][]float32{moment.Flatten(r.Map)}, cfg)
		if err != nil {
			return nil, err
		}
		out[i] = gen
	}
	return out, nil
}

// PvResult bundles CalculatePvImage's output image with the metadata the
// client needs to label its offset axis.
type PvResult struct {
	Image     GeneratedImage
	Unit      pv.OffsetUnit
	Increment float64
	Strategy  pv.Strategy
}

// CalculatePvImage builds box regions approximating line,
// samples each over [zStart, zEnd) on fr's stokes, and assembles the
// resulting matrix into a 2D image, auto-scaling the offset axis unit
// and transposing when reverse is set, per spec.md §4.6.
func (h *RegionHandler) CalculatePvImage(ctx context.Context, fr *frame.Frame, line pv.Line, cdelt2Abs float64, stokes, zStart, zEnd int, reverse bool, cfg config.Constants, progress func(done, total int)) (PvResult, error) {
	boxes, strategy := pv.BuildBoxes(line, cdelt2Abs)
	shape := fr.Shape()

	fetch := func(ctx context.Context, z int) ([]float32, error) {
		return fr.PlaneAt(ctx, z, stokes)
	}
	matrix, err := pv.BuildProfiles(ctx, fetch, boxes, shape.Width, shape.Height, zStart, zEnd, cfg.TargetPartialRegionTime, progress)
	if err != nil {
		return PvResult{}, err
	}

	img := pv.Image(matrix, reverse)
	rows, cols := img.Dims()
	flat := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			flat[r*cols+c] = float32(img.At(r, c))
		}
	}
	outShape := loader.Shape{Width: cols, Height: rows, Depth: 1, NumStokes: 1}
	gen, err := h.newSyntheticImage(outShape, [][]float32{flat}, cfg)
	if err != nil {
		return PvResult{}, err
	}

	totalArcsec := pv.PixelLength(line.Points) * cdelt2Abs
	unit, scale := pv.ChooseOffsetUnit(totalArcsec)
	return PvResult{Image: gen, Unit: unit, Increment: cdelt2Abs * scale, Strategy: strategy}, nil
}

// FitResult bundles the fitted components with the emitted model and
// residual images.
type FitResult struct {
	Fit      fitter.Result
	Model    GeneratedImage
	Residual GeneratedImage
}

// FitImage fits estimates' Gaussian components against regionID's masked
// pixels on fr's current channel. When regionID is 0, per spec.md
// (`region_id == 0` FitImage semantics), a temporary whole-image region
// is used and discarded afterward regardless of outcome.
func (h *RegionHandler) FitImage(fr *frame.Frame, refCsys loader.CoordinateSystem, regionID int, estimates []fitter.Component, fitZeroLevel bool, zeroLevelEstimate float64, cfg config.Constants) (FitResult, error) {
	temp := regionID == 0
	if temp {
		shape := fr.Shape()
		state := region.State{
			Type: region.Rectangle,
			ControlPoints: []region.Point2D{
				{X: float64(shape.Width) / 2, Y: float64(shape.Height) / 2},
				{X: float64(shape.Width), Y: float64(shape.Height)},
			},
		}
		id, _ := h.NewTemporaryRegion(state, region.Style{})
		regionID = id
		defer h.RemoveRegion(regionID)
	}

	data, width, height, originX, originY, err := h.rectMaskedPlane(regionID, fr, refCsys)
	if err != nil {
		return FitResult{}, err
	}

	localEstimates := make([]fitter.Component, len(estimates))
	for i, e := range estimates {
		localEstimates[i] = e
		localEstimates[i].CenterX -= float64(originX)
		localEstimates[i].CenterY -= float64(originY)
	}

	result, err := fitter.FitImage(fitter.Request{
		Data: data, Width: width, Height: height,
		Estimates: localEstimates, FitZeroLevel: fitZeroLevel, ZeroLevelEstimate: zeroLevelEstimate,
	})
	if err != nil {
		return FitResult{}, err
	}
	for i := range result.Components {
		result.Components[i].CenterX += float64(originX)
		result.Components[i].CenterY += float64(originY)
	}

	outShape := loader.Shape{Width: width, Height: height, Depth: 1, NumStokes: 1}
	model := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			model[idx] = data[idx] - result.Residual[idx]
		}
	}
	modelImg, err := h.newSyntheticImage(outShape, [][]float32{model}, cfg)
	if err != nil {
		return FitResult{}, err
	}
	residualImg, err := h.newSyntheticImage(outShape, [][]float32{result.Residual}, cfg)
	if err != nil {
		return FitResult{}, err
	}

	return FitResult{Fit: result, Model: modelImg, Residual: residualImg}, nil
}
