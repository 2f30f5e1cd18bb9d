// Package regionhandler implements RegionHandler: the registry of open
// regions shared across all Frames, their per-(region,file) requirement
// sets, and the data-stream fills (histogram, spectral, stats) that apply
// a region's lattice mask to whichever file it is being evaluated
// against. One RegionHandler is shared by a session's Frames, mirroring
// the backend's single RegionHandler instance per client session.
package regionhandler

import (
	"context"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/frame"
	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/region"
	"github.com/pspoerri/carta-compute/internal/stats"
)

// temporaryRegionBase is the first id handed to ephemeral line-profile
// regions (e.g. a spatial profile requested against a ConfigId that
// names no persistent region), counting downward so it never collides
// with a client-assigned positive region id.
const temporaryRegionBase = -1

// RegionHandler owns every open Region plus the per-(region,file)
// requirement sets that drive FillRegionHistogramData/FillSpectralProfileData/
// FillRegionStatsData.
type RegionHandler struct {
	mu            sync.RWMutex
	regions       map[int]*region.Region
	nextID        int
	nextTmp       int
	nextSynthetic int

	histReq  map[reqKey][]stats.HistogramConfig
	statsReq map[reqKey][]stats.StatType
	specReq  map[reqKey][]frame.SpectralProfileConfig
}

type reqKey struct {
	regionID, fileID int
}

// New returns an empty RegionHandler, the region ids starting at 1 per
// the backend's "0 is the cursor/image region" convention.
func New() *RegionHandler {
	return &RegionHandler{
		regions:  make(map[int]*region.Region),
		nextID:   1,
		nextTmp:  temporaryRegionBase,
		histReq:  make(map[reqKey][]stats.HistogramConfig),
		statsReq: make(map[reqKey][]stats.StatType),
		specReq:  make(map[reqKey][]frame.SpectralProfileConfig),
	}
}

// SetRegion creates a new region (regionID <= 0) or updates an existing
// one's state, returning the effective region id and whether the state
// actually changed. Updating a region's state bumps its Generation,
// which callers use to re-run "new" spectral requirements.
func (h *RegionHandler) SetRegion(regionID int, state region.State, style region.Style) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if regionID <= 0 {
		regionID = h.nextID
		h.nextID++
		h.regions[regionID] = region.NewRegion(state, style)
		return regionID, true
	}

	r, ok := h.regions[regionID]
	if !ok {
		r = region.NewRegion(state, style)
		h.regions[regionID] = r
		return regionID, true
	}
	changed := r.SetState(state)
	r.Style = style
	return regionID, changed
}

// NewTemporaryRegion registers an ephemeral region (e.g. a line profile's
// backing region when the client sent only raw control points) under a
// synthetic negative id, returning a uuid-tagged handle so callers can
// log/trace it without colliding with persistent region ids.
func (h *RegionHandler) NewTemporaryRegion(state region.State, style region.Style) (int, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextTmp
	h.nextTmp--
	h.regions[id] = region.NewRegion(state, style)
	return id, uuid.NewString()
}

// RemoveRegion deletes a region and all of its cached requirements. A
// region with active background tasks is not removed until they finish;
// callers should retry after the tasks' cancellation checks observe the
// region gone from subsequent lookups... in practice BeginTask/EndTask
// bracket a single synchronous call here, so this is effectively
// immediate.
func (h *RegionHandler) RemoveRegion(regionID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.regions[regionID]; ok && r.ActiveTasks() > 0 {
		return
	}
	delete(h.regions, regionID)
	h.clearRequirementsLocked(regionID)
}

// RemoveFile drops every requirement keyed to fileID, called when a
// Frame closes; regions themselves are file-independent and survive.
func (h *RegionHandler) RemoveFile(fileID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k := range h.histReq {
		if k.fileID == fileID {
			delete(h.histReq, k)
		}
	}
	for k := range h.statsReq {
		if k.fileID == fileID {
			delete(h.statsReq, k)
		}
	}
	for k := range h.specReq {
		if k.fileID == fileID {
			delete(h.specReq, k)
		}
	}
}

func (h *RegionHandler) clearRequirementsLocked(regionID int) {
	for k := range h.histReq {
		if k.regionID == regionID {
			delete(h.histReq, k)
		}
	}
	for k := range h.statsReq {
		if k.regionID == regionID {
			delete(h.statsReq, k)
		}
	}
	for k := range h.specReq {
		if k.regionID == regionID {
			delete(h.specReq, k)
		}
	}
}

// Region looks up a region by id.
func (h *RegionHandler) Region(regionID int) (*region.Region, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.regions[regionID]
	return r, ok
}

// IsClosedRegion, IsLineRegion and IsPointRegion test a region's type
// without exposing the region package to callers that only need the
// predicate, matching RegionHandler::IsClosedRegion/IsLineRegion/
// IsPointRegion.
func (h *RegionHandler) IsClosedRegion(regionID int) bool {
	r, ok := h.Region(regionID)
	return ok && r.State.Type.IsClosed()
}

func (h *RegionHandler) IsLineRegion(regionID int) bool {
	r, ok := h.Region(regionID)
	return ok && r.State.Type.IsLineLike()
}

func (h *RegionHandler) IsPointRegion(regionID int) bool {
	r, ok := h.Region(regionID)
	return ok && r.State.Type == region.Point
}

// SetHistogramRequirements replaces the requirement set for (region,
// file), rejected with UnsupportedOperation if the region is not closed
// (histograms are only meaningful over an area), matching
// RegionHandler.cc's gating rule.
func (h *RegionHandler) SetHistogramRequirements(regionID, fileID int, configs []stats.HistogramConfig) error {
	if !h.IsClosedRegion(regionID) {
		return errs.New(errs.UnsupportedOperation, "histogram requirements require a closed region")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.histReq[reqKey{regionID, fileID}] = configs
	return nil
}

// SetStatsRequirements replaces the stats requirement set for (region,
// file); closed-region only, matching RegionHandler.cc.
func (h *RegionHandler) SetStatsRequirements(regionID, fileID int, types []stats.StatType) error {
	if !h.IsClosedRegion(regionID) {
		return errs.New(errs.UnsupportedOperation, "stats requirements require a closed region")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statsReq[reqKey{regionID, fileID}] = types
	return nil
}

// SetSpectralRequirements replaces the spectral requirement set for
// (region, file); rejected for line-like regions, which stream spatial
// (not spectral) profiles instead.
func (h *RegionHandler) SetSpectralRequirements(regionID, fileID int, configs []frame.SpectralProfileConfig) error {
	if h.IsLineRegion(regionID) {
		return errs.New(errs.UnsupportedOperation, "spectral requirements do not apply to line regions")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.specReq[reqKey{regionID, fileID}] = configs
	return nil
}

// ApplyRegionToFile projects regionID's state into fr's pixel grid via
// the region's reference coordinate system and fr's own, returning nil
// if the region is annotation-only or lies entirely outside fr.
func (h *RegionHandler) ApplyRegionToFile(regionID int, fr *frame.Frame, refCsys loader.CoordinateSystem) (*region.Lattice, error) {
	r, ok := h.Region(regionID)
	if !ok {
		return nil, errs.New(errs.InternalError, "unknown region id")
	}
	targetCsys := fr.CoordinateSystem()
	return region.ApplyToShape(r.State, refCsys, targetCsys, fr.Shape()), nil
}

// FillRegionHistogramData evaluates regionID's configured histograms
// against fr, masking the channel data to the region's lattice before
// binning. Returns errs.UnsupportedOperation if no requirements are set.
func (h *RegionHandler) FillRegionHistogramData(regionID, fileID int, fr *frame.Frame, refCsys loader.CoordinateSystem) ([]stats.HistogramResult, error) {
	h.mu.RLock()
	configs, ok := h.histReq[reqKey{regionID, fileID}]
	h.mu.RUnlock()
	if !ok || len(configs) == 0 {
		return nil, errs.New(errs.UnsupportedOperation, "no histogram requirements set")
	}

	data, width, height, err := h.maskedPlane(regionID, fr, refCsys)
	if err != nil {
		return nil, err
	}
	basic := stats.Calc(data)

	out := make([]stats.HistogramResult, len(configs))
	for i, cfg := range configs {
		out[i] = stats.Histogram(data, basic, cfg, width, height)
	}
	return out, nil
}

// FillRegionStatsData evaluates regionID's configured stat types against
// fr's masked region.
func (h *RegionHandler) FillRegionStatsData(regionID, fileID int, fr *frame.Frame, refCsys loader.CoordinateSystem) (map[stats.StatType]float64, error) {
	h.mu.RLock()
	types, ok := h.statsReq[reqKey{regionID, fileID}]
	h.mu.RUnlock()
	if !ok || len(types) == 0 {
		return nil, errs.New(errs.UnsupportedOperation, "no stats requirements set")
	}

	data, width, height, err := h.maskedPlane(regionID, fr, refCsys)
	if err != nil {
		return nil, err
	}
	lat, _ := h.ApplyRegionToFile(regionID, fr, refCsys)
	blcX, blcY := 0, 0
	if lat != nil {
		blcX, blcY = lat.OriginX, lat.OriginY
	}
	return stats.RegionStats(data, width, height, types, stats.RegionStatsConfig{
		BlcX: blcX, BlcY: blcY, BeamAreaPixels: math.NaN(),
	}), nil
}

// FillSpectralProfileData evaluates regionID's configured spectral
// profiles against fr using GetRegionSpectralData when the loader
// supports it, else falling back to a per-channel masked reduction.
func (h *RegionHandler) FillSpectralProfileData(ctx context.Context, regionID, fileID int, fr *frame.Frame, refCsys loader.CoordinateSystem, requiredStats []stats.StatType, cb func(idx int, values map[stats.StatType][]float64, progress float64)) error {
	h.mu.RLock()
	configs, ok := h.specReq[reqKey{regionID, fileID}]
	h.mu.RUnlock()
	if !ok || len(configs) == 0 {
		return errs.New(errs.UnsupportedOperation, "no spectral requirements set")
	}

	lat, err := h.ApplyRegionToFile(regionID, fr, refCsys)
	if err != nil {
		return err
	}
	if lat == nil {
		for idx := range configs {
			cb(idx, nil, 1.0)
		}
		return nil
	}

	for idx, cfg := range configs {
		result, err := fr.GetRegionSpectralData(ctx, lat.OriginX, lat.OriginY, lat.Width, lat.Height, lat.Mask, cfg.Stokes, requiredStats, func(done, total int) {
			cb(idx, nil, float64(done)/float64(total))
		})
		if err != nil {
			return err
		}
		cb(idx, result.Values, 1.0)
	}
	return nil
}

// rectMaskedPlane reads fr's current channel over regionID's lattice
// bounding box, leaving masked-out cells as NaN rather than compacting
// them away, so callers that need a regular x/y grid (the fitter) see a
// proper rectangle.
func (h *RegionHandler) rectMaskedPlane(regionID int, fr *frame.Frame, refCsys loader.CoordinateSystem) (data []float32, width, height, originX, originY int, err error) {
	lat, err := h.ApplyRegionToFile(regionID, fr, refCsys)
	if err != nil {
		return nil, 0, 0, 0, 0, err
	}
	if lat == nil {
		return nil, 0, 0, 0, 0, errs.New(errs.RegionOutsideImage, "region does not intersect the target image")
	}
	full, err := fr.ReadCurrentChannel()
	if err != nil {
		return nil, 0, 0, 0, 0, err
	}
	out := make([]float32, lat.Width*lat.Height)
	fw := fr.Shape().Width
	for y := 0; y < lat.Height; y++ {
		for x := 0; x < lat.Width; x++ {
			idx := y*lat.Width + x
			if !lat.Mask[idx] {
				out[idx] = float32(math.NaN())
				continue
			}
			fx, fy := lat.OriginX+x, lat.OriginY+y
			if fx < 0 || fy < 0 || fx >= fw || fy >= fr.Shape().Height {
				out[idx] = float32(math.NaN())
				continue
			}
			out[idx] = full[fy*fw+fx]
		}
	}
	return out, lat.Width, lat.Height, lat.OriginX, lat.OriginY, nil
}

// maskedPlane reads fr's current channel and compacts it to just the
// pixels inside regionID's lattice, in row-major bounding-box order
// (masked-out cells are skipped, not zeroed, so NumPixels reflects only
// the region).
func (h *RegionHandler) maskedPlane(regionID int, fr *frame.Frame, refCsys loader.CoordinateSystem) (data []float32, width, height int, err error) {
	lat, err := h.ApplyRegionToFile(regionID, fr, refCsys)
	if err != nil {
		return nil, 0, 0, err
	}
	if lat == nil {
		return nil, 0, 0, nil
	}
	full, err := fr.ReadCurrentChannel()
	if err != nil {
		return nil, 0, 0, err
	}
	out := make([]float32, 0, lat.Width*lat.Height)
	for y := 0; y < lat.Height; y++ {
		for x := 0; x < lat.Width; x++ {
			if !lat.Mask[y*lat.Width+x] {
				continue
			}
			fx, fy := lat.OriginX+x, lat.OriginY+y
			if fx < 0 || fy < 0 || fx >= fr.Shape().Width || fy >= fr.Shape().Height {
				continue
			}
			out = append(out, full[fy*fr.Shape().Width+fx])
		}
	}
	return out, lat.Width, lat.Height, nil
}
