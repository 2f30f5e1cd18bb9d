// Package session implements Session, the thin per-connection façade a
// host transport (WebSocket, gRPC, whatever spec.md §6 leaves
// unspecified) drives: one method per request message in internal/wire,
// each opening straight onto Frame or RegionHandler. Session owns the
// set of open Frames and the single RegionHandler they share, mirroring
// the backend's one-session-per-client-connection model. Grounded on the
// teacher's cmd/geotiff2pmtiles/main.go top-level orchestration ("open
// sources, configure, generate, write" as one function per stage) as the
// stylistic template for "one function per request type, delegate
// immediately to the owning component".
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pspoerri/carta-compute/internal/config"
	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/frame"
	"github.com/pspoerri/carta-compute/internal/generator/fitter"
	"github.com/pspoerri/carta-compute/internal/generator/moment"
	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/region"
	"github.com/pspoerri/carta-compute/internal/regionhandler"
	"github.com/pspoerri/carta-compute/internal/regionio"
	"github.com/pspoerri/carta-compute/internal/stats"
	"github.com/pspoerri/carta-compute/internal/vectorfield"
	"github.com/pspoerri/carta-compute/internal/wire"
)

// Session binds every open Frame to the single RegionHandler shared
// across them, plus the per-file ambient state (vector field tile cache,
// spatial requirement sets) that belongs to neither.
type Session struct {
	cfg     config.Constants
	log     *slog.Logger
	handler *regionhandler.RegionHandler

	mu           sync.RWMutex
	frames       map[int]*frame.Frame
	vectorCaches map[int]*vectorfield.Cache
	spatialReq   map[spatialKey][]frame.SpatialProfileConfig
}

type spatialKey struct {
	fileID, regionID int
}

// New returns an empty Session; cfg is shared by every Frame it opens.
func New(cfg config.Constants, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:          cfg,
		log:          log,
		handler:      regionhandler.New(),
		frames:       make(map[int]*frame.Frame),
		vectorCaches: make(map[int]*vectorfield.Cache),
		spatialReq:   make(map[spatialKey][]frame.SpatialProfileConfig),
	}
}

// OpenFile registers fileID against an already-opened loader, returning
// the new Frame's shape-derived fields wrapped in error form on failure.
func (s *Session) OpenFile(fileID int, ld loader.Loader) error {
	fr, err := frame.New(fileID, ld, s.cfg, s.log)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[fileID] = fr
	s.vectorCaches[fileID] = &vectorfield.Cache{}
	return nil
}

// CloseFile disconnects and forgets fileID, dropping its RegionHandler
// requirements and vector field cache.
func (s *Session) CloseFile(fileID int) {
	s.mu.Lock()
	fr, ok := s.frames[fileID]
	delete(s.frames, fileID)
	delete(s.vectorCaches, fileID)
	for k := range s.spatialReq {
		if k.fileID == fileID {
			delete(s.spatialReq, k)
		}
	}
	s.mu.Unlock()
	if ok {
		fr.Disconnect()
	}
	s.handler.RemoveFile(fileID)
}

func (s *Session) frameOrErr(fileID int) (*frame.Frame, error) {
	s.mu.RLock()
	fr, ok := s.frames[fileID]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.InternalError, "unknown file id")
	}
	return fr, nil
}

// SetImageChannels updates a Frame's current (z, stokes).
func (s *Session) SetImageChannels(req wire.SetImageChannelsRequest) (bool, error) {
	fr, err := s.frameOrErr(req.FileID)
	if err != nil {
		return false, err
	}
	return fr.SetImageChannels(req.Z, req.Stokes)
}

// SetCursor moves a Frame's cursor.
func (s *Session) SetCursor(req wire.SetCursorRequest) (bool, error) {
	fr, err := s.frameOrErr(req.FileID)
	if err != nil {
		return false, err
	}
	return fr.SetCursor(int(req.X), int(req.Y)), nil
}

// FillRasterTileData fetches one raster tile of fileID at the given
// (tileX, tileY, mip, z, stokes), packed per compression/quality.
func (s *Session) FillRasterTileData(fileID, tileX, tileY, mip, z, stokes int, compression frame.CompressionMode, quality int) (wire.RasterTileData, error) {
	fr, err := s.frameOrErr(fileID)
	if err != nil {
		return wire.RasterTileData{}, err
	}
	result, _, err := fr.FillRasterTileData(tileX, tileY, mip, z, stokes, compression, quality)
	if err != nil {
		return wire.RasterTileData{}, err
	}
	return wire.RasterTileData{FileID: fileID, TileX: tileX, TileY: tileY, Mip: mip, Z: z, Stokes: stokes, Result: result}, nil
}

// SetRegion creates or updates a region in the shared RegionHandler.
func (s *Session) SetRegion(req wire.SetRegionRequest) (int, bool) {
	return s.handler.SetRegion(req.RegionID, req.State, req.Style)
}

// RemoveRegion deletes a region.
func (s *Session) RemoveRegion(req wire.RemoveRegionRequest) {
	s.handler.RemoveRegion(req.RegionID)
}

// SetHistogramRequirements replaces req.FileID/req.RegionID's histogram
// configs (closed-region only; see RegionHandler.SetHistogramRequirements).
func (s *Session) SetHistogramRequirements(req wire.SetHistogramRequirementsRequest) error {
	return s.handler.SetHistogramRequirements(req.RegionID, req.FileID, req.Configs)
}

// SetStatsRequirements replaces req.FileID/req.RegionID's stat types.
func (s *Session) SetStatsRequirements(req wire.SetStatsRequirementsRequest) error {
	return s.handler.SetStatsRequirements(req.RegionID, req.FileID, req.Types)
}

// SetSpectralRequirements replaces req.FileID/req.RegionID's spectral
// profile configs (non-line-region only).
func (s *Session) SetSpectralRequirements(req wire.SetSpectralRequirementsRequest) error {
	return s.handler.SetSpectralRequirements(req.RegionID, req.FileID, req.Configs)
}

// SetSpatialRequirements replaces req.FileID/req.RegionID's spatial
// profile configs. Only region_id == 0 (the cursor) is currently
// servable: Frame's spatial profile extraction is cursor-based, matching
// spec.md §4's cursor spatial profile scope; a non-zero region id is
// accepted (stored) but EmitSpatialProfile rejects it.
func (s *Session) SetSpatialRequirements(req wire.SetSpatialRequirementsRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spatialReq[spatialKey{req.FileID, req.RegionID}] = req.Configs
}

// EmitSpatialProfile evaluates fileID's region_id == 0 spatial
// requirements against the current cursor.
func (s *Session) EmitSpatialProfile(fileID, regionID int) (wire.SpatialProfileData, error) {
	if regionID != 0 {
		return wire.SpatialProfileData{}, errs.New(errs.UnsupportedOperation, "spatial profiles are cursor-only")
	}
	fr, err := s.frameOrErr(fileID)
	if err != nil {
		return wire.SpatialProfileData{}, err
	}
	s.mu.RLock()
	configs := s.spatialReq[spatialKey{fileID, regionID}]
	s.mu.RUnlock()
	if len(configs) == 0 {
		return wire.SpatialProfileData{}, errs.New(errs.UnsupportedOperation, "no spatial requirements set")
	}
	profiles, err := fr.FillSpatialProfileData(fr.CurrentCursor(), configs, false)
	if err != nil {
		return wire.SpatialProfileData{}, err
	}
	return wire.SpatialProfileData{FileID: fileID, RegionID: regionID, Profiles: profiles}, nil
}

// FillRegionHistogramData evaluates req's configured histograms.
func (s *Session) FillRegionHistogramData(fileID, regionID int) (wire.RegionHistogramData, error) {
	fr, err := s.frameOrErr(fileID)
	if err != nil {
		return wire.RegionHistogramData{}, err
	}
	result, err := s.handler.FillRegionHistogramData(regionID, fileID, fr, fr.CoordinateSystem())
	if err != nil {
		return wire.RegionHistogramData{}, err
	}
	return wire.RegionHistogramData{FileID: fileID, RegionID: regionID, Histograms: result}, nil
}

// FillRegionStatsData evaluates req's configured stats.
func (s *Session) FillRegionStatsData(fileID, regionID int) (wire.RegionStatsData, error) {
	fr, err := s.frameOrErr(fileID)
	if err != nil {
		return wire.RegionStatsData{}, err
	}
	result, err := s.handler.FillRegionStatsData(regionID, fileID, fr, fr.CoordinateSystem())
	if err != nil {
		return wire.RegionStatsData{}, err
	}
	return wire.RegionStatsData{FileID: fileID, RegionID: regionID, Stats: result}, nil
}

// FillSpectralProfileData streams req's configured spectral profiles
// through cb, one call per (config, progress) tick.
func (s *Session) FillSpectralProfileData(ctx context.Context, fileID, regionID int, requiredStats []stats.StatType, cb func(wire.SpectralProfileData)) error {
	fr, err := s.frameOrErr(fileID)
	if err != nil {
		return err
	}
	return s.handler.FillSpectralProfileData(ctx, regionID, fileID, fr, fr.CoordinateSystem(), requiredStats, func(idx int, values map[stats.StatType][]float64, progress float64) {
		cb(wire.SpectralProfileData{FileID: fileID, RegionID: regionID, Values: values, Progress: progress})
	})
}

// CalculateMoments wires req through to the shared RegionHandler's
// generator, returning the synthetic moment images opened as new Frames
// in this Session so they can immediately serve tiles/profiles too.
func (s *Session) CalculateMoments(ctx context.Context, req wire.MomentRequest, progress moment.Progress) (wire.MomentResponse, error) {
	fr, err := s.frameOrErr(req.FileID)
	if err != nil {
		return wire.MomentResponse{}, err
	}
	images, err := s.handler.CalculateMoments(ctx, req.RegionID, fr, fr.CoordinateSystem(), req.Stokes, req.ZStart, req.ZEnd, req.SpectralValues, req.Moments, s.cfg, progress)
	if err != nil {
		return wire.MomentResponse{}, err
	}
	refs := make([]wire.GeneratedImageRef, len(images))
	for i, img := range images {
		s.adoptGeneratedImage(img.FileID, img.Frame)
		refs[i] = wire.GeneratedImageRef{FileID: img.FileID, Tag: img.Tag}
	}
	return wire.MomentResponse{FileID: req.FileID, Images: refs, Moments: req.Moments, Success: true}, nil
}

// CalculatePvImage wires req through to the shared RegionHandler's PV
// generator.
func (s *Session) CalculatePvImage(ctx context.Context, req wire.PvRequest, progress func(done, total int)) (wire.PvResponse, error) {
	fr, err := s.frameOrErr(req.FileID)
	if err != nil {
		return wire.PvResponse{}, err
	}
	result, err := s.handler.CalculatePvImage(ctx, fr, req.Line, req.CDelt2Abs, req.Stokes, req.ZStart, req.ZEnd, req.Reverse, s.cfg, progress)
	if err != nil {
		return wire.PvResponse{}, err
	}
	s.adoptGeneratedImage(result.Image.FileID, result.Image.Frame)
	return wire.PvResponse{
		FileID:    req.FileID,
		Image:     wire.GeneratedImageRef{FileID: result.Image.FileID, Tag: result.Image.Tag},
		Unit:      result.Unit,
		Increment: result.Increment,
		Success:   true,
	}, nil
}

// FitImage wires req through to the shared RegionHandler's fitter.
func (s *Session) FitImage(req wire.FittingRequest) (wire.FittingResponse, error) {
	fr, err := s.frameOrErr(req.FileID)
	if err != nil {
		return wire.FittingResponse{}, err
	}
	result, err := s.handler.FitImage(fr, fr.CoordinateSystem(), req.RegionID, req.Estimates, req.FitZeroLevel, req.ZeroLevelEstimate, s.cfg)
	if err != nil {
		return wire.FittingResponse{}, err
	}
	s.adoptGeneratedImage(result.Model.FileID, result.Model.Frame)
	s.adoptGeneratedImage(result.Residual.FileID, result.Residual.Frame)
	return wire.FittingResponse{
		FileID:        req.FileID,
		Components:    result.Fit.Components,
		ZeroLevel:     result.Fit.ZeroLevel,
		ModelImage:    wire.GeneratedImageRef{FileID: result.Model.FileID, Tag: result.Model.Tag},
		ResidualImage: wire.GeneratedImageRef{FileID: result.Residual.FileID, Tag: result.Residual.Tag},
		Success:       true,
	}, nil
}

func (s *Session) adoptGeneratedImage(fileID int, fr *frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[fileID] = fr
	s.vectorCaches[fileID] = &vectorfield.Cache{}
}

// SetVectorOverlayParameters computes (or, on an unchanged settings+z
// pair, returns the cached) vector field tiles for req.FileID.
func (s *Session) SetVectorOverlayParameters(ctx context.Context, req wire.SetVectorOverlayParametersRequest, progress vectorfield.Progress) (wire.VectorOverlayTileData, error) {
	fr, err := s.frameOrErr(req.FileID)
	if err != nil {
		return wire.VectorOverlayTileData{}, err
	}
	s.mu.RLock()
	cache := s.vectorCaches[req.FileID]
	s.mu.RUnlock()
	z, _ := fr.CurrentChannel()
	tiles, err := cache.Compute(ctx, fr, req.Settings, z, progress)
	if err != nil {
		return wire.VectorOverlayTileData{}, err
	}
	return wire.VectorOverlayTileData{FileID: req.FileID, Tiles: tiles}, nil
}

// ImportRegion parses req.Contents in req.Format and creates one new
// region per parsed line via the shared RegionHandler, returning the
// assigned region ids in file order.
func (s *Session) ImportRegion(req wire.ImportRegionRequest) (wire.ImportRegionAck, error) {
	importer, _, ok := regionio.New(req.Format)
	if !ok {
		return wire.ImportRegionAck{}, errs.New(errs.UnsupportedOperation, "unknown region format "+req.Format)
	}
	parsed, err := importer.Import(req.Contents)
	if err != nil && len(parsed) == 0 {
		return wire.ImportRegionAck{FileID: req.FileID}, err
	}
	ids := make([]int, len(parsed))
	for i, props := range parsed {
		id, _ := s.handler.SetRegion(0, props.State, props.Style)
		ids[i] = id
	}
	return wire.ImportRegionAck{FileID: req.FileID, RegionIDs: ids, Success: true}, nil
}

// ExportRegion serializes req.RegionIDs in req.Format, skipping any
// region id the shared RegionHandler no longer holds.
func (s *Session) ExportRegion(req wire.ExportRegionRequest) (wire.ExportRegionAck, error) {
	_, exporter, ok := regionio.New(req.Format)
	if !ok {
		return wire.ExportRegionAck{}, errs.New(errs.UnsupportedOperation, "unknown region format "+req.Format)
	}
	for _, id := range req.RegionIDs {
		r, ok := s.handler.Region(id)
		if !ok {
			continue
		}
		if err := exporter.AddExportRegion(region.Properties{State: r.State, Style: r.Style}); err != nil {
			return wire.ExportRegionAck{}, err
		}
	}
	contents, err := exporter.Export()
	if err != nil {
		return wire.ExportRegionAck{}, err
	}
	return wire.ExportRegionAck{Success: true, Contents: contents}, nil
}

// FitImageComponents is a convenience re-export so callers outside
// internal/generator/fitter don't need that import just to build a
// FittingRequest's Estimates field.
type FitImageComponents = []fitter.Component
