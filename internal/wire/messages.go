// Package wire defines the Go struct mirrors of every message spec.md §6
// names, plus a protobuf-backed Envelope (envelope.go) a session would
// use to frame them for transport. The session/transport layer itself is
// explicitly out of scope (spec.md §6), but these are its public
// contract: the shapes a WebSocket handler built on top of
// internal/session would marshal and unmarshal.
package wire

import (
	"github.com/pspoerri/carta-compute/internal/frame"
	"github.com/pspoerri/carta-compute/internal/generator/fitter"
	"github.com/pspoerri/carta-compute/internal/generator/moment"
	"github.com/pspoerri/carta-compute/internal/generator/pv"
	"github.com/pspoerri/carta-compute/internal/kernel"
	"github.com/pspoerri/carta-compute/internal/region"
	"github.com/pspoerri/carta-compute/internal/stats"
	"github.com/pspoerri/carta-compute/internal/vectorfield"
)

// ProgressCallback is a callback shape for delivering a partial or final
// result of a streaming request: the already-populated response message
// plus whether the stream is done. No package in this module calls it;
// internal/session's streaming methods take their own typed callbacks.
type ProgressCallback func(message any, final bool)

// --- requests (client -> core) -------------------------------------------

type SetImageChannelsRequest struct {
	FileID int `json:"file_id"`
	Z      int `json:"z"`
	Stokes int `json:"stokes"`
}

type SetCursorRequest struct {
	FileID int     `json:"file_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type SetHistogramRequirementsRequest struct {
	FileID   int                     `json:"file_id"`
	RegionID int                     `json:"region_id"`
	Configs  []stats.HistogramConfig `json:"configs"`
}

type SetSpectralRequirementsRequest struct {
	FileID   int                            `json:"file_id"`
	RegionID int                            `json:"region_id"`
	Configs  []frame.SpectralProfileConfig  `json:"configs"`
}

type SetSpatialRequirementsRequest struct {
	FileID   int                         `json:"file_id"`
	RegionID int                         `json:"region_id"`
	Configs  []frame.SpatialProfileConfig `json:"configs"`
}

type SetStatsRequirementsRequest struct {
	FileID   int               `json:"file_id"`
	RegionID int               `json:"region_id"`
	Types    []stats.StatType  `json:"types"`
}

type SetContourParametersRequest struct {
	FileID   int                   `json:"file_id"`
	Settings frame.ContourSettings `json:"settings"`
}

type SetVectorOverlayParametersRequest struct {
	FileID   int                  `json:"file_id"`
	Settings vectorfield.Settings `json:"settings"`
}

type SetRegionRequest struct {
	FileID   int          `json:"file_id"`
	RegionID int          `json:"region_id"`
	State    region.State `json:"state"`
	Style    region.Style `json:"style"`
}

type RemoveRegionRequest struct {
	RegionID int `json:"region_id"`
}

type MomentRequest struct {
	FileID         int          `json:"file_id"`
	RegionID       int          `json:"region_id"`
	Stokes         int          `json:"stokes"`
	ZStart         int          `json:"z_start"`
	ZEnd           int          `json:"z_end"`
	SpectralValues []float64    `json:"spectral_values"`
	Moments        []moment.Type `json:"moments"`
}

type PvRequest struct {
	FileID    int     `json:"file_id"`
	Stokes    int     `json:"stokes"`
	ZStart    int     `json:"z_start"`
	ZEnd      int     `json:"z_end"`
	Line      pv.Line `json:"line"`
	CDelt2Abs float64 `json:"cdelt2_abs"`
	Reverse   bool    `json:"reverse"`
}

type FittingRequest struct {
	FileID            int               `json:"file_id"`
	RegionID          int               `json:"region_id"`
	Estimates         []fitter.Component `json:"estimates"`
	FitZeroLevel      bool              `json:"fit_zero_level"`
	ZeroLevelEstimate float64           `json:"zero_level_estimate"`
}

type SaveFileRequest struct {
	FileID         int    `json:"file_id"`
	OutputFilename string `json:"output_filename"`
	Format         string `json:"format"` // "casa" or "fits"
}

type ImportRegionRequest struct {
	FileID   int    `json:"file_id"`
	Format   string `json:"format"` // "crtf" or "ds9"
	Contents string `json:"contents"`
}

type ExportRegionRequest struct {
	FileID    int    `json:"file_id"`
	RegionIDs []int  `json:"region_ids"`
	Format    string `json:"format"`
}

// --- responses (core -> client) -------------------------------------------

type RasterTileData struct {
	FileID, TileX, TileY, Mip, Z, Stokes int
	Result                               frame.TileResult
}

type SpatialProfileData struct {
	FileID, RegionID int
	Profiles         []frame.SpatialProfile
}

type SpectralProfileData struct {
	FileID, RegionID, Stokes int
	Values                   map[stats.StatType][]float64
	Progress                 float64
}

type RegionHistogramData struct {
	FileID, RegionID int
	Histograms       []stats.HistogramResult
}

type RegionStatsData struct {
	FileID, RegionID int
	Stats            map[stats.StatType]float64
}

type ContourImageData struct {
	FileID int
	Chunk  kernel.ContourChunk
}

type VectorOverlayTileData struct {
	FileID int
	Tiles  []vectorfield.Tile
}

// GeneratedImageRef identifies one synthetic output image (RegionHandler's
// GeneratedImage) without wire depending on internal/regionhandler.
type GeneratedImageRef struct {
	FileID int
	Tag    string
}

type MomentResponse struct {
	FileID    int
	Images    []GeneratedImageRef
	Moments   []moment.Type
	Success   bool
	Cancelled bool
	Message   string
}

type PvResponse struct {
	FileID    int
	Image     GeneratedImageRef
	Unit      pv.OffsetUnit
	Increment float64
	Success   bool
	Cancelled bool
	Message   string
}

type FittingResponse struct {
	FileID         int
	Components     []fitter.Component
	ZeroLevel      float64
	ResidualImage  GeneratedImageRef
	ModelImage     GeneratedImageRef
	Success        bool
	Message        string
}

type SaveFileAck struct {
	FileID  int
	Success bool
	Message string
}

type ImportRegionAck struct {
	FileID    int
	RegionIDs []int
	Success   bool
	Message   string
}

type ExportRegionAck struct {
	Success  bool
	Contents string
	Message  string
}
