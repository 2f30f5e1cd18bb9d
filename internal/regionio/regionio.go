// Package regionio implements the region import/export entry point
// spec.md §2 leaves "not further specified" beyond the requirement that
// such a conversion exists: an Importer/Exporter interface plus a
// minimal CRTF and DS9 line-format implementation covering the common
// closed shapes (box, circle/ellipse, point). Grounded on
// original_source/src/Region/{CrtfImportExport,Ds9ImportExport,
// RegionImportExport}.h for the interface shape only (two-way
// state<->text conversion entry points) — not on their casacore-backed
// parsing internals, which this package has no equivalent of.
//
// Both formats are handled entirely in image pixel coordinates: neither
// implementation converts to/from a world coordinate system, matching
// spec.md's Non-goal that excludes "text format details" from scope
// while keeping the engineering surface (an interface RegionHandler can
// drive) real and exercised.
package regionio

import "github.com/pspoerri/carta-compute/internal/region"

// Importer parses a region file's full contents into the Properties it
// describes. A parse failure on one line is not fatal: malformed lines
// are skipped and reported via the returned error's message, mirroring
// RegionImportExport::GetImportedRegions collecting per-line errors
// rather than aborting the whole file.
type Importer interface {
	Import(contents string) ([]region.Properties, error)
}

// Exporter accumulates regions with AddExportRegion and serializes them
// with Export, mirroring RegionImportExport's "add one by one, then
// print" two-step shape.
type Exporter interface {
	AddExportRegion(props region.Properties) error
	Export() (string, error)
}

// New returns the Importer/Exporter pair for format ("crtf" or "ds9").
// ok is false for any other format name.
func New(format string) (Importer, Exporter, bool) {
	switch format {
	case "crtf":
		return &CRTF{}, &CRTF{}, true
	case "ds9":
		return &DS9{}, &DS9{}, true
	default:
		return nil, nil, false
	}
}
