// Command carta-compute-bench is a standalone harness for exercising
// internal/session end to end against a real FITS file, printing wall
// time for each stage. It replaces the teacher's geotiff2pmtiles CLI as
// this repo's command-line entry point: same "parse flags, open source,
// run stages, report" shape, generalized from a tile-pyramid converter
// to a compute-engine driver, and switched from stdlib flag to kong's
// struct-tag CLI so that dependency is wired rather than dropped.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/pspoerri/carta-compute/internal/config"
	"github.com/pspoerri/carta-compute/internal/frame"
	"github.com/pspoerri/carta-compute/internal/generator/moment"
	"github.com/pspoerri/carta-compute/internal/loader/fits"
	"github.com/pspoerri/carta-compute/internal/session"
	"github.com/pspoerri/carta-compute/internal/vectorfield"
	"github.com/pspoerri/carta-compute/internal/wire"
)

var version = "dev"

type cli struct {
	Verbose bool `help:"Verbose structured logging." short:"v"`

	Tile struct {
		File string `arg:"" help:"FITS file to open." type:"existingfile"`
		Z    int    `help:"Channel index." default:"0"`
		Mip  int    `help:"Tile mip level." default:"1"`
	} `cmd:"" help:"Open a file and time a single raster tile fetch."`

	Moment struct {
		File   string `arg:"" help:"FITS file to open." type:"existingfile"`
		ZStart int    `help:"First channel (inclusive)." default:"0"`
		ZEnd   int    `help:"Last channel (exclusive)." required:""`
	} `cmd:"" help:"Time a moment-0/1/2 calculation over the full image."`

	VectorField struct {
		File string `arg:"" help:"FITS file to open (must carry Q/U Stokes planes)." type:"existingfile"`
		Mip  int    `help:"Downsample factor." default:"2"`
	} `cmd:"" help:"Time a polarization vector field tile computation."`

	Version kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	var c cli
	parser := kong.Parse(&c,
		kong.Name("carta-compute-bench"),
		kong.Description("Drive internal/session's compute stages against a FITS file and report timings."),
		kong.Vars{"version": version},
	)

	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	var err error
	switch parser.Command() {
	case "tile <file>":
		err = runTile(log, c.Tile.File, c.Tile.Z, c.Tile.Mip)
	case "moment <file>":
		err = runMoment(log, c.Moment.File, c.Moment.ZStart, c.Moment.ZEnd)
	case "vector-field <file>":
		err = runVectorField(log, c.VectorField.File, c.VectorField.Mip)
	default:
		err = fmt.Errorf("unhandled command %q", parser.Command())
	}
	parser.FatalIfErrorf(err)
}

func openSession(log *slog.Logger, path string) (*session.Session, int, error) {
	ld, err := fits.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	sess := session.New(config.Default(), log)
	const fileID = 1
	if err := sess.OpenFile(fileID, ld); err != nil {
		return nil, 0, fmt.Errorf("registering frame: %w", err)
	}
	return sess, fileID, nil
}

func runTile(log *slog.Logger, path string, z, mip int) error {
	start := time.Now()
	sess, fileID, err := openSession(log, path)
	if err != nil {
		return err
	}
	log.Info("opened", "file", path, "elapsed", time.Since(start))

	if _, err := sess.SetImageChannels(wire.SetImageChannelsRequest{FileID: fileID, Z: z, Stokes: 0}); err != nil {
		return fmt.Errorf("setting channel: %w", err)
	}

	tileStart := time.Now()
	result, err := sess.FillRasterTileData(fileID, 0, 0, mip, z, 0, frame.CompressionZFP, 9)
	if err != nil {
		return fmt.Errorf("fetching tile: %w", err)
	}
	tileBytes := len(result.Result.Raw)*4 + len(result.Result.Compressed)
	log.Info("tile", "elapsed", time.Since(tileStart), "width", result.Result.Width, "height", result.Result.Height, "size", humanize.Bytes(uint64(tileBytes)))
	fmt.Printf("open+tile: %s (%s)\n", time.Since(start), humanize.Bytes(uint64(tileBytes)))
	return nil
}

func runMoment(log *slog.Logger, path string, zStart, zEnd int) error {
	start := time.Now()
	sess, fileID, err := openSession(log, path)
	if err != nil {
		return err
	}

	req := wire.MomentRequest{
		FileID:  fileID,
		ZStart:  zStart,
		ZEnd:    zEnd,
		Moments: []moment.Type{moment.MOM0, moment.MOM1},
	}
	resp, err := sess.CalculateMoments(context.Background(), req, func(done, total int) {
		log.Debug("moment progress", "done", done, "total", total)
	})
	if err != nil {
		return fmt.Errorf("calculating moments: %w", err)
	}
	fmt.Printf("moments: %d image(s) in %v\n", len(resp.Images), time.Since(start))
	return nil
}

func runVectorField(log *slog.Logger, path string, mip int) error {
	start := time.Now()
	sess, fileID, err := openSession(log, path)
	if err != nil {
		return err
	}
	req := wire.SetVectorOverlayParametersRequest{
		FileID:   fileID,
		Settings: vectorfield.Settings{Mip: mip, Quality: 9},
	}
	resp, err := sess.SetVectorOverlayParameters(context.Background(), req, func(done, total int) {
		log.Debug("vector field progress", "done", done, "total", total)
	})
	if err != nil {
		return fmt.Errorf("computing vector field: %w", err)
	}
	fmt.Printf("vector field: %d tile(s) in %v\n", len(resp.Tiles), time.Since(start))
	return nil
}
