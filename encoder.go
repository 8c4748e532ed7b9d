package j2kpacket

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/mrjoshuak/j2kpacket/internal/tcd"
)

// Options configures EncodeTiles and DecodeTiles.
type Options struct {
	// Concurrency limits how many tiles are processed at once.
	// Default is GOMAXPROCS.
	Concurrency int

	// Logger receives recoverable decoding warnings. Nil discards them.
	Logger *log.Logger

	// TolerateTruncation keeps the packets decoded before a truncated one
	// instead of failing the tile.
	TolerateTruncation bool

	// InitialBufferSize is the starting size of each encoder's packet
	// buffer. Default is 4096 bytes.
	InitialBufferSize int
}

func (o *Options) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}

func (o *Options) tileOptions() tcd.Options {
	return tcd.Options{
		Logger:             o.Logger,
		TolerateTruncation: o.TolerateTruncation,
		InitialBufferSize:  o.InitialBufferSize,
	}
}

// TileJob is one tile to encode or decode.
type TileJob struct {
	// Tile index in the image
	Index int

	Params *TileCodingParams

	// Code-block tree built with ModeEncode for EncodeTiles and
	// ModeDecode for DecodeTiles.
	Tile *Tile

	// Concatenated tile-part bodies, for DecodeTiles
	Data []byte
}

// TileResult is the outcome of one TileJob.
type TileResult struct {
	Index int

	// Tile-parts, from EncodeTiles
	Parts []TilePart

	// Summary, from DecodeTiles
	Stats TileStats

	// Failure of this tile. Other tiles are not affected.
	Err error
}

// EncodeTiles encodes the packets of every tile. Tiles are independent and
// are processed concurrently; the results are in job order. A tile that
// fails reports its error in its TileResult. The returned error is only
// set when ctx is done before all tiles finish.
func EncodeTiles(ctx context.Context, jobs []TileJob, opts *Options) ([]TileResult, error) {
	if opts == nil {
		opts = &Options{}
	}
	results := make([]TileResult, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency())
	for i := range jobs {
		job := &jobs[i]
		res := &results[i]
		res.Index = job.Index
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if job.Params == nil || job.Tile == nil {
				res.Err = fmt.Errorf("tile %d: missing parameters or tile", job.Index)
				return nil
			}
			parts, err := tcd.NewTileEncoder(opts.tileOptions()).EncodeTile(ctx, job.Params, job.Tile)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				res.Err = fmt.Errorf("tile %d: %w", job.Index, err)
				return nil
			}
			res.Parts = parts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// WriteTile appends the tile-parts of a tile as complete tile-parts (SOT,
// POC on the first tile-part when params has progression order changes,
// optional PLT, SOD and packet data) to dst.
func WriteTile(dst []byte, params *TileCodingParams, tileIndex int, parts []TilePart, withPLT bool) ([]byte, error) {
	var err error
	for i := range parts {
		dst, err = tcd.AppendTilePart(dst, tileIndex, &parts[i], len(parts), len(params.Components), withPLT)
		if err != nil {
			return dst, err
		}
	}
	return dst, nil
}
