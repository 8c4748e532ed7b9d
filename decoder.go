package j2kpacket

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mrjoshuak/j2kpacket/internal/tcd"
)

// DecodeTiles decodes the packets of every tile into its code-block tree.
// Tiles are processed concurrently; the results are in job order. A corrupt
// or truncated tile reports its error in its TileResult without affecting
// the others. The returned error is only set when ctx is done before all
// tiles finish.
func DecodeTiles(ctx context.Context, jobs []TileJob, opts *Options) ([]TileResult, error) {
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
			stats, err := tcd.NewTileDecoder(opts.tileOptions()).DecodeTile(ctx, job.Params, job.Tile, job.Data)
			res.Stats = stats
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				res.Err = fmt.Errorf("tile %d: %w", job.Index, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ReadTile splits the tile-parts of one tile written by WriteTile. It
// returns the tile index, the tile-parts and their concatenated packet
// data, which is what DecodeTiles expects in TileJob.Data. Only the
// component count of params is used, to read POC segments.
func ReadTile(data []byte, params *TileCodingParams) (tileIndex int, parts []TilePart, packets []byte, err error) {
	tileIndex, parts, err = tcd.ReadTileParts(data, len(params.Components))
	if err != nil {
		return tileIndex, parts, nil, err
	}
	for _, tp := range parts {
		packets = append(packets, tp.Data...)
	}
	return tileIndex, parts, packets, nil
}

// StreamParams returns params with the progression order changes signalled
// in parts, which is the progression a decoder must follow. Without POC
// segments params is returned unchanged.
func StreamParams(params *TileCodingParams, parts []TilePart) *TileCodingParams {
	var pocs []ProgressionOrderChange
	for _, tp := range parts {
		pocs = append(pocs, tp.ProgressionOrderChanges...)
	}
	if len(pocs) == 0 {
		return params
	}
	p := *params
	p.ProgressionOrderChanges = pocs
	return &p
}
