package tcd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mrjoshuak/j2kpacket/internal/codestream"
)

const (
	defaultPacketBuffer = 4096
	maxPacketBuffer     = 1 << 30
)

// Options configures the tile drivers.
type Options struct {
	// Logger receives warnings the decoder recovers from. Nil discards them.
	Logger *log.Logger

	// TolerateTruncation makes DecodeTile stop at the first truncated
	// packet and keep what was decoded, instead of failing.
	TolerateTruncation bool

	// InitialBufferSize is the starting size of the encoder's packet
	// buffer. It doubles whenever a packet does not fit.
	InitialBufferSize int
}

// TilePart is a run of consecutive packets of a tile.
type TilePart struct {
	// Tile-part index within the tile
	Index int

	// Packet bytes back to back
	Data []byte

	// Length of each packet in Data
	PacketLengths []int

	// Progression order changes signalled in the tile-part header. The
	// encoder puts the tile's list on the first tile-part. Precinct ranges
	// are not carried.
	ProgressionOrderChanges []codestream.ProgressionOrderChange
}

// NumPackets returns the number of packets in the tile-part.
func (tp *TilePart) NumPackets() int {
	return len(tp.PacketLengths)
}

// TileEncoder encodes all packets of a tile.
type TileEncoder struct {
	opts    Options
	enc     *PacketEncoder
	scratch []byte
}

// NewTileEncoder creates a new tile encoder.
func NewTileEncoder(opts Options) *TileEncoder {
	size := opts.InitialBufferSize
	if size <= 0 {
		size = defaultPacketBuffer
	}
	return &TileEncoder{
		opts:    opts,
		enc:     NewPacketEncoder(),
		scratch: make([]byte, size),
	}
}

// EncodeTile encodes every packet of tile in progression order and splits
// the result into tile-parts according to tcp.TilePartDivision.
func (e *TileEncoder) EncodeTile(ctx context.Context, tcp *codestream.TileCodingParams, tile *Tile) ([]TilePart, error) {
	iters, _, err := NewPacketIterators(tcp)
	if err != nil {
		return nil, err
	}

	var parts []TilePart
	var prev PacketID
	for _, it := range iters {
		for id, ok := it.Next(); ok; id, ok = it.Next() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			n, err := e.encodePacket(tcp, tile, id)
			if err != nil {
				return nil, err
			}
			if len(parts) == 0 || startsTilePart(tcp.TilePartDivision, prev, id) {
				parts = append(parts, TilePart{Index: len(parts)})
			}
			tp := &parts[len(parts)-1]
			tp.Data = append(tp.Data, e.scratch[:n]...)
			tp.PacketLengths = append(tp.PacketLengths, n)
			prev = id
		}
	}
	if len(parts) > 0 {
		parts[0].ProgressionOrderChanges = signalledPOCs(tcp)
	}
	return parts, nil
}

// signalledPOCs returns the progression order changes of tcp as written in
// a POC segment, with component ends clamped to the component count.
func signalledPOCs(tcp *codestream.TileCodingParams) []codestream.ProgressionOrderChange {
	if len(tcp.ProgressionOrderChanges) == 0 {
		return nil
	}
	pocs := make([]codestream.ProgressionOrderChange, len(tcp.ProgressionOrderChanges))
	for i, poc := range tcp.ProgressionOrderChanges {
		poc.ComponentEnd = min(poc.ComponentEnd, uint16(len(tcp.Components)))
		poc.ComponentStart = min(poc.ComponentStart, poc.ComponentEnd)
		poc.PrecinctStart, poc.PrecinctEnd = 0, 0
		pocs[i] = poc
	}
	return pocs
}

// encodePacket encodes one packet into the scratch buffer, growing it
// until the packet fits.
func (e *TileEncoder) encodePacket(tcp *codestream.TileCodingParams, tile *Tile, id PacketID) (int, error) {
	for {
		n, err := e.enc.Encode(tile, tcp, id, e.scratch)
		if !errors.Is(err, ErrOverflow) {
			return n, err
		}
		if len(e.scratch) >= maxPacketBuffer {
			return 0, err
		}
		e.scratch = make([]byte, 2*len(e.scratch))
	}
}

// startsTilePart reports whether id opens a new tile-part after prev.
func startsTilePart(div codestream.TilePartDivision, prev, id PacketID) bool {
	switch div {
	case codestream.TilePartResolution:
		return id.Resolution != prev.Resolution
	case codestream.TilePartLayer:
		return id.Layer != prev.Layer
	case codestream.TilePartComponent:
		return id.Component != prev.Component
	}
	return false
}

// TileStats summarizes a decoded tile.
type TileStats struct {
	Packets      int
	EmptyPackets int
	HeaderBytes  int
	BodyBytes    int

	// Decoding stopped at a truncated packet
	Truncated bool
}

// TileDecoder decodes all packets of a tile.
type TileDecoder struct {
	opts Options
	dec  *PacketDecoder
}

// NewTileDecoder creates a new tile decoder.
func NewTileDecoder(opts Options) *TileDecoder {
	return &TileDecoder{
		opts: opts,
		dec:  NewPacketDecoder(opts.Logger),
	}
}

// DecodeTile decodes the packets of tile from data, the concatenated
// tile-part bodies, in progression order.
func (d *TileDecoder) DecodeTile(ctx context.Context, tcp *codestream.TileCodingParams, tile *Tile, data []byte) (TileStats, error) {
	var stats TileStats

	iters, _, err := NewPacketIterators(tcp)
	if err != nil {
		return stats, err
	}

	off := 0
	for _, it := range iters {
		for id, ok := it.Next(); ok; id, ok = it.Next() {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			n, err := d.dec.Decode(tile, tcp, id, data[off:])
			if err != nil {
				if errors.Is(err, ErrTruncated) && d.opts.TolerateTruncation {
					if d.opts.Logger != nil {
						d.opts.Logger.Printf("tile data ends at packet %v after %d bytes", id, off+n)
					}
					stats.Truncated = true
					return stats, nil
				}
				return stats, fmt.Errorf("decode tile: %w", err)
			}
			off += n

			info := d.dec.Last()
			stats.Packets++
			if info.Empty {
				stats.EmptyPackets++
			}
			stats.HeaderBytes += info.HeaderLength
			stats.BodyBytes += info.BodyLength
		}
	}
	return stats, nil
}
