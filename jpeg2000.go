// Package j2kpacket orders and codes the packets of JPEG 2000 tiles
// (ISO/IEC 15444-1 Annex B, Tier-2 coding).
//
// A tile is described by its coding parameters: the tile area, the
// components with their resolution levels, code-block and precinct sizes,
// the number of quality layers and the progression order, optionally
// overridden by progression order changes (POC). From these the package
// builds the code-block tree of the tile, walks its packets in progression
// order and writes or reads each packet's header and body.
//
// The package does not run the block coder. Encoding takes the coding pass
// lengths and bytes of every code-block as input; decoding returns the
// codeword segments of every code-block.
//
// Basic usage for encoding one tile:
//
//	tile, err := j2kpacket.NewTile(params, j2kpacket.ModeEncode)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tile.CodeBlocks(func(c, r, b, p int, cb *j2kpacket.CodeBlock) {
//	    cb.ZeroBitPlanes = ...
//	    cb.Passes, err = j2kpacket.NewEncoderPasses(lengths, data, style, params.NumLayers)
//	})
//	results, err := j2kpacket.EncodeTiles(ctx, []j2kpacket.TileJob{{Params: params, Tile: tile}}, nil)
//
// Decoding mirrors this with ModeDecode tiles and DecodeTiles.
package j2kpacket

import (
	"github.com/mrjoshuak/j2kpacket/internal/codestream"
	"github.com/mrjoshuak/j2kpacket/internal/tcd"
)

// Coding parameters.
type (
	// TileCodingParams holds the coding parameters of one tile.
	TileCodingParams = codestream.TileCodingParams

	// ComponentParams holds the coding parameters of one component.
	ComponentParams = codestream.ComponentParams

	// PrecinctSize holds the precinct size exponents of a resolution.
	PrecinctSize = codestream.PrecinctSize

	// ProgressionOrderChange is one entry of a POC marker.
	ProgressionOrderChange = codestream.ProgressionOrderChange

	// ProgressionOrder defines the order in which packets are encoded/decoded.
	ProgressionOrder = codestream.ProgressionOrder

	// TilePartDivision selects where the encoder starts a new tile-part.
	TilePartDivision = codestream.TilePartDivision
)

// Code-block tree and packets.
type (
	Tile            = tcd.Tile
	CodeBlock       = tcd.CodeBlock
	Pass            = tcd.Pass
	EncoderPasses   = tcd.EncoderPasses
	DecoderSegments = tcd.DecoderSegments
	Segment         = tcd.Segment
	Mode            = tcd.Mode
	PacketID        = tcd.PacketID
	TilePart        = tcd.TilePart
	TileStats       = tcd.TileStats
)

// Progression orders.
const (
	LRCP = codestream.LRCP
	RLCP = codestream.RLCP
	RPCL = codestream.RPCL
	PCRL = codestream.PCRL
	CPRL = codestream.CPRL
)

// Tile-part divisions.
const (
	TilePartNone       = codestream.TilePartNone
	TilePartResolution = codestream.TilePartResolution
	TilePartLayer      = codestream.TilePartLayer
	TilePartComponent  = codestream.TilePartComponent
)

// Tile modes.
const (
	ModeEncode = tcd.ModeEncode
	ModeDecode = tcd.ModeDecode
)

// Coding style flags.
const (
	CodingStylePrecincts = codestream.CodingStylePrecincts
	CodingStyleSOP       = codestream.CodingStyleSOP
	CodingStyleEPH       = codestream.CodingStyleEPH

	// Only bypass and termination change the packet header syntax. The
	// others are passed through for the block coder.
	CodeBlockBypass                 = codestream.CodeBlockBypass
	CodeBlockReset                  = codestream.CodeBlockReset
	CodeBlockTermination            = codestream.CodeBlockTermination
	CodeBlockVerticalCausal         = codestream.CodeBlockVerticalCausal
	CodeBlockPredictableTermination = codestream.CodeBlockPredictableTermination
	CodeBlockSegmentationSymbols    = codestream.CodeBlockSegmentationSymbols
)

// Errors returned by the packet engine. Test for them with errors.Is.
var (
	ErrOutOfMemory   = tcd.ErrOutOfMemory
	ErrTruncated     = tcd.ErrTruncated
	ErrOverflow      = tcd.ErrOverflow
	ErrCorruptStream = tcd.ErrCorruptStream
)

// NewTile builds the code-block tree of a tile.
func NewTile(params *TileCodingParams, mode Mode) (*Tile, error) {
	return tcd.NewTile(params, mode)
}

// NewEncoderPasses builds the pass data of a code-block from the pass
// lengths and bytes produced by the block coder.
func NewEncoderPasses(lengths []int, data []byte, style uint8, numLayers int) (*EncoderPasses, error) {
	return tcd.NewEncoderPasses(lengths, data, style, numLayers)
}

// SegmentTerminations returns which passes the block coder must terminate
// under the given code-block style.
func SegmentTerminations(numPasses int, style uint8) []bool {
	return tcd.SegmentTerminations(numPasses, style)
}

// ParseProgressionOrder parses a four letter order name such as "RPCL".
func ParseProgressionOrder(s string) (ProgressionOrder, error) {
	return codestream.ParseProgressionOrder(s)
}

// ParseTilePartDivision parses "none", "resolution", "layer" or
// "component". The empty string means TilePartNone.
func ParseTilePartDivision(s string) (TilePartDivision, error) {
	return codestream.ParseTilePartDivision(s)
}

// PacketOrder returns every packet of the tile in the order it appears in
// the codestream.
func PacketOrder(params *TileCodingParams) ([]PacketID, error) {
	iters, _, err := tcd.NewPacketIterators(params)
	if err != nil {
		return nil, err
	}
	var ids []PacketID
	for _, it := range iters {
		for id, ok := it.Next(); ok; id, ok = it.Next() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
