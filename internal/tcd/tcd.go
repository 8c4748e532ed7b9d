// Package tcd implements the tile coder for JPEG 2000 packets.
//
// A tile is described by a tree of components, resolutions, bands,
// precincts and code-blocks. The packet iterator walks the packets of a
// tile in progression order and the packet codec (T2) writes or reads one
// packet at a time, updating the code-blocks it touches:
//   - NewTile builds the code-block tree for a tile
//   - NewPacketIterators orders the packets
//   - PacketEncoder and PacketDecoder code single packets
//   - TileEncoder and TileDecoder drive a whole tile
package tcd

import (
	"fmt"
	"math/bits"

	"github.com/mrjoshuak/j2kpacket/internal/codestream"
)

// Mode selects what the code-blocks of a tile carry.
type Mode uint8

const (
	// ModeEncode gives every code-block an *EncoderPasses.
	ModeEncode Mode = iota
	// ModeDecode gives every code-block an empty *DecoderSegments.
	ModeDecode
)

// Band orientations.
const (
	BandLL = iota
	BandHL
	BandLH
	BandHH
)

// Tile represents a single tile in the image.
type Tile struct {
	// Tile bounds on the reference grid
	X0, Y0, X1, Y1 int

	// Components
	Components []*TileComponent

	mode Mode

	// Packets coded so far; the low 16 bits go into SOP.
	packetSeq int
}

// TileComponent represents a single component within a tile.
type TileComponent struct {
	// Component index
	Index int

	// Component bounds (may differ due to subsampling)
	X0, Y0, X1, Y1 int

	// Code-block style (termination and bypass flags)
	CodeBlockStyle uint8

	// Resolution levels, lowest first
	Resolutions []*Resolution
}

// Resolution represents a resolution level within a tile-component.
type Resolution struct {
	// Resolution level (0 = lowest)
	Level int

	// Bounds at this resolution
	X0, Y0, X1, Y1 int

	// Precinct size exponents
	PrecinctWidthExp, PrecinctHeightExp uint8

	// Precinct grid dimensions
	PrecinctsX, PrecinctsY int

	// Bands at this resolution (1 for LL, 3 for others)
	Bands []*Band
}

// NumPrecincts returns the number of precincts of the resolution.
func (r *Resolution) NumPrecincts() int {
	return r.PrecinctsX * r.PrecinctsY
}

// Band represents a subband within a resolution level.
type Band struct {
	// Band orientation (BandLL, BandHL, BandLH, BandHH)
	Orientation int

	// Band bounds
	X0, Y0, X1, Y1 int

	// One precinct per precinct of the resolution. Precincts that do not
	// intersect the band have no code-blocks.
	Precincts []*Precinct
}

// Empty reports whether the band has zero area.
func (b *Band) Empty() bool {
	return b.X1 <= b.X0 || b.Y1 <= b.Y0
}

// Precinct represents the part of one precinct that falls in one band.
type Precinct struct {
	// Bounds
	X0, Y0, X1, Y1 int

	// Code-block grid dimensions
	CodeBlocksX, CodeBlocksY int

	// Code-blocks in raster order
	CodeBlocks []*CodeBlock

	// Tag trees for inclusion and zero bit-planes
	InclusionTree *TagTree
	IMSBTree      *TagTree
}

// CodeBlock represents a code-block as seen by the packet coder.
type CodeBlock struct {
	// Bounds
	X0, Y0, X1, Y1 int

	// Number of missing most significant bit-planes. Set by the caller
	// when encoding and filled in when decoding.
	ZeroBitPlanes int

	// Passes already in the stream
	NumPasses int

	// Length indicator width (Lblock)
	NumLenBits int

	// Layer in which the code-block was first included, -1 if never
	FirstLayer int

	// Coding pass data: *EncoderPasses or *DecoderSegments
	Passes Passes
}

// Included reports whether the code-block has been included in a packet.
func (cb *CodeBlock) Included() bool {
	return cb.FirstLayer >= 0
}

// Encoder returns the encoder pass data, or nil on a decoding tile.
func (cb *CodeBlock) Encoder() *EncoderPasses {
	p, _ := cb.Passes.(*EncoderPasses)
	return p
}

// Decoder returns the decoded segments, or nil on an encoding tile.
func (cb *CodeBlock) Decoder() *DecoderSegments {
	p, _ := cb.Passes.(*DecoderSegments)
	return p
}

// Passes is the coding pass data of a code-block. It is *EncoderPasses on a
// tile built with ModeEncode and *DecoderSegments with ModeDecode.
type Passes interface {
	isPasses()
}

// Pass is one coding pass of an encoded code-block.
type Pass struct {
	// Length in bytes
	Length int

	// The pass ends a codeword segment
	Terminated bool
}

// EncoderPasses holds the output of the block coder for one code-block.
type EncoderPasses struct {
	Passes []Pass

	// Data holds the bytes of all passes back to back.
	Data []byte

	// LayerPasses[l] is the number of passes included once layer l has
	// been coded. Layers past the end of the slice add no passes.
	LayerPasses []int
}

func (*EncoderPasses) isPasses() {}

// passesThrough returns the number of passes included up to layer.
func (e *EncoderPasses) passesThrough(layer int) int {
	if len(e.LayerPasses) == 0 {
		return 0
	}
	if layer >= len(e.LayerPasses) {
		return e.LayerPasses[len(e.LayerPasses)-1]
	}
	return e.LayerPasses[layer]
}

// offset returns the byte offset of pass n in Data.
func (e *EncoderPasses) offset(n int) int {
	off := 0
	for _, p := range e.Passes[:n] {
		off += p.Length
	}
	return off
}

// DecoderSegments collects the codeword segments read for one code-block.
type DecoderSegments struct {
	Segments []Segment
}

func (*DecoderSegments) isPasses() {}

// Len returns the number of bytes read for the code-block.
func (d *DecoderSegments) Len() int {
	n := 0
	for i := range d.Segments {
		n += len(d.Segments[i].Data)
	}
	return n
}

// Segment is a run of passes sharing one codeword segment.
type Segment struct {
	Data      []byte
	NumPasses int
	// Passes the segment can hold under the code-block style
	MaxPasses int
}

// NewTile builds the code-block tree of a tile. Every code-block gets pass
// data of the kind selected by mode.
func NewTile(tcp *codestream.TileCodingParams, mode Mode) (*Tile, error) {
	if err := tcp.Validate(); err != nil {
		return nil, err
	}
	if mode != ModeEncode && mode != ModeDecode {
		return nil, fmt.Errorf("tcd: invalid mode %d", mode)
	}

	t := &Tile{
		X0:         tcp.X0,
		Y0:         tcp.Y0,
		X1:         tcp.X1,
		Y1:         tcp.Y1,
		Components: make([]*TileComponent, len(tcp.Components)),
		mode:       mode,
	}

	for c := range tcp.Components {
		cp := &tcp.Components[c]
		dx, dy := int(cp.SubsamplingX), int(cp.SubsamplingY)

		tc := &TileComponent{
			Index:          c,
			X0:             ceilDiv(t.X0, dx),
			Y0:             ceilDiv(t.Y0, dy),
			X1:             ceilDiv(t.X1, dx),
			Y1:             ceilDiv(t.Y1, dy),
			CodeBlockStyle: cp.CodeBlockStyle,
			Resolutions:    make([]*Resolution, cp.NumResolutions()),
		}
		for r := range tc.Resolutions {
			tc.Resolutions[r] = newResolution(tc, cp, r, mode)
		}
		t.Components[c] = tc
	}

	return t, nil
}

// Mode returns the mode the tile was built with.
func (t *Tile) Mode() Mode {
	return t.mode
}

// CodeBlocks calls fn for every code-block of the tile, in component,
// resolution, band, precinct and raster order.
func (t *Tile) CodeBlocks(fn func(compno, resno, bandno, precno int, cb *CodeBlock)) {
	for c, tc := range t.Components {
		for r, res := range tc.Resolutions {
			for b, band := range res.Bands {
				for p, prc := range band.Precincts {
					for _, cb := range prc.CodeBlocks {
						fn(c, r, b, p, cb)
					}
				}
			}
		}
	}
}

// appendPrecincts appends the per-band precincts addressed by id.
func (t *Tile) appendPrecincts(dst []*Precinct, id PacketID) ([]*Precinct, error) {
	if id.Component < 0 || id.Component >= len(t.Components) {
		return dst, fmt.Errorf("packet %v: no such component", id)
	}
	tc := t.Components[id.Component]
	if id.Resolution < 0 || id.Resolution >= len(tc.Resolutions) {
		return dst, fmt.Errorf("packet %v: no such resolution", id)
	}
	res := tc.Resolutions[id.Resolution]
	if id.Precinct < 0 || id.Precinct >= res.NumPrecincts() {
		return dst, fmt.Errorf("packet %v: no such precinct", id)
	}
	if id.Layer < 0 {
		return dst, fmt.Errorf("packet %v: negative layer", id)
	}
	for _, band := range res.Bands {
		dst = append(dst, band.Precincts[id.Precinct])
	}
	return dst, nil
}

// resGeom is the geometry of one resolution level shared by the code-block
// tree and the packet iterator.
type resGeom struct {
	x0, y0, x1, y1 int
	pdx, pdy       uint
	pw, ph         int
}

func resolutionGeometry(cx0, cy0, cx1, cy1 int, cp *codestream.ComponentParams, resno int) resGeom {
	level := uint(cp.NumResolutions() - 1 - resno)
	ps := cp.Precinct(resno)

	g := resGeom{
		x0:  ceilDivPow2(cx0, level),
		y0:  ceilDivPow2(cy0, level),
		x1:  ceilDivPow2(cx1, level),
		y1:  ceilDivPow2(cy1, level),
		pdx: uint(ps.WidthExp),
		pdy: uint(ps.HeightExp),
	}
	if g.x0 < g.x1 {
		g.pw = (ceilDivPow2(g.x1, g.pdx)<<g.pdx - floorDivPow2(g.x0, g.pdx)<<g.pdx) >> g.pdx
	}
	if g.y0 < g.y1 {
		g.ph = (ceilDivPow2(g.y1, g.pdy)<<g.pdy - floorDivPow2(g.y0, g.pdy)<<g.pdy) >> g.pdy
	}
	return g
}

// newResolution initializes a resolution level with its bands, precincts
// and code-blocks.
func newResolution(tc *TileComponent, cp *codestream.ComponentParams, resno int, mode Mode) *Resolution {
	g := resolutionGeometry(tc.X0, tc.Y0, tc.X1, tc.Y1, cp, resno)
	level := uint(cp.NumResolutions() - 1 - resno)

	res := &Resolution{
		Level:             resno,
		X0:                g.x0,
		Y0:                g.y0,
		X1:                g.x1,
		Y1:                g.y1,
		PrecinctWidthExp:  uint8(g.pdx),
		PrecinctHeightExp: uint8(g.pdy),
		PrecinctsX:        g.pw,
		PrecinctsY:        g.ph,
	}

	// Code-block groups are precincts projected into the bands, which
	// are half the size above the lowest resolution.
	cbgX0 := floorDivPow2(g.x0, g.pdx) << g.pdx
	cbgY0 := floorDivPow2(g.y0, g.pdy) << g.pdy
	cbgW, cbgH := g.pdx, g.pdy
	if resno == 0 {
		res.Bands = []*Band{{
			Orientation: BandLL,
			X0:          g.x0,
			Y0:          g.y0,
			X1:          g.x1,
			Y1:          g.y1,
		}}
	} else {
		cbgX0 = ceilDivPow2(cbgX0, 1)
		cbgY0 = ceilDivPow2(cbgY0, 1)
		cbgW--
		cbgH--

		res.Bands = make([]*Band, 3)
		for b := range res.Bands {
			orient := b + 1
			x0b, y0b := orient&1, orient>>1
			res.Bands[b] = &Band{
				Orientation: orient,
				X0:          ceilDivPow2(tc.X0-(1<<level)*x0b, level+1),
				Y0:          ceilDivPow2(tc.Y0-(1<<level)*y0b, level+1),
				X1:          ceilDivPow2(tc.X1-(1<<level)*x0b, level+1),
				Y1:          ceilDivPow2(tc.Y1-(1<<level)*y0b, level+1),
			}
		}
	}

	cbw := min(uint(cp.CodeBlockWidthExp)+2, cbgW)
	cbh := min(uint(cp.CodeBlockHeightExp)+2, cbgH)

	for _, band := range res.Bands {
		band.Precincts = make([]*Precinct, res.NumPrecincts())
		for p := range band.Precincts {
			x0 := cbgX0 + (p%g.pw)<<cbgW
			y0 := cbgY0 + (p/g.pw)<<cbgH
			band.Precincts[p] = newPrecinct(band, x0, y0, x0+1<<cbgW, y0+1<<cbgH, cbw, cbh, mode)
		}
	}

	return res
}

// newPrecinct clips a code-block group to its band and lays out the
// code-blocks inside it.
func newPrecinct(band *Band, x0, y0, x1, y1 int, cbw, cbh uint, mode Mode) *Precinct {
	prc := &Precinct{
		X0: max(x0, band.X0),
		Y0: max(y0, band.Y0),
		X1: min(x1, band.X1),
		Y1: min(y1, band.Y1),
	}

	cbX0 := floorDivPow2(prc.X0, cbw) << cbw
	cbY0 := floorDivPow2(prc.Y0, cbh) << cbh
	if prc.X1 > prc.X0 && prc.Y1 > prc.Y0 {
		prc.CodeBlocksX = (ceilDivPow2(prc.X1, cbw)<<cbw - cbX0) >> cbw
		prc.CodeBlocksY = (ceilDivPow2(prc.Y1, cbh)<<cbh - cbY0) >> cbh
	}

	prc.CodeBlocks = make([]*CodeBlock, prc.CodeBlocksX*prc.CodeBlocksY)
	for i := range prc.CodeBlocks {
		bx := cbX0 + (i%prc.CodeBlocksX)<<cbw
		by := cbY0 + (i/prc.CodeBlocksX)<<cbh
		cb := &CodeBlock{
			X0:         max(bx, prc.X0),
			Y0:         max(by, prc.Y0),
			X1:         min(bx+1<<cbw, prc.X1),
			Y1:         min(by+1<<cbh, prc.Y1),
			FirstLayer: -1,
		}
		if mode == ModeEncode {
			cb.Passes = &EncoderPasses{}
		} else {
			cb.Passes = &DecoderSegments{}
		}
		prc.CodeBlocks[i] = cb
	}

	prc.InclusionTree = NewTagTree(prc.CodeBlocksX, prc.CodeBlocksY)
	prc.IMSBTree = NewTagTree(prc.CodeBlocksX, prc.CodeBlocksY)

	return prc
}

// Helper functions

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func ceilDivPow2(a int, b uint) int {
	return (a + (1 << b) - 1) >> b
}

func floorDivPow2(a int, b uint) int {
	return a >> b
}

// floorLog2 returns floor(log2(a)), and 0 for a <= 1.
func floorLog2(a int) int {
	if a <= 1 {
		return 0
	}
	return bits.Len(uint(a)) - 1
}
