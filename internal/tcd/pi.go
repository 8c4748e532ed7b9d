package tcd

import (
	"fmt"
	"math/bits"

	"github.com/mrjoshuak/j2kpacket/internal/codestream"
)

// PacketID names one packet of a tile.
type PacketID struct {
	Layer      int
	Resolution int
	Component  int
	Precinct   int
}

// String returns the packet position as "L0 R1 C2 P3".
func (id PacketID) String() string {
	return fmt.Sprintf("L%d R%d C%d P%d", id.Layer, id.Resolution, id.Component, id.Precinct)
}

// maxInclusionBits bounds the inclusion state of one tile.
const maxInclusionBits = 1 << 32

// InclusionState records which packets of a tile have been emitted. It is
// shared by all iterators of the tile so that a packet named by several
// progression order changes is only emitted once.
type InclusionState struct {
	words               []uint64
	stepC, stepR, stepL int
	size                int
}

func newInclusionState(numLayers, maxRes, numComps, maxPrec int) (*InclusionState, error) {
	s := &InclusionState{stepC: maxPrec}
	var ok bool
	if s.stepR, ok = mulSize(numComps, s.stepC); !ok {
		return nil, fmt.Errorf("%d components x %d precincts: %w", numComps, maxPrec, ErrOutOfMemory)
	}
	if s.stepL, ok = mulSize(maxRes, s.stepR); !ok {
		return nil, fmt.Errorf("%d resolutions: %w", maxRes, ErrOutOfMemory)
	}
	if s.size, ok = mulSize(numLayers, s.stepL); !ok {
		return nil, fmt.Errorf("%d layers: %w", numLayers, ErrOutOfMemory)
	}
	s.words = make([]uint64, (s.size+63)/64)
	return s, nil
}

func mulSize(a, b int) (int, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > maxInclusionBits {
		return 0, false
	}
	return int(lo), true
}

func (s *InclusionState) index(id PacketID) int {
	return id.Layer*s.stepL + id.Resolution*s.stepR + id.Component*s.stepC + id.Precinct
}

// Contains reports whether the packet has been emitted.
func (s *InclusionState) Contains(id PacketID) bool {
	i := s.index(id)
	return s.words[i/64]&(1<<(i%64)) != 0
}

// TestAndSet marks the packet as emitted and reports whether it was not
// marked before.
func (s *InclusionState) TestAndSet(id PacketID) bool {
	i := s.index(id)
	w, b := i/64, uint64(1)<<(i%64)
	if s.words[w]&b != 0 {
		return false
	}
	s.words[w] |= b
	return true
}

type axis uint8

const (
	axisLayer axis = iota
	axisResolution
	axisComponent
	axisPosition
)

// progressionAxes lists the loop variables of each order, outermost first.
var progressionAxes = [...][4]axis{
	codestream.LRCP: {axisLayer, axisResolution, axisComponent, axisPosition},
	codestream.RLCP: {axisResolution, axisLayer, axisComponent, axisPosition},
	codestream.RPCL: {axisResolution, axisPosition, axisComponent, axisLayer},
	codestream.PCRL: {axisPosition, axisComponent, axisResolution, axisLayer},
	codestream.CPRL: {axisComponent, axisPosition, axisResolution, axisLayer},
}

// piComponent is the geometry of one component as seen by the iterator.
type piComponent struct {
	dx, dy      int
	resolutions []resGeom
}

// PacketIterator iterates over the packets of one progression segment of a
// tile. For LRCP and RLCP the position variable is the precinct index. For
// RPCL, PCRL and CPRL it walks a grid on the reference grid, and a grid
// point names a packet only where it is the corner of a precinct of the
// current component and resolution.
type PacketIterator struct {
	comps              []piComponent
	tx0, ty0, tx1, ty1 int
	numLayers          int
	maxPrecincts       int
	include            *InclusionState

	order codestream.ProgressionOrder
	axes  [4]axis
	depth [4]int // depth of each axis
	// Position variable walks the stepping grid
	positional bool

	// Segment bounds
	layEnd             int
	resStart, resEnd   int
	compStart, compEnd int
	precStart, precEnd int

	// Loop state
	pos, hi       [4]int
	started, done bool
	xs, ys        []int
	gridReady     bool
	precno        int
}

// NewPacketIterators creates one iterator per progression order change of
// the tile, or a single iterator covering the whole tile in the default
// order when there are none. All iterators share the returned inclusion
// state and must be run in order.
func NewPacketIterators(tcp *codestream.TileCodingParams) ([]*PacketIterator, *InclusionState, error) {
	if err := tcp.Validate(); err != nil {
		return nil, nil, err
	}

	comps := make([]piComponent, len(tcp.Components))
	maxRes, maxPrec := tcp.MaxResolutions(), 0
	for c := range tcp.Components {
		cp := &tcp.Components[c]
		dx, dy := int(cp.SubsamplingX), int(cp.SubsamplingY)
		cx0, cy0 := ceilDiv(tcp.X0, dx), ceilDiv(tcp.Y0, dy)
		cx1, cy1 := ceilDiv(tcp.X1, dx), ceilDiv(tcp.Y1, dy)

		comp := piComponent{dx: dx, dy: dy, resolutions: make([]resGeom, cp.NumResolutions())}
		for r := range comp.resolutions {
			g := resolutionGeometry(cx0, cy0, cx1, cy1, cp, r)
			comp.resolutions[r] = g
			maxPrec = max(maxPrec, g.pw*g.ph)
		}
		comps[c] = comp
	}

	include, err := newInclusionState(tcp.NumLayers, maxRes, len(comps), maxPrec)
	if err != nil {
		return nil, nil, err
	}

	pocs := tcp.ProgressionOrderChanges
	if len(pocs) == 0 {
		pocs = []codestream.ProgressionOrderChange{{
			LayerEnd:         uint16(tcp.NumLayers),
			ResolutionEnd:    uint8(maxRes),
			ComponentEnd:     uint16(len(comps)),
			ProgressionOrder: tcp.ProgressionOrder,
		}}
	}

	iters := make([]*PacketIterator, len(pocs))
	for i, poc := range pocs {
		it := &PacketIterator{
			comps:        comps,
			tx0:          tcp.X0,
			ty0:          tcp.Y0,
			tx1:          tcp.X1,
			ty1:          tcp.Y1,
			numLayers:    tcp.NumLayers,
			maxPrecincts: maxPrec,
			include:      include,
			order:        poc.ProgressionOrder,
			axes:         progressionAxes[poc.ProgressionOrder],
			layEnd:       min(int(poc.LayerEnd), tcp.NumLayers),
			resStart:     int(poc.ResolutionStart),
			resEnd:       min(int(poc.ResolutionEnd), maxRes),
			compStart:    int(poc.ComponentStart),
			compEnd:      min(int(poc.ComponentEnd), len(comps)),
			precStart:    poc.PrecinctStart,
			precEnd:      maxPrec,
		}
		if poc.PrecinctEnd > 0 {
			it.precEnd = min(poc.PrecinctEnd, maxPrec)
		}
		for d, a := range it.axes {
			it.depth[a] = d
		}
		it.positional = it.axes[3] == axisLayer
		iters[i] = it
	}

	return iters, include, nil
}

// NumPackets returns the number of packets a full pass over all iterators
// of the tile emits.
func NumPackets(tcp *codestream.TileCodingParams) (int, error) {
	iters, _, err := NewPacketIterators(tcp)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range iters {
		for _, ok := it.Next(); ok; _, ok = it.Next() {
			n++
		}
	}
	return n, nil
}

// Order returns the progression order of the segment.
func (it *PacketIterator) Order() codestream.ProgressionOrder {
	return it.order
}

// Range returns the segment bounds after clamping to the tile.
func (it *PacketIterator) Range() codestream.ProgressionOrderChange {
	return codestream.ProgressionOrderChange{
		ResolutionStart:  uint8(it.resStart),
		ComponentStart:   uint16(it.compStart),
		LayerEnd:         uint16(it.layEnd),
		ResolutionEnd:    uint8(it.resEnd),
		ComponentEnd:     uint16(it.compEnd),
		ProgressionOrder: it.order,
		PrecinctStart:    it.precStart,
		PrecinctEnd:      it.precEnd,
	}
}

// Next returns the next packet of the segment. It returns false once the
// segment is exhausted.
func (it *PacketIterator) Next() (PacketID, bool) {
	for it.advance() {
		id := PacketID{
			Layer:      it.pos[it.depth[axisLayer]],
			Resolution: it.resolution(),
			Component:  it.component(),
			Precinct:   it.precinct(),
		}
		if it.include.TestAndSet(id) {
			return id, true
		}
	}
	return PacketID{}, false
}

func (it *PacketIterator) component() int {
	return it.pos[it.depth[axisComponent]]
}

func (it *PacketIterator) resolution() int {
	return it.pos[it.depth[axisResolution]]
}

func (it *PacketIterator) precinct() int {
	if it.positional {
		return it.precno
	}
	return it.pos[it.depth[axisPosition]]
}

// advance moves the loop counters to the next complete tuple, innermost
// first. Entering a loop recomputes its bounds from the outer counters.
func (it *PacketIterator) advance() bool {
	if it.done {
		return false
	}

	last := len(it.axes) - 1
	d := last
	if it.started {
		it.pos[d]++
	} else {
		it.started = true
		d = 0
		it.enter(0)
	}

	for {
		if it.pos[d] < it.hi[d] {
			if d == last {
				return true
			}
			d++
			it.enter(d)
			continue
		}
		if d == 0 {
			it.done = true
			return false
		}
		d--
		it.pos[d]++
	}
}

// enter sets the bounds of the loop at depth d and resets its counter.
func (it *PacketIterator) enter(d int) {
	lo, hi := 0, 0
	switch it.axes[d] {
	case axisLayer:
		hi = it.layEnd
		if it.positional && !it.locate() {
			hi = 0
		}
	case axisResolution:
		lo, hi = it.resStart, it.resEnd
		if it.depth[axisComponent] < d {
			hi = min(hi, len(it.comps[it.component()].resolutions))
		}
	case axisComponent:
		lo, hi = it.compStart, it.compEnd
	case axisPosition:
		if it.positional {
			switch {
			case it.order == codestream.CPRL:
				c := it.component()
				it.xs, it.ys = it.steppingGrid(c, c+1)
			case !it.gridReady:
				it.xs, it.ys = it.steppingGrid(0, len(it.comps))
				it.gridReady = true
			}
			hi = len(it.xs) * len(it.ys)
		} else {
			c, r := it.component(), it.resolution()
			if r < len(it.comps[c].resolutions) {
				res := &it.comps[c].resolutions[r]
				lo, hi = it.precStart, min(it.precEnd, res.pw*res.ph)
			}
		}
	}
	it.pos[d], it.hi[d] = lo, hi
}

// steppingGrid returns the grid positions visited for components c0..c1:
// every multiple of the common precinct spacing of those components inside
// the tile, plus the tile origin. The spacing is the gcd of the per
// resolution spacings, so every precinct start lies on the grid.
func (it *PacketIterator) steppingGrid(c0, c1 int) (xs, ys []int) {
	var dx, dy int
	for c := c0; c < c1; c++ {
		comp := &it.comps[c]
		for r := range comp.resolutions {
			res := &comp.resolutions[r]
			level := uint(len(comp.resolutions) - 1 - r)
			if sx := uint64(comp.dx) << (res.pdx + level); sx < 1<<31 {
				dx = gcd(dx, int(sx))
			}
			if sy := uint64(comp.dy) << (res.pdy + level); sy < 1<<31 {
				dy = gcd(dy, int(sy))
			}
		}
	}
	if dx == 0 || dy == 0 {
		return nil, nil
	}
	return gridSteps(it.tx0, it.tx1, dx), gridSteps(it.ty0, it.ty1, dy)
}

// gcd returns the greatest common divisor of a and b. gcd(0, b) is b.
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func gridSteps(start, end, step int) []int {
	var steps []int
	for v := start; v < end; v += step - v%step {
		steps = append(steps, v)
	}
	return steps
}

// locate checks that the current grid point starts a precinct of the
// current component and resolution, and stores that precinct in precno.
func (it *PacketIterator) locate() bool {
	c, r := it.component(), it.resolution()
	comp := &it.comps[c]
	if r >= len(comp.resolutions) {
		return false
	}
	res := &comp.resolutions[r]
	level := uint(len(comp.resolutions) - 1 - r)
	rpx, rpy := res.pdx+level, res.pdy+level
	if rpx >= 31 || rpy >= 31 {
		return false
	}

	i := it.pos[it.depth[axisPosition]]
	x, y := it.xs[i%len(it.xs)], it.ys[i/len(it.xs)]

	// A misaligned partition still has a precinct at the tile origin.
	if y%(comp.dy<<rpy) != 0 && (y != it.ty0 || (res.y0<<level)%(1<<rpy) == 0) {
		return false
	}
	if x%(comp.dx<<rpx) != 0 && (x != it.tx0 || (res.x0<<level)%(1<<rpx) == 0) {
		return false
	}
	if res.pw == 0 || res.ph == 0 || res.x0 == res.x1 || res.y0 == res.y1 {
		return false
	}

	prci := floorDivPow2(ceilDiv(x, comp.dx<<level), res.pdx) - floorDivPow2(res.x0, res.pdx)
	prcj := floorDivPow2(ceilDiv(y, comp.dy<<level), res.pdy) - floorDivPow2(res.y0, res.pdy)
	if prci < 0 || prci >= res.pw || prcj < 0 || prcj >= res.ph {
		return false
	}
	precno := prci + prcj*res.pw
	if precno < it.precStart || precno >= it.precEnd {
		return false
	}
	it.precno = precno
	return true
}
