// Tier-2 packet coding.
//
// A packet carries the new coding passes of every code-block of one
// precinct for one layer: a bit-packed header (inclusion, zero bit-planes,
// pass counts and lengths) followed by the pass bytes in header order.

package tcd

import (
	"errors"
	"fmt"
	"log"

	"github.com/mrjoshuak/j2kpacket/internal/bio"
	"github.com/mrjoshuak/j2kpacket/internal/codestream"
)

const (
	// maxZeroBitPlanes bounds the zero bit-plane count of a code-block.
	maxZeroBitPlanes = 64

	// maxLengthBits bounds the width of a length field.
	maxLengthBits = 32

	sopLength = 6
	ephLength = 2
)

var (
	errEncodeTile = errors.New("tcd: tile was not built for encoding")
	errDecodeTile = errors.New("tcd: tile was not built for decoding")
)

// blockState is the part of a code-block a packet encode may change.
type blockState struct {
	numPasses  int
	numLenBits int
	firstLayer int
}

// PacketEncoder writes packets. It keeps scratch space between calls and is
// not safe for concurrent use.
type PacketEncoder struct {
	precincts []*Precinct
	nodes     []tagNode
	blocks    []blockState
}

// NewPacketEncoder creates a new packet encoder.
func NewPacketEncoder() *PacketEncoder {
	return &PacketEncoder{}
}

// Encode writes the packet id of tile into out and returns its length.
// Packets of a tile must be encoded in iterator order. If out is too small
// Encode returns ErrOverflow and leaves the tile as it was, so the call can
// be repeated with a larger buffer.
func (e *PacketEncoder) Encode(tile *Tile, tcp *codestream.TileCodingParams, id PacketID, out []byte) (int, error) {
	if tile.mode != ModeEncode {
		return 0, errEncodeTile
	}
	var err error
	e.precincts, err = tile.appendPrecincts(e.precincts[:0], id)
	if err != nil {
		return 0, err
	}

	e.save()
	n, err := e.encode(tile, tcp, id, out)
	if err != nil {
		e.restore()
		return 0, err
	}
	tile.packetSeq++
	return n, nil
}

func (e *PacketEncoder) save() {
	e.nodes = e.nodes[:0]
	e.blocks = e.blocks[:0]
	for _, prc := range e.precincts {
		e.nodes = prc.InclusionTree.appendState(e.nodes)
		e.nodes = prc.IMSBTree.appendState(e.nodes)
		for _, cb := range prc.CodeBlocks {
			e.blocks = append(e.blocks, blockState{cb.NumPasses, cb.NumLenBits, cb.FirstLayer})
		}
	}
}

func (e *PacketEncoder) restore() {
	nodes, blocks := e.nodes, e.blocks
	for _, prc := range e.precincts {
		nodes = prc.InclusionTree.restoreState(nodes)
		nodes = prc.IMSBTree.restoreState(nodes)
		for _, cb := range prc.CodeBlocks {
			s := blocks[0]
			blocks = blocks[1:]
			cb.NumPasses, cb.NumLenBits, cb.FirstLayer = s.numPasses, s.numLenBits, s.firstLayer
		}
	}
}

// newPasses returns the number of passes cb adds in layer.
func newPasses(id PacketID, cb *CodeBlock) (int, error) {
	enc, ok := cb.Passes.(*EncoderPasses)
	if !ok {
		return 0, errEncodeTile
	}
	through := enc.passesThrough(id.Layer)
	switch {
	case through > len(enc.Passes):
		return 0, fmt.Errorf("packet %v: layer needs %d passes, code-block has %d", id, through, len(enc.Passes))
	case through < cb.NumPasses:
		return 0, fmt.Errorf("packet %v: layer pass counts decrease", id)
	}
	return through - cb.NumPasses, nil
}

func (e *PacketEncoder) encode(tile *Tile, tcp *codestream.TileCodingParams, id PacketID, out []byte) (int, error) {
	if id.Layer == 0 {
		for _, prc := range e.precincts {
			prc.InclusionTree.Reset()
			prc.IMSBTree.Reset()
			for i, cb := range prc.CodeBlocks {
				if cb.ZeroBitPlanes < 0 || cb.ZeroBitPlanes >= maxZeroBitPlanes {
					return 0, fmt.Errorf("packet %v: zero bit-plane count %d out of range", id, cb.ZeroBitPlanes)
				}
				cb.NumPasses = 0
				cb.NumLenBits = 0
				cb.FirstLayer = -1
				prc.IMSBTree.SetValue(i, cb.ZeroBitPlanes)
			}
		}
	}

	n := 0
	if tcp.HasSOP() {
		if len(out) < sopLength {
			return 0, fmt.Errorf("packet %v: SOP: %w", id, ErrOverflow)
		}
		m := codestream.SOP.Bytes()
		seq := tile.packetSeq & 0xFFFF
		copy(out, []byte{m[0], m[1], 0x00, 0x04, byte(seq >> 8), byte(seq)})
		n = sopLength
	}

	empty := true
	for _, prc := range e.precincts {
		for _, cb := range prc.CodeBlocks {
			np, err := newPasses(id, cb)
			if err != nil {
				return 0, err
			}
			if np > 0 {
				empty = false
			}
		}
	}

	w := bio.NewWriter(out[n:])
	w.WriteBool(!empty)
	if !empty {
		for _, prc := range e.precincts {
			if err := e.encodePrecinct(w, id, prc); err != nil {
				return 0, err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return 0, bitError(id, err)
	}
	n += w.Len()

	if tcp.HasEPH() {
		if len(out)-n < ephLength {
			return 0, fmt.Errorf("packet %v: EPH: %w", id, ErrOverflow)
		}
		m := codestream.EPH.Bytes()
		n += copy(out[n:], m[:])
	}

	for _, prc := range e.precincts {
		for _, cb := range prc.CodeBlocks {
			np, _ := newPasses(id, cb)
			if np == 0 {
				continue
			}
			enc := cb.Encoder()
			start, end := enc.offset(cb.NumPasses), enc.offset(cb.NumPasses+np)
			if end > len(enc.Data) {
				return 0, fmt.Errorf("packet %v: pass lengths exceed the %d bytes of code-block data", id, len(enc.Data))
			}
			if end-start > len(out)-n {
				return 0, fmt.Errorf("packet %v: body: %w", id, ErrOverflow)
			}
			n += copy(out[n:], enc.Data[start:end])
			cb.NumPasses += np
		}
	}

	return n, nil
}

// encodePrecinct writes the header fields of the code-blocks of one band.
func (e *PacketEncoder) encodePrecinct(w *bio.Writer, id PacketID, prc *Precinct) error {
	for i, cb := range prc.CodeBlocks {
		if np, _ := newPasses(id, cb); np > 0 && !cb.Included() {
			prc.InclusionTree.SetValue(i, id.Layer)
		}
	}

	for i, cb := range prc.CodeBlocks {
		np, _ := newPasses(id, cb)

		// Inclusion
		if !cb.Included() {
			prc.InclusionTree.Encode(w, i, id.Layer+1)
		} else {
			w.WriteBool(np > 0)
		}
		if np == 0 {
			continue
		}

		// Zero bit-planes, on first inclusion only
		if !cb.Included() {
			cb.FirstLayer = id.Layer
			cb.NumLenBits = 3
			prc.IMSBTree.Encode(w, i, tagTreeUnset)
		}

		if err := putNumPasses(w, np); err != nil {
			return fmt.Errorf("packet %v: %w", id, err)
		}
		if err := putLengths(w, cb, np); err != nil {
			return fmt.Errorf("packet %v: %w", id, err)
		}
	}
	return nil
}

// lengthUnits calls fn for each run of passes sharing one length field. A
// run ends at a terminated pass or at the last pass.
func lengthUnits(passes []Pass, fn func(length, count int)) {
	length, count := 0, 0
	for i, p := range passes {
		length += p.Length
		count++
		if p.Terminated || i == len(passes)-1 {
			fn(length, count)
			length, count = 0, 0
		}
	}
}

// putLengths writes the Lblock increment and the length of every run of
// new passes of cb.
func putLengths(w *bio.Writer, cb *CodeBlock, np int) error {
	passes := cb.Encoder().Passes[cb.NumPasses : cb.NumPasses+np]

	increment := 0
	lengthUnits(passes, func(length, count int) {
		increment = max(increment, floorLog2(length)+1-(cb.NumLenBits+floorLog2(count)))
	})
	putCommaCode(w, increment)
	cb.NumLenBits += increment

	var err error
	lengthUnits(passes, func(length, count int) {
		width := cb.NumLenBits + floorLog2(count)
		switch {
		case length < 0:
			err = fmt.Errorf("negative pass length %d", length)
		case width > maxLengthBits:
			err = fmt.Errorf("length field of %d bits", width)
		}
		if err == nil {
			w.WriteBits(uint32(length), uint(width))
		}
	})
	return err
}

// putNumPasses writes the pass count code (ISO/IEC 15444-1 Table B.4).
func putNumPasses(w *bio.Writer, n int) error {
	switch {
	case n == 1:
		w.WriteBit(0)
	case n == 2:
		w.WriteBits(0x2, 2)
	case n <= 5:
		w.WriteBits(0xC|uint32(n-3), 4)
	case n <= 36:
		w.WriteBits(0x1E0|uint32(n-6), 9)
	case n <= maxCodeBlockPasses:
		w.WriteBits(0xFF80|uint32(n-37), 16)
	default:
		return fmt.Errorf("%d passes in one packet, at most %d allowed", n, maxCodeBlockPasses)
	}
	return nil
}

// putCommaCode writes n one bits followed by a zero bit.
func putCommaCode(w *bio.Writer, n int) {
	for ; n > 0; n-- {
		w.WriteBit(1)
	}
	w.WriteBit(0)
}

// chunk is one length field read from a header, waiting for its bytes.
type chunk struct {
	cb     *CodeBlock
	seg    int
	passes int
	length int
}

// PacketInfo describes the last packet read by a PacketDecoder.
type PacketInfo struct {
	ID           PacketID
	Empty        bool
	HeaderLength int // including SOP and EPH
	BodyLength   int
}

// PacketDecoder reads packets. It keeps scratch space between calls and is
// not safe for concurrent use.
type PacketDecoder struct {
	// Logger receives warnings about missing SOP and EPH markers. A nil
	// Logger discards them.
	Logger *log.Logger

	precincts []*Precinct
	chunks    []chunk
	last      PacketInfo
}

// NewPacketDecoder creates a new packet decoder that reports recoverable
// problems to logger, which may be nil.
func NewPacketDecoder(logger *log.Logger) *PacketDecoder {
	return &PacketDecoder{Logger: logger}
}

// Last returns information about the last packet decoded successfully.
func (d *PacketDecoder) Last() PacketInfo {
	return d.last
}

func (d *PacketDecoder) warnf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// Decode reads the packet id of tile from in and returns the number of
// bytes consumed. Packets of a tile must be decoded in iterator order.
//
// When in ends inside the packet body the code-block data that is
// complete is kept, and Decode returns the bytes consumed together with
// ErrTruncated.
func (d *PacketDecoder) Decode(tile *Tile, tcp *codestream.TileCodingParams, id PacketID, in []byte) (int, error) {
	if tile.mode != ModeDecode {
		return 0, errDecodeTile
	}
	var err error
	d.precincts, err = tile.appendPrecincts(d.precincts[:0], id)
	if err != nil {
		return 0, err
	}
	d.chunks = d.chunks[:0]

	if id.Layer == 0 {
		for _, prc := range d.precincts {
			prc.InclusionTree.Reset()
			prc.IMSBTree.Reset()
			for _, cb := range prc.CodeBlocks {
				cb.NumPasses = 0
				cb.NumLenBits = 0
				cb.FirstLayer = -1
				cb.ZeroBitPlanes = 0
				if dec := cb.Decoder(); dec != nil {
					dec.Segments = dec.Segments[:0]
				}
			}
		}
	}

	n := 0
	if tcp.HasSOP() {
		switch {
		case len(in) < sopLength:
			d.warnf("packet %v: not enough data for SOP marker", id)
		case in[0] != 0xFF || in[1] != 0x91:
			d.warnf("packet %v: expected SOP marker", id)
		default:
			n = sopLength
		}
	}

	r := bio.NewReader(in[n:])
	present, err := r.ReadBit()
	if err != nil {
		return 0, bitError(id, err)
	}
	if present == 1 {
		style := tile.Components[id.Component].CodeBlockStyle
		for _, prc := range d.precincts {
			for i, cb := range prc.CodeBlocks {
				if err := d.decodeCodeBlock(r, id, prc, i, cb, style); err != nil {
					return 0, err
				}
			}
		}
	}
	if err := r.Align(); err != nil {
		return 0, bitError(id, err)
	}
	n += r.Len()

	if tcp.HasEPH() {
		if len(in)-n < ephLength || in[n] != 0xFF || in[n+1] != 0x92 {
			d.warnf("packet %v: expected EPH marker", id)
		} else {
			n += ephLength
		}
	}
	header := n

	for _, c := range d.chunks {
		if c.length > len(in)-n {
			return n, fmt.Errorf("packet %v: code-block needs %d bytes, %d left: %w",
				id, c.length, len(in)-n, ErrTruncated)
		}
		seg := &c.cb.Decoder().Segments[c.seg]
		seg.Data = append(seg.Data, in[n:n+c.length]...)
		seg.NumPasses += c.passes
		c.cb.NumPasses += c.passes
		n += c.length
	}

	tile.packetSeq++
	d.last = PacketInfo{
		ID:           id,
		Empty:        present == 0,
		HeaderLength: header,
		BodyLength:   n - header,
	}
	return n, nil
}

// decodeCodeBlock reads the header fields of one code-block and queues
// its length fields.
func (d *PacketDecoder) decodeCodeBlock(r *bio.Reader, id PacketID, prc *Precinct, i int, cb *CodeBlock, style uint8) error {
	dec := cb.Decoder()
	if dec == nil {
		return errDecodeTile
	}

	// Inclusion
	var included bool
	if !cb.Included() {
		ok, err := prc.InclusionTree.Decode(r, i, id.Layer+1)
		if err != nil {
			return bitError(id, err)
		}
		included = ok
	} else {
		bit, err := r.ReadBit()
		if err != nil {
			return bitError(id, err)
		}
		included = bit == 1
	}
	if !included {
		return nil
	}

	// Zero bit-planes, on first inclusion only
	if !cb.Included() {
		threshold := 0
		for {
			ok, err := prc.IMSBTree.Decode(r, i, threshold)
			if err != nil {
				return bitError(id, err)
			}
			if ok {
				break
			}
			threshold++
			if threshold > maxZeroBitPlanes {
				return corrupt(id, "zero bit-plane count above %d", maxZeroBitPlanes-1)
			}
		}
		cb.ZeroBitPlanes = threshold - 1
		cb.FirstLayer = id.Layer
		cb.NumLenBits = 3
	}

	np, err := getNumPasses(r)
	if err != nil {
		return bitError(id, err)
	}
	if cb.NumPasses+np > maxCodeBlockPasses {
		return corrupt(id, "code-block has more than %d passes", maxCodeBlockPasses)
	}

	increment, err := getCommaCode(r, maxLengthBits-cb.NumLenBits)
	if err != nil {
		if errors.Is(err, ErrCorruptStream) {
			return fmt.Errorf("packet %v: %w", id, err)
		}
		return bitError(id, err)
	}
	cb.NumLenBits += increment

	// Continue the last segment unless it is full.
	segs := dec.Segments
	if len(segs) == 0 {
		segs = append(segs, Segment{MaxPasses: segmentMaxPasses(style, 0, true)})
	} else if last := segs[len(segs)-1]; last.NumPasses == last.MaxPasses {
		segs = append(segs, Segment{MaxPasses: segmentMaxPasses(style, last.MaxPasses, false)})
	}

	segno := len(segs) - 1
	filled := segs[segno].NumPasses
	for left := np; left > 0; {
		take := min(segs[segno].MaxPasses-filled, left)
		width := cb.NumLenBits + floorLog2(take)
		if width > maxLengthBits {
			return corrupt(id, "length field of %d bits", width)
		}
		length, err := r.ReadBits(uint(width))
		if err != nil {
			return bitError(id, err)
		}
		d.chunks = append(d.chunks, chunk{cb: cb, seg: segno, passes: take, length: int(length)})

		left -= take
		if left > 0 {
			segs = append(segs, Segment{MaxPasses: segmentMaxPasses(style, segs[segno].MaxPasses, false)})
			segno++
			filled = 0
		}
	}
	dec.Segments = segs

	return nil
}

// getNumPasses reads the pass count code.
func getNumPasses(r *bio.Reader) (int, error) {
	bit, err := r.ReadBit()
	if err != nil || bit == 0 {
		return 1, err
	}

	bit, err = r.ReadBit()
	if err != nil || bit == 0 {
		return 2, err
	}

	val, err := r.ReadBits(2)
	if err != nil {
		return 0, err
	}
	if val < 3 {
		return int(val) + 3, nil
	}

	val, err = r.ReadBits(5)
	if err != nil {
		return 0, err
	}
	if val < 31 {
		return int(val) + 6, nil
	}

	val, err = r.ReadBits(7)
	if err != nil {
		return 0, err
	}
	return int(val) + 37, nil
}

// getCommaCode reads one bits up to the first zero bit. More than limit
// one bits is a corrupt stream.
func getCommaCode(r *bio.Reader, limit int) (int, error) {
	n := 0
	for {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			return n, nil
		}
		n++
		if n > limit {
			return 0, fmt.Errorf("length increment above %d: %w", limit, ErrCorruptStream)
		}
	}
}
