package tcd

import (
	"fmt"

	"github.com/mrjoshuak/j2kpacket/internal/codestream"
)

// maxCodeBlockPasses is the largest pass count a packet header can signal.
const maxCodeBlockPasses = 164

// segmentMaxPasses returns how many passes fit in a codeword segment.
// prev is the capacity of the previous segment of the code-block.
func segmentMaxPasses(style uint8, prev int, first bool) int {
	switch {
	case style&codestream.CodeBlockTermination != 0:
		return 1
	case style&codestream.CodeBlockBypass != 0:
		// Ten arithmetic-coded passes, then raw and arithmetic segments
		// alternate.
		if first {
			return 10
		}
		if prev == 1 || prev == 10 {
			return 2
		}
		return 1
	}
	return 109
}

// SegmentTerminations returns, for each of numPasses passes, whether the
// pass ends a codeword segment under the given code-block style. The block
// coder must terminate exactly these passes so that the lengths written
// into packet headers line up with the segments a decoder expects.
func SegmentTerminations(numPasses int, style uint8) []bool {
	term := make([]bool, numPasses)
	capacity := segmentMaxPasses(style, 0, true)
	filled := 0
	for i := range term {
		filled++
		if filled == capacity || i == numPasses-1 {
			term[i] = true
			capacity = segmentMaxPasses(style, capacity, false)
			filled = 0
		}
	}
	return term
}

// AssignLayers spreads numPasses passes evenly over numLayers layers and
// returns the cumulative pass count after each layer. Early layers get no
// passes when there are fewer passes than layers.
func AssignLayers(numPasses, numLayers int) []int {
	layers := make([]int, numLayers)
	for l := range layers {
		layers[l] = (l + 1) * numPasses / numLayers
	}
	return layers
}

// NewEncoderPasses builds the pass data of a code-block from the pass
// lengths produced by the block coder. Termination flags follow style and
// passes are spread over numLayers layers.
func NewEncoderPasses(lengths []int, data []byte, style uint8, numLayers int) (*EncoderPasses, error) {
	if len(lengths) > maxCodeBlockPasses {
		return nil, fmt.Errorf("tcd: %d passes, at most %d allowed", len(lengths), maxCodeBlockPasses)
	}
	total := 0
	for i, n := range lengths {
		if n < 0 {
			return nil, fmt.Errorf("tcd: pass %d has negative length %d", i, n)
		}
		total += n
	}
	if total != len(data) {
		return nil, fmt.Errorf("tcd: pass lengths add up to %d bytes, have %d", total, len(data))
	}

	term := SegmentTerminations(len(lengths), style)
	e := &EncoderPasses{
		Passes:      make([]Pass, len(lengths)),
		Data:        data,
		LayerPasses: AssignLayers(len(lengths), numLayers),
	}
	for i, n := range lengths {
		e.Passes[i] = Pass{Length: n, Terminated: term[i]}
	}
	return e, nil
}
