package tcd

import (
	"github.com/mrjoshuak/j2kpacket/internal/bio"
)

// tagTreeUnset is the value of a leaf that has not been set. It is above
// any threshold used for inclusion and larger than any zero bit-plane count.
const tagTreeUnset = 999

// TagTree implements a tag tree for incremental coding (ISO/IEC 15444-1
// B.10.2). Each node holds the minimum of its children; coding a leaf
// against a threshold reveals whether its value is below the threshold,
// sending only the bits not already known from earlier queries.
type TagTree struct {
	width  int
	height int
	widths []int // row length at each level, leaves first
	nodes  [][]tagNode
	path   []*tagNode
}

type tagNode struct {
	value int
	low   int
	known bool
}

// NewTagTree creates a new tag tree with width x height leaves.
func NewTagTree(width, height int) *TagTree {
	t := &TagTree{
		width:  width,
		height: height,
	}
	if width <= 0 || height <= 0 {
		return t
	}

	w, h := width, height
	for {
		t.widths = append(t.widths, w)
		t.nodes = append(t.nodes, make([]tagNode, w*h))
		if w == 1 && h == 1 {
			break
		}
		w = (w + 1) / 2
		h = (h + 1) / 2
	}
	t.path = make([]*tagNode, len(t.nodes))
	t.Reset()

	return t
}

// NumLeaves returns the number of leaves.
func (t *TagTree) NumLeaves() int {
	if len(t.nodes) == 0 {
		return 0
	}
	return len(t.nodes[0])
}

// Reset clears all values and coding state.
func (t *TagTree) Reset() {
	for level := range t.nodes {
		for i := range t.nodes[level] {
			t.nodes[level][i] = tagNode{value: tagTreeUnset}
		}
	}
}

// SetValue lowers the value of a leaf and of every ancestor above it.
func (t *TagTree) SetValue(leaf, value int) {
	x, y := leaf%t.width, leaf/t.width
	for level := range t.nodes {
		n := &t.nodes[level][y*t.widths[level]+x]
		if n.value <= value {
			break
		}
		n.value = value
		x >>= 1
		y >>= 1
	}
}

// Value returns the current value of a leaf.
func (t *TagTree) Value(leaf int) int {
	return t.nodes[0][leaf].value
}

// leafPath fills t.path with the nodes from leaf up to the root.
func (t *TagTree) leafPath(leaf int) []*tagNode {
	x, y := leaf%t.width, leaf/t.width
	for level := range t.nodes {
		t.path[level] = &t.nodes[level][y*t.widths[level]+x]
		x >>= 1
		y >>= 1
	}
	return t.path
}

// Encode writes the bits telling whether the leaf value is below
// threshold. Bits already sent for shared ancestors are not repeated.
func (t *TagTree) Encode(w *bio.Writer, leaf, threshold int) {
	path := t.leafPath(leaf)
	low := 0
	for i := len(path) - 1; i >= 0; i-- {
		n := path[i]
		if low > n.low {
			n.low = low
		} else {
			low = n.low
		}
		for low < threshold {
			if low >= n.value {
				if !n.known {
					w.WriteBit(1)
					n.known = true
				}
				break
			}
			w.WriteBit(0)
			low++
		}
		n.low = low
	}
}

// Decode reads the bits written by Encode and reports whether the leaf
// value is below threshold.
func (t *TagTree) Decode(r *bio.Reader, leaf, threshold int) (bool, error) {
	path := t.leafPath(leaf)
	low := 0
	for i := len(path) - 1; i >= 0; i-- {
		n := path[i]
		if low > n.low {
			n.low = low
		} else {
			low = n.low
		}
		for low < threshold && low < n.value {
			bit, err := r.ReadBit()
			if err != nil {
				return false, err
			}
			if bit == 1 {
				n.value = low
			} else {
				low++
			}
		}
		n.low = low
	}
	return path[0].value < threshold, nil
}

// appendState appends a copy of every node to dst.
func (t *TagTree) appendState(dst []tagNode) []tagNode {
	for _, level := range t.nodes {
		dst = append(dst, level...)
	}
	return dst
}

// restoreState overwrites the nodes from src and returns what is left of it.
func (t *TagTree) restoreState(src []tagNode) []tagNode {
	for _, level := range t.nodes {
		src = src[copy(level, src):]
	}
	return src
}
