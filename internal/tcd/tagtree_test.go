package tcd

import (
	"bytes"
	"testing"

	"github.com/mrjoshuak/j2kpacket/internal/bio"
)

// TestNewTagTree tests TagTree creation.
func TestNewTagTree(t *testing.T) {
	tests := []struct {
		width, height int
		expectLevels  int
	}{
		{1, 1, 1},   // Single node, 1 level
		{2, 2, 2},   // 2x2, needs 2 levels (4->1)
		{4, 4, 3},   // 4x4, needs 3 levels (16->4->1)
		{3, 3, 3},   // 3x3, needs 3 levels (9->4->1)
		{5, 7, 4},   // 5x7, needs 4 levels
		{16, 16, 5}, // 16x16, needs 5 levels
		{0, 3, 0},   // No leaves
	}

	for _, tt := range tests {
		tree := NewTagTree(tt.width, tt.height)
		if len(tree.nodes) != tt.expectLevels {
			t.Errorf("NewTagTree(%d, %d) has %d levels; want %d", tt.width, tt.height, len(tree.nodes), tt.expectLevels)
		}
		if tree.NumLeaves() != tt.width*tt.height {
			t.Errorf("NewTagTree(%d, %d).NumLeaves() = %d", tt.width, tt.height, tree.NumLeaves())
		}
	}
}

// TestTagTreeSetValue tests that values propagate as minima to the root.
func TestTagTreeSetValue(t *testing.T) {
	tree := NewTagTree(4, 4)

	tree.SetValue(0, 5)
	tree.SetValue(1, 3)
	tree.SetValue(15, 2)

	if got := tree.Value(0); got != 5 {
		t.Errorf("Value(0) = %d; want 5", got)
	}
	if got := tree.Value(4); got != tagTreeUnset {
		t.Errorf("Value(4) = %d; want unset", got)
	}
	if got := tree.nodes[1][0].value; got != 3 {
		t.Errorf("level 1 node 0 = %d; want 3", got)
	}
	if got := tree.nodes[2][0].value; got != 2 {
		t.Errorf("root = %d; want 2", got)
	}

	// Raising a value never raises the parents.
	tree.SetValue(1, 9)
	if got := tree.nodes[1][0].value; got != 3 {
		t.Errorf("level 1 node 0 after SetValue(1, 9) = %d; want 3", got)
	}
}

// TestTagTreeReset tests resetting the tag tree state.
func TestTagTreeReset(t *testing.T) {
	tree := NewTagTree(4, 4)
	tree.SetValue(0, 5)
	tree.nodes[0][0].low = 2
	tree.nodes[0][0].known = true

	tree.Reset()

	for level := range tree.nodes {
		for i, n := range tree.nodes[level] {
			if n != (tagNode{value: tagTreeUnset}) {
				t.Fatalf("level %d node %d = %+v after Reset", level, i, n)
			}
		}
	}
}

// TestTagTreeEncodeBits tests the exact bits of single leaf encodings.
func TestTagTreeEncodeBits(t *testing.T) {
	tests := []struct {
		name       string
		value      int
		thresholds []int
		expect     []byte
	}{
		// 0, 0, then 1 once the value is reached
		{"value 2 below threshold", 2, []int{3}, []byte{0x20}},
		// Same bits split across three queries
		{"incremental", 2, []int{1, 2, 3}, []byte{0x20}},
		// Only two zeros: the value is not below the threshold
		{"value above threshold", 5, []int{2}, []byte{0x00}},
		// Nothing is sent once the value is known
		{"repeated query", 0, []int{1, 1, 5}, []byte{0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := NewTagTree(1, 1)
			tree.SetValue(0, tt.value)

			dst := make([]byte, 4)
			w := bio.NewWriter(dst)
			for _, th := range tt.thresholds {
				tree.Encode(w, 0, th)
			}
			if err := w.Flush(); err != nil {
				t.Fatal(err)
			}
			if got := dst[:w.Len()]; !bytes.Equal(got, tt.expect) {
				t.Errorf("encoded % X; want % X", got, tt.expect)
			}
		})
	}
}

// TestTagTreeRoundTrip encodes every leaf of a tree against increasing
// thresholds and decodes the answers with a fresh tree.
func TestTagTreeRoundTrip(t *testing.T) {
	values := []int{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9}
	const width, height = 5, 3

	enc := NewTagTree(width, height)
	for i, v := range values {
		enc.SetValue(i, v)
	}

	dst := make([]byte, 256)
	w := bio.NewWriter(dst)
	var want []bool
	for threshold := 1; threshold <= 10; threshold++ {
		for leaf := range values {
			enc.Encode(w, leaf, threshold)
			want = append(want, values[leaf] < threshold)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	dec := NewTagTree(width, height)
	r := bio.NewReader(dst[:w.Len()])
	i := 0
	for threshold := 1; threshold <= 10; threshold++ {
		for leaf := range values {
			got, err := dec.Decode(r, leaf, threshold)
			if err != nil {
				t.Fatalf("Decode(leaf %d, threshold %d): %v", leaf, threshold, err)
			}
			if got != want[i] {
				t.Errorf("Decode(leaf %d, threshold %d) = %v; want %v", leaf, threshold, got, want[i])
			}
			i++
		}
	}
	for leaf, v := range values {
		if got := dec.Value(leaf); got != v {
			t.Errorf("decoded value of leaf %d = %d; want %d", leaf, got, v)
		}
	}
}

// TestTagTreeDecodeTruncated tests that running out of bits is reported.
func TestTagTreeDecodeTruncated(t *testing.T) {
	tree := NewTagTree(2, 2)
	r := bio.NewReader(nil)
	if _, err := tree.Decode(r, 3, 4); err != bio.ErrTruncated {
		t.Errorf("Decode on empty input = %v; want ErrTruncated", err)
	}
}

// TestTagTreeState tests saving and restoring the tree state.
func TestTagTreeState(t *testing.T) {
	tree := NewTagTree(3, 2)
	tree.SetValue(4, 2)

	saved := tree.appendState(nil)

	w := bio.NewWriter(make([]byte, 16))
	tree.Encode(w, 4, 5)
	tree.SetValue(0, 0)

	rest := tree.restoreState(saved)
	if len(rest) != 0 {
		t.Errorf("restoreState left %d nodes", len(rest))
	}
	if got := tree.appendState(nil); !equalNodes(got, saved) {
		t.Error("tree state differs after restore")
	}
}

func equalNodes(a, b []tagNode) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func BenchmarkTagTreeEncode(b *testing.B) {
	tree := NewTagTree(16, 16)
	for i := 0; i < 256; i++ {
		tree.SetValue(i, i%7)
	}
	dst := make([]byte, 4096)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.Reset()
		w := bio.NewWriter(dst)
		for leaf := 0; leaf < 256; leaf++ {
			tree.Encode(w, leaf, 8)
		}
		_ = w.Flush()
	}
}
