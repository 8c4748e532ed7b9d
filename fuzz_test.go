package j2kpacket

import (
	"context"
	"math/rand"
	"testing"
)

// FuzzDecodeTiles tests the packet decoder with arbitrary tile data.
// Run with: go test -fuzz=FuzzDecodeTiles -fuzztime=60s
func FuzzDecodeTiles(f *testing.F) {
	params := testParams(RPCL, TilePartNone)

	// A valid encoded tile
	tile := encodingTile(f, rand.New(rand.NewSource(1)), params)
	res, err := EncodeTiles(context.Background(), []TileJob{{Params: params, Tile: tile}}, nil)
	if err != nil || res[0].Err != nil {
		f.Fatal(err, res[0].Err)
	}
	f.Add(res[0].Parts[0].Data)

	// Empty packets with SOP and EPH
	f.Add([]byte{0xFF, 0x91, 0x00, 0x04, 0x00, 0x00, 0x00, 0xFF, 0x92})

	f.Add([]byte{})
	f.Add([]byte{0xFF})
	f.Add([]byte{0x80, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, tolerate := range []bool{false, true} {
			tile, err := NewTile(params, ModeDecode)
			if err != nil {
				t.Fatal(err)
			}
			// The decoder should never panic, regardless of input
			_, _ = DecodeTiles(context.Background(), []TileJob{{Params: params, Tile: tile, Data: data}},
				&Options{TolerateTruncation: tolerate})
		}
	})
}

// FuzzReadTile tests tile-part parsing with arbitrary input.
func FuzzReadTile(f *testing.F) {
	params := testParams(LRCP, TilePartNone)
	part := TilePart{
		Data:          []byte{0x80, 0x00},
		PacketLengths: []int{1, 1},
		ProgressionOrderChanges: []ProgressionOrderChange{
			{LayerEnd: 3, ResolutionEnd: 3, ComponentEnd: 2, ProgressionOrder: RPCL},
		},
	}
	seed, err := WriteTile(nil, params, 3, []TilePart{part}, true)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(seed)
	f.Add([]byte{0xFF, 0x90, 0x00, 0x0A})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _, _, _ = ReadTile(data, params)
	})
}
