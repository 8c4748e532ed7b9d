package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mrjoshuak/j2kpacket"
)

const smallTile = `
order = "lrcp"
layers = 2
sop = true
tile_parts = "layer"
plt = true
seed = 5

[tile]
x1 = 32
y1 = 32

[[component]]
dx = 1
dy = 1
decompositions = 1
cblk_width_exp = 1
cblk_height_exp = 1
style = ["bypass"]
precincts = [[3, 3], [4, 4]]
`

func testOptions() *j2kpacket.Options {
	return &j2kpacket.Options{Logger: log.New(io.Discard, "", 0)}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := loadConfig("tile.toml")
	require.NoError(t, err)

	params, err := cfg.params()
	require.NoError(t, err)
	require.Equal(t, j2kpacket.RPCL, params.ProgressionOrder)
	require.Equal(t, j2kpacket.TilePartResolution, params.TilePartDivision)
	require.Len(t, params.Components, 3)
	require.Len(t, params.ProgressionOrderChanges, 2)
	require.Equal(t, j2kpacket.CodeBlockBypass, params.Components[1].CodeBlockStyle)
	require.Equal(t, j2kpacket.CodeBlockTermination, params.Components[2].CodeBlockStyle)
	require.Equal(t, uint8(7), params.Components[0].PrecinctSizes[3].WidthExp)
	require.NotZero(t, params.CodingStyle&j2kpacket.CodingStylePrecincts)
	require.True(t, params.HasSOP())
	require.True(t, params.HasEPH())

	var out bytes.Buffer
	_, err = roundTrip(context.Background(), &out, cfg, params, testOptions())
	require.NoError(t, err)
	require.Contains(t, out.String(), "all code-blocks match")
}

func TestCodeBlockStyles(t *testing.T) {
	cfg, err := parseConfig("[tile]\nx1 = 8\ny1 = 8\n[[component]]\nstyle = [\"Lazy\", \"reset\", \"vcausal\", \"pterm\", \"segsym\"]\n")
	require.NoError(t, err)
	params, err := cfg.params()
	require.NoError(t, err)
	require.Equal(t, uint8(0x3B), params.Components[0].CodeBlockStyle)
	require.Zero(t, params.CodingStyle)
	require.Equal(t, j2kpacket.LRCP, params.ProgressionOrder)
	require.Equal(t, 1, params.NumLayers)
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"bad order", `order = "ABCD"` + "\n[tile]\nx1 = 8\ny1 = 8\n[[component]]\n"},
		{"bad style", "[tile]\nx1 = 8\ny1 = 8\n[[component]]\nstyle = [\"fast\"]\n"},
		{"bad tile parts", "tile_parts = \"precinct\"\n[tile]\nx1 = 8\ny1 = 8\n[[component]]\n"},
		{"no components", "[tile]\nx1 = 8\ny1 = 8\n"},
		{"empty tile", "[[component]]\n"},
		{"bad precinct", "[tile]\nx1 = 8\ny1 = 8\n[[component]]\nprecincts = [[16, 2]]\n"},
		{"bad poc order", "[tile]\nx1 = 8\ny1 = 8\n[[component]]\n[[poc]]\norder = \"XXXX\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseConfig(tt.toml)
			require.NoError(t, err)
			_, err = cfg.params()
			require.Error(t, err)
		})
	}

	_, err := parseConfig("layers = [")
	require.Error(t, err)
}

func TestPrintOrder(t *testing.T) {
	cfg, err := parseConfig(smallTile)
	require.NoError(t, err)
	params, err := cfg.params()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printOrder(context.Background(), &out, params, testOptions()))

	// 4 precincts at each of 2 resolutions, 2 layers.
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 16+1+2+1)
	require.Equal(t, "     0  L0 R0 C0 P0", lines[0])
	require.Equal(t, "     1  L0 R0 C0 P1", lines[1])
	require.Equal(t, "     8  L1 R0 C0 P0", lines[8])
	require.Equal(t, "16 packets, 2 tile-parts (layer)", lines[16])
	require.Equal(t, "tile-part 1: packets 8-15", lines[18])
	require.Equal(t, "component 0: 2 resolutions, code-blocks 8x8, precincts 8x8 16x16", lines[19])
}

func TestRoundTripCommand(t *testing.T) {
	cfg, err := parseConfig(smallTile)
	require.NoError(t, err)
	params, err := cfg.params()
	require.NoError(t, err)

	var out bytes.Buffer
	stream, err := roundTrip(context.Background(), &out, cfg, params, testOptions())
	require.NoError(t, err)
	require.Equal(t, []byte{0xFF, 0x90}, stream[:2])
	require.Contains(t, out.String(), "packets:    16")
	require.Contains(t, out.String(), "all code-blocks match")
}
