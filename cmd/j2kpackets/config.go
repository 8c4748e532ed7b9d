package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mrjoshuak/j2kpacket"
)

// tileConfig is the top-level TOML structure describing one tile.
type tileConfig struct {
	Tile       tileBounds        `toml:"tile"`
	Order      string            `toml:"order"`
	Layers     int               `toml:"layers"`
	SOP        bool              `toml:"sop"`
	EPH        bool              `toml:"eph"`
	TileParts  string            `toml:"tile_parts"` // none, resolution, layer or component
	PLT        bool              `toml:"plt"`
	Components []componentConfig `toml:"component"`
	POC        []pocConfig       `toml:"poc"`

	// Synthetic block coder output for roundtrip
	Seed      int64 `toml:"seed"`
	MaxPasses int   `toml:"max_passes"`
	MaxLength int   `toml:"max_length"`
}

type tileBounds struct {
	X0 int `toml:"x0"`
	Y0 int `toml:"y0"`
	X1 int `toml:"x1"`
	Y1 int `toml:"y1"`
}

type componentConfig struct {
	DX             uint8    `toml:"dx"`
	DY             uint8    `toml:"dy"`
	Decompositions uint8    `toml:"decompositions"`
	CodeBlockWidth uint8    `toml:"cblk_width_exp"` // width is 2^(exp+2)
	CodeBlockHigh  uint8    `toml:"cblk_height_exp"`
	Style          []string `toml:"style"` // bypass, reset, termall, vcausal, pterm, segsym
	Precincts      [][2]int `toml:"precincts"`
}

type pocConfig struct {
	ResStart  uint8  `toml:"res_start"`
	CompStart uint16 `toml:"comp_start"`
	LayerEnd  uint16 `toml:"layer_end"`
	ResEnd    uint8  `toml:"res_end"`
	CompEnd   uint16 `toml:"comp_end"`
	Order     string `toml:"order"`
	PrecStart int    `toml:"prec_start"`
	PrecEnd   int    `toml:"prec_end"`
}

// loadConfig reads a tile description from path.
func loadConfig(path string) (*tileConfig, error) {
	var cfg tileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// parseConfig reads a tile description from TOML text.
func parseConfig(data string) (*tileConfig, error) {
	var cfg tileConfig
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// params converts the configuration to tile coding parameters.
func (c *tileConfig) params() (*j2kpacket.TileCodingParams, error) {
	order, err := j2kpacket.ParseProgressionOrder(c.orderName())
	if err != nil {
		return nil, err
	}
	division, err := j2kpacket.ParseTilePartDivision(c.TileParts)
	if err != nil {
		return nil, err
	}

	p := &j2kpacket.TileCodingParams{
		X0: c.Tile.X0, Y0: c.Tile.Y0, X1: c.Tile.X1, Y1: c.Tile.Y1,
		ProgressionOrder: order,
		NumLayers:        c.Layers,
		TilePartDivision: division,
	}
	if p.NumLayers == 0 {
		p.NumLayers = 1
	}
	if c.SOP {
		p.CodingStyle |= j2kpacket.CodingStyleSOP
	}
	if c.EPH {
		p.CodingStyle |= j2kpacket.CodingStyleEPH
	}

	for i, cc := range c.Components {
		comp := j2kpacket.ComponentParams{
			SubsamplingX:       max(cc.DX, 1),
			SubsamplingY:       max(cc.DY, 1),
			NumDecompositions:  cc.Decompositions,
			CodeBlockWidthExp:  cc.CodeBlockWidth,
			CodeBlockHeightExp: cc.CodeBlockHigh,
		}
		for _, s := range cc.Style {
			switch strings.ToLower(s) {
			case "bypass", "lazy":
				comp.CodeBlockStyle |= j2kpacket.CodeBlockBypass
			case "termall":
				comp.CodeBlockStyle |= j2kpacket.CodeBlockTermination
			case "reset":
				comp.CodeBlockStyle |= j2kpacket.CodeBlockReset
			case "vcausal":
				comp.CodeBlockStyle |= j2kpacket.CodeBlockVerticalCausal
			case "pterm":
				comp.CodeBlockStyle |= j2kpacket.CodeBlockPredictableTermination
			case "segsym":
				comp.CodeBlockStyle |= j2kpacket.CodeBlockSegmentationSymbols
			default:
				return nil, fmt.Errorf("component %d: unknown code-block style %q", i, s)
			}
		}
		for _, pp := range cc.Precincts {
			if pp[0] < 0 || pp[0] > 15 || pp[1] < 0 || pp[1] > 15 {
				return nil, fmt.Errorf("component %d: precinct exponents %v out of range", i, pp)
			}
			comp.PrecinctSizes = append(comp.PrecinctSizes,
				j2kpacket.PrecinctSize{WidthExp: uint8(pp[0]), HeightExp: uint8(pp[1])})
		}
		if len(comp.PrecinctSizes) > 0 {
			p.CodingStyle |= j2kpacket.CodingStylePrecincts
		}
		p.Components = append(p.Components, comp)
	}

	for i, pc := range c.POC {
		order, err := j2kpacket.ParseProgressionOrder(pc.Order)
		if err != nil {
			return nil, fmt.Errorf("poc %d: %w", i, err)
		}
		p.ProgressionOrderChanges = append(p.ProgressionOrderChanges, j2kpacket.ProgressionOrderChange{
			ResolutionStart:  pc.ResStart,
			ComponentStart:   pc.CompStart,
			LayerEnd:         pc.LayerEnd,
			ResolutionEnd:    pc.ResEnd,
			ComponentEnd:     pc.CompEnd,
			ProgressionOrder: order,
			PrecinctStart:    pc.PrecStart,
			PrecinctEnd:      pc.PrecEnd,
		})
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *tileConfig) orderName() string {
	if c.Order == "" {
		return "LRCP"
	}
	return strings.ToUpper(c.Order)
}

// precinctRanges reports whether any POC entry limits the precinct range.
func (c *tileConfig) precinctRanges() bool {
	for _, pc := range c.POC {
		if pc.PrecStart != 0 || pc.PrecEnd != 0 {
			return true
		}
	}
	return false
}
