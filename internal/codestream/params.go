package codestream

import (
	"fmt"
)

// TileCodingParams holds everything the packet engine needs to know about
// one tile: its area on the reference grid, the component coding styles and
// the progression. It corresponds to the merged COD/COC/POC state of a tile.
type TileCodingParams struct {
	// Tile bounds on the reference grid
	X0, Y0, X1, Y1 int

	// Scod: SOP/EPH flags
	CodingStyle uint8

	// SGcod
	ProgressionOrder ProgressionOrder
	NumLayers        int

	Components []ComponentParams

	// Optional POC entries. When present they replace ProgressionOrder.
	ProgressionOrderChanges []ProgressionOrderChange

	// How the packet stream is split into tile-parts when encoding.
	TilePartDivision TilePartDivision
}

// ComponentParams holds the per-component data from SIZ and COD/COC.
type ComponentParams struct {
	// Subsampling factors (XRsiz, YRsiz)
	SubsamplingX uint8
	SubsamplingY uint8

	// SPcod/SPcoc
	NumDecompositions  uint8
	CodeBlockWidthExp  uint8
	CodeBlockHeightExp uint8
	CodeBlockStyle     uint8

	// Precinct sizes per resolution, lowest resolution first. Empty means
	// the maximum precinct size (2^15) at every resolution.
	PrecinctSizes []PrecinctSize
}

// NumResolutions returns the number of resolution levels.
func (c ComponentParams) NumResolutions() int {
	return int(c.NumDecompositions) + 1
}

// CodeBlockWidth returns the nominal code block width.
func (c ComponentParams) CodeBlockWidth() int {
	return 1 << (c.CodeBlockWidthExp + 2)
}

// CodeBlockHeight returns the nominal code block height.
func (c ComponentParams) CodeBlockHeight() int {
	return 1 << (c.CodeBlockHeightExp + 2)
}

// Precinct returns the precinct size of resolution level res. Missing
// entries repeat the last given size, as in COD when fewer sizes are given.
func (c ComponentParams) Precinct(res int) PrecinctSize {
	if len(c.PrecinctSizes) == 0 {
		return PrecinctSize{WidthExp: 15, HeightExp: 15}
	}
	if res >= len(c.PrecinctSizes) {
		return c.PrecinctSizes[len(c.PrecinctSizes)-1]
	}
	return c.PrecinctSizes[res]
}

// PrecinctSize holds the precinct dimensions for a resolution level.
type PrecinctSize struct {
	WidthExp  uint8 // PPx: width exponent
	HeightExp uint8 // PPy: height exponent
}

// Width returns the precinct width.
func (p PrecinctSize) Width() int {
	return 1 << p.WidthExp
}

// Height returns the precinct height.
func (p PrecinctSize) Height() int {
	return 1 << p.HeightExp
}

// ProgressionOrderChange holds one entry of a POC marker. The layer range
// always starts at 0; packets already emitted by an earlier entry are not
// repeated.
type ProgressionOrderChange struct {
	ResolutionStart  uint8
	ComponentStart   uint16
	LayerEnd         uint16
	ResolutionEnd    uint8
	ComponentEnd     uint16
	ProgressionOrder ProgressionOrder

	// Optional precinct index range. PrecinctEnd == 0 means no limit.
	// These are not carried by the POC marker.
	PrecinctStart int
	PrecinctEnd   int
}

// TilePartDivision selects where the encoder starts a new tile-part.
type TilePartDivision uint8

const (
	// TilePartNone puts the whole tile in one tile-part.
	TilePartNone TilePartDivision = iota
	// TilePartResolution starts a new tile-part when the resolution changes.
	TilePartResolution
	// TilePartLayer starts a new tile-part when the layer changes.
	TilePartLayer
	// TilePartComponent starts a new tile-part when the component changes.
	TilePartComponent
)

// String returns the name of the division.
func (d TilePartDivision) String() string {
	switch d {
	case TilePartNone:
		return "none"
	case TilePartResolution:
		return "resolution"
	case TilePartLayer:
		return "layer"
	case TilePartComponent:
		return "component"
	default:
		return fmt.Sprintf("TilePartDivision(%d)", uint8(d))
	}
}

// ParseTilePartDivision parses the names returned by String. The empty
// string means TilePartNone.
func ParseTilePartDivision(s string) (TilePartDivision, error) {
	switch s {
	case "", "none":
		return TilePartNone, nil
	case "resolution", "R":
		return TilePartResolution, nil
	case "layer", "L":
		return TilePartLayer, nil
	case "component", "C":
		return TilePartComponent, nil
	}
	return 0, fmt.Errorf("unknown tile-part division %q", s)
}

// MaxResolutions returns the largest resolution count of any component.
func (p *TileCodingParams) MaxResolutions() int {
	n := 0
	for _, c := range p.Components {
		n = max(n, c.NumResolutions())
	}
	return n
}

// HasSOP reports whether packets start with an SOP marker segment.
func (p *TileCodingParams) HasSOP() bool {
	return p.CodingStyle&CodingStyleSOP != 0
}

// HasEPH reports whether packet headers end with an EPH marker.
func (p *TileCodingParams) HasEPH() bool {
	return p.CodingStyle&CodingStyleEPH != 0
}

// Validate checks the parameters for consistency.
func (p *TileCodingParams) Validate() error {
	if p.X1 <= p.X0 || p.Y1 <= p.Y0 || p.X0 < 0 || p.Y0 < 0 {
		return fmt.Errorf("invalid tile bounds: (%d,%d)-(%d,%d)", p.X0, p.Y0, p.X1, p.Y1)
	}

	if p.NumLayers < 1 || p.NumLayers > 65535 {
		return fmt.Errorf("invalid number of layers: %d", p.NumLayers)
	}

	if len(p.Components) == 0 || len(p.Components) > 16384 {
		return fmt.Errorf("invalid number of components: %d", len(p.Components))
	}

	if !p.ProgressionOrder.Valid() {
		return fmt.Errorf("invalid progression order: %d", p.ProgressionOrder)
	}

	for i, c := range p.Components {
		if c.SubsamplingX == 0 || c.SubsamplingY == 0 {
			return fmt.Errorf("component %d: invalid subsampling: %dx%d",
				i, c.SubsamplingX, c.SubsamplingY)
		}
		if c.NumDecompositions > 32 {
			return fmt.Errorf("component %d: invalid number of decompositions: %d",
				i, c.NumDecompositions)
		}
		if c.CodeBlockWidthExp > 8 || c.CodeBlockHeightExp > 8 ||
			c.CodeBlockWidthExp+c.CodeBlockHeightExp > 8 {
			return fmt.Errorf("component %d: invalid code-block size: 2^%d x 2^%d",
				i, c.CodeBlockWidthExp+2, c.CodeBlockHeightExp+2)
		}
		for r, ps := range c.PrecinctSizes {
			if ps.WidthExp > 15 || ps.HeightExp > 15 {
				return fmt.Errorf("component %d: invalid precinct size at resolution %d", i, r)
			}
		}
		// Resolutions past the explicit entries repeat the last one.
		for r := 1; r < c.NumResolutions(); r++ {
			if ps := c.Precinct(r); ps.WidthExp == 0 || ps.HeightExp == 0 {
				return fmt.Errorf("component %d: precinct exponent 0 only allowed at resolution 0", i)
			}
		}
	}

	for i, poc := range p.ProgressionOrderChanges {
		if !poc.ProgressionOrder.Valid() {
			return fmt.Errorf("POC %d: invalid progression order: %d", i, poc.ProgressionOrder)
		}
		if poc.PrecinctStart < 0 || poc.PrecinctEnd < 0 {
			return fmt.Errorf("POC %d: negative precinct range", i)
		}
	}

	return nil
}
