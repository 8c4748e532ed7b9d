package codestream

import (
	"testing"
)

func TestProgressionOrderString(t *testing.T) {
	tests := []struct {
		order ProgressionOrder
		want  string
	}{
		{LRCP, "LRCP"},
		{RLCP, "RLCP"},
		{RPCL, "RPCL"},
		{PCRL, "PCRL"},
		{CPRL, "CPRL"},
		{ProgressionOrder(9), "ProgressionOrder(9)"},
	}

	for _, tt := range tests {
		if got := tt.order.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if tt.order.Valid() {
			parsed, err := ParseProgressionOrder(tt.want)
			if err != nil || parsed != tt.order {
				t.Errorf("ParseProgressionOrder(%q) = %v, %v", tt.want, parsed, err)
			}
		}
	}

	if _, err := ParseProgressionOrder("LRPC"); err == nil {
		t.Error("ParseProgressionOrder(LRPC) should fail")
	}
	if got, _ := ParseProgressionOrder("cprl"); got != CPRL {
		t.Errorf("ParseProgressionOrder is case sensitive")
	}
}

func TestMarkerString(t *testing.T) {
	tests := []struct {
		marker Marker
		want   string
	}{
		{SOT, "SOT"},
		{SOD, "SOD"},
		{POC, "POC"},
		{PLT, "PLT"},
		{SOP, "SOP"},
		{EPH, "EPH"},
		{Marker(0xFF00), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.marker.String(); got != tt.want {
			t.Errorf("Marker(0x%04X).String() = %q, want %q", uint16(tt.marker), got, tt.want)
		}
	}
	if b := SOP.Bytes(); b != [2]byte{0xFF, 0x91} {
		t.Errorf("SOP.Bytes() = % X", b)
	}
}

func TestComponentPrecinct(t *testing.T) {
	c := ComponentParams{}
	if p := c.Precinct(3); p.Width() != 1<<15 || p.Height() != 1<<15 {
		t.Errorf("default precinct = %dx%d", p.Width(), p.Height())
	}

	c.PrecinctSizes = []PrecinctSize{{WidthExp: 4, HeightExp: 4}, {WidthExp: 5, HeightExp: 6}}
	if p := c.Precinct(0); p.Width() != 16 {
		t.Errorf("Precinct(0).Width() = %d, want 16", p.Width())
	}
	if p := c.Precinct(7); p.Width() != 32 || p.Height() != 64 {
		t.Errorf("Precinct(7) = %dx%d, want 32x64", p.Width(), p.Height())
	}

	c.NumDecompositions = 5
	c.CodeBlockWidthExp = 4
	c.CodeBlockHeightExp = 3
	if c.NumResolutions() != 6 || c.CodeBlockWidth() != 64 || c.CodeBlockHeight() != 32 {
		t.Errorf("derived values: res=%d cbw=%d cbh=%d", c.NumResolutions(), c.CodeBlockWidth(), c.CodeBlockHeight())
	}
}

func validParams() *TileCodingParams {
	return &TileCodingParams{
		X1:        64,
		Y1:        64,
		NumLayers: 2,
		Components: []ComponentParams{
			{SubsamplingX: 1, SubsamplingY: 1, NumDecompositions: 2, CodeBlockWidthExp: 2, CodeBlockHeightExp: 2},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *TileCodingParams)
		wantErr bool
	}{
		{"valid", func(p *TileCodingParams) {}, false},
		{"empty tile", func(p *TileCodingParams) { p.X1 = 0 }, true},
		{"no layers", func(p *TileCodingParams) { p.NumLayers = 0 }, true},
		{"no components", func(p *TileCodingParams) { p.Components = nil }, true},
		{"bad order", func(p *TileCodingParams) { p.ProgressionOrder = 5 }, true},
		{"zero subsampling", func(p *TileCodingParams) { p.Components[0].SubsamplingX = 0 }, true},
		{"code-block too large", func(p *TileCodingParams) { p.Components[0].CodeBlockWidthExp = 7 }, true},
		{"precinct exponent too large", func(p *TileCodingParams) {
			p.Components[0].PrecinctSizes = []PrecinctSize{{WidthExp: 16, HeightExp: 1}}
		}, true},
		{"zero precinct exponent above resolution 0", func(p *TileCodingParams) {
			p.Components[0].PrecinctSizes = []PrecinctSize{{0, 0}, {0, 1}}
		}, true},
		{"repeated zero precinct exponent", func(p *TileCodingParams) {
			p.Components[0].NumDecompositions = 2
			p.Components[0].PrecinctSizes = []PrecinctSize{{0, 0}}
		}, true},
		{"zero precinct exponent at resolution 0 only", func(p *TileCodingParams) {
			p.Components[0].NumDecompositions = 2
			p.Components[0].PrecinctSizes = []PrecinctSize{{0, 0}, {1, 1}}
		}, false},
		{"bad POC order", func(p *TileCodingParams) {
			p.ProgressionOrderChanges = []ProgressionOrderChange{{ProgressionOrder: 6}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTilePartDivision(t *testing.T) {
	for _, d := range []TilePartDivision{TilePartNone, TilePartResolution, TilePartLayer, TilePartComponent} {
		got, err := ParseTilePartDivision(d.String())
		if err != nil || got != d {
			t.Errorf("ParseTilePartDivision(%q) = %v, %v", d.String(), got, err)
		}
	}
	if _, err := ParseTilePartDivision("precinct"); err == nil {
		t.Error("ParseTilePartDivision(precinct) should fail")
	}
}
