// Command j2kpackets inspects and exercises the packet layout of a JPEG 2000
// tile described by a TOML file.
//
// Usage:
//
//	j2kpackets [-config tile.toml] order
//	j2kpackets [-config tile.toml] [-o tile.j2c] roundtrip
//
// order prints every packet of the tile in codestream order and how the
// packets split into tile-parts. roundtrip fills the code-blocks with
// synthetic coding passes, encodes the tile, writes its tile-parts, reads
// them back and checks that every code-block decodes to the same bytes.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"

	"github.com/mrjoshuak/j2kpacket"
)

func main() {
	configPath := flag.String("config", "tile.toml", "tile description")
	output := flag.String("o", "", "write the encoded tile-parts to this file (roundtrip)")
	verbose := flag.Bool("v", false, "log decoder warnings")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] order|roundtrip\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	params, err := cfg.params()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(os.Stderr, "j2kpackets: ", 0)
	}
	opts := &j2kpacket.Options{Logger: logger}

	ctx := context.Background()
	switch flag.Arg(0) {
	case "order":
		err = printOrder(ctx, os.Stdout, params, opts)
	case "roundtrip":
		var stream []byte
		stream, err = roundTrip(ctx, os.Stdout, cfg, params, opts)
		if err == nil && *output != "" {
			err = os.WriteFile(*output, stream, 0o644)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

// printOrder writes the packet sequence, its tile-part split and the
// component layout to w.
func printOrder(ctx context.Context, w io.Writer, params *j2kpacket.TileCodingParams, opts *j2kpacket.Options) error {
	ids, err := j2kpacket.PacketOrder(params)
	if err != nil {
		return err
	}
	for i, id := range ids {
		fmt.Fprintf(w, "%6d  %v\n", i, id)
	}

	// Empty code-blocks are enough to see where tile-parts start.
	tile, err := j2kpacket.NewTile(params, j2kpacket.ModeEncode)
	if err != nil {
		return err
	}
	res, err := j2kpacket.EncodeTiles(ctx, []j2kpacket.TileJob{{Params: params, Tile: tile}}, opts)
	if err != nil {
		return err
	}
	if res[0].Err != nil {
		return res[0].Err
	}

	fmt.Fprintf(w, "%d packets, %d tile-parts (%v)\n", len(ids), len(res[0].Parts), params.TilePartDivision)
	first := 0
	for _, tp := range res[0].Parts {
		n := tp.NumPackets()
		fmt.Fprintf(w, "tile-part %d: packets %d-%d\n", tp.Index, first, first+n-1)
		first += n
	}
	for i, c := range params.Components {
		fmt.Fprintf(w, "component %d: %d resolutions, code-blocks %dx%d, precincts",
			i, c.NumResolutions(), c.CodeBlockWidth(), c.CodeBlockHeight())
		for r := 0; r < c.NumResolutions(); r++ {
			ps := c.Precinct(r)
			fmt.Fprintf(w, " %dx%d", ps.Width(), ps.Height())
		}
		fmt.Fprintln(w)
	}
	return nil
}

// roundTrip encodes synthetic code-block data, writes and re-reads the
// tile-parts, decodes them and compares. It returns the written tile-parts.
func roundTrip(ctx context.Context, w io.Writer, cfg *tileConfig, params *j2kpacket.TileCodingParams, opts *j2kpacket.Options) ([]byte, error) {
	enc, err := j2kpacket.NewTile(params, j2kpacket.ModeEncode)
	if err != nil {
		return nil, err
	}
	if err := fillPasses(cfg, params, enc); err != nil {
		return nil, err
	}

	res, err := j2kpacket.EncodeTiles(ctx, []j2kpacket.TileJob{{Params: params, Tile: enc}}, opts)
	if err != nil {
		return nil, err
	}
	if res[0].Err != nil {
		return nil, res[0].Err
	}
	stream, err := j2kpacket.WriteTile(nil, params, 0, res[0].Parts, cfg.PLT)
	if err != nil {
		return nil, err
	}

	_, parts, packets, err := j2kpacket.ReadTile(stream, params)
	if err != nil {
		return nil, err
	}
	// POC segments do not carry precinct ranges.
	decParams := j2kpacket.StreamParams(params, parts)
	if cfg.precinctRanges() {
		decParams = params
	}
	dec, err := j2kpacket.NewTile(decParams, j2kpacket.ModeDecode)
	if err != nil {
		return nil, err
	}
	dres, err := j2kpacket.DecodeTiles(ctx, []j2kpacket.TileJob{{Params: decParams, Tile: dec, Data: packets}}, opts)
	if err != nil {
		return nil, err
	}
	if dres[0].Err != nil {
		return nil, dres[0].Err
	}

	if err := compareBlocks(enc, dec); err != nil {
		return nil, err
	}

	stats := dres[0].Stats
	fmt.Fprintf(w, "tile-parts: %d (%d bytes)\n", len(parts), len(stream))
	fmt.Fprintf(w, "packets:    %d (%d empty)\n", stats.Packets, stats.EmptyPackets)
	fmt.Fprintf(w, "headers:    %d bytes\n", stats.HeaderBytes)
	fmt.Fprintf(w, "bodies:     %d bytes\n", stats.BodyBytes)
	fmt.Fprintln(w, "all code-blocks match")
	return stream, nil
}

// fillPasses gives every code-block random pass lengths and bytes.
func fillPasses(cfg *tileConfig, params *j2kpacket.TileCodingParams, tile *j2kpacket.Tile) error {
	rng := rand.New(rand.NewSource(cfg.Seed))
	maxPasses, maxLength := cfg.MaxPasses, cfg.MaxLength
	if maxPasses <= 0 {
		maxPasses = 30
	}
	if maxLength <= 0 {
		maxLength = 64
	}

	var err error
	tile.CodeBlocks(func(compno, _, _, _ int, cb *j2kpacket.CodeBlock) {
		if err != nil {
			return
		}
		lengths := make([]int, rng.Intn(maxPasses+1))
		total := 0
		for i := range lengths {
			lengths[i] = rng.Intn(maxLength + 1)
			total += lengths[i]
		}
		data := make([]byte, total)
		rng.Read(data)

		var passes *j2kpacket.EncoderPasses
		passes, err = j2kpacket.NewEncoderPasses(lengths, data, params.Components[compno].CodeBlockStyle, params.NumLayers)
		cb.ZeroBitPlanes = rng.Intn(16)
		cb.Passes = passes
	})
	return err
}

func compareBlocks(enc, dec *j2kpacket.Tile) error {
	var want [][]byte
	enc.CodeBlocks(func(_, _, _, _ int, cb *j2kpacket.CodeBlock) {
		want = append(want, cb.Encoder().Data)
	})

	i := 0
	var err error
	dec.CodeBlocks(func(compno, resno, bandno, _ int, cb *j2kpacket.CodeBlock) {
		var got []byte
		for _, seg := range cb.Decoder().Segments {
			got = append(got, seg.Data...)
		}
		if err == nil && !bytes.Equal(got, want[i]) {
			err = fmt.Errorf("code-block %d (component %d, resolution %d, band %d): decoded %d bytes, want %d",
				i, compno, resno, bandno, len(got), len(want[i]))
		}
		i++
	})
	return err
}
