package codestream

import (
	"testing"
)

// FuzzReadPOC tests the POC body parser with arbitrary input.
// Run with: go test -fuzz=FuzzReadPOC -fuzztime=60s
func FuzzReadPOC(f *testing.F) {
	f.Add([]byte{0x00, 0x00, 0x00, 0x01, 0x03, 0x03, 0x01}, 3)
	f.Add([]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x03, 0x01, 0x01, 0x00}, 300)
	f.Add([]byte{}, 1)

	f.Fuzz(func(t *testing.T, data []byte, numComponents int) {
		if len(data) > 0xFFFF-2 {
			return
		}
		pocs, err := ReadPOC(data, numComponents)
		if err != nil {
			return
		}
		out, err := AppendPOC(nil, pocs, numComponents)
		if err != nil {
			t.Fatalf("AppendPOC after successful ReadPOC: %v", err)
		}
		if string(out[4:]) != string(data) {
			t.Fatalf("POC body changed on round trip: % X -> % X", data, out[4:])
		}
	})
}

// FuzzReadPLT tests the PLT body parser with arbitrary input.
func FuzzReadPLT(f *testing.F) {
	f.Add([]byte{0x00, 0x81, 0x00, 0x05})
	f.Add([]byte{0x01})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		// The parser should not panic on any input
		_, _, _ = ReadPLT(data)
	})
}
