// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rom

import (
	"bytes"
	"errors"
	"testing"

	"github.com/llmp16/llmp16/memory"
)

func TestRoundTrip(t *testing.T) {
	img := &Image{Pages: [][]byte{{1, 2, 3}, {}, {0xff}}}
	var buf bytes.Buffer
	if _, err := img.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	want := []byte{0xE1, 0xFA, 3, 3, 0, 0, 0, 1, 0, 1, 2, 3, 0xff}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("encoded % X, expected % X", buf.Bytes(), want)
	}

	var got Image
	n, err := got.ReadFrom(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(want)) || len(got.Pages) != 3 || !bytes.Equal(got.Pages[0], []byte{1, 2, 3}) {
		t.Errorf("decoded %d bytes, pages %v", n, got.Pages)
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"empty", nil, ErrTruncated},
		{"magic", []byte{0x34, 0x12, 0}, ErrBadMagic},
		{"pages", []byte{0xE1, 0xFA, 129}, ErrTooManyPages},
		{"sizes", []byte{0xE1, 0xFA, 2, 1, 0}, ErrTruncated},
		{"oversize", []byte{0xE1, 0xFA, 1, 0x01, 0x80}, ErrPageTooLarge},
		{"payload", []byte{0xE1, 0xFA, 1, 4, 0, 1, 2}, ErrTruncated},
	}

	for _, tt := range tests {
		img := Image{Pages: [][]byte{{0x42}}}
		_, err := img.ReadFrom(bytes.NewReader(tt.data))
		if !errors.Is(err, tt.err) {
			t.Errorf("%s: got %v, expected %v", tt.name, err, tt.err)
		}
		if len(img.Pages) != 1 || img.Pages[0][0] != 0x42 {
			t.Errorf("%s: image modified on error", tt.name)
		}
	}
}

func TestFromBinaryAndLoad(t *testing.T) {
	code := make([]byte, PageSize+4)
	code[0] = 0x11
	code[PageSize+3] = 0x22

	img, err := FromBinary(code, 0x10)
	if err != nil {
		t.Fatal(err)
	}
	if len(img.Pages) != 2 || img.Size() != PageSize+0x14 {
		t.Fatalf("%d pages, %d bytes", len(img.Pages), img.Size())
	}

	ports := memory.NewPorts()
	space := memory.NewSpace(ports, 0)
	img.LoadInto(space)
	if v := space.Peek(memory.KindROM, 0, 0x10); v != 0x11 {
		t.Errorf("bank 0 byte = $%02X", v)
	}
	if v := space.Peek(memory.KindROM, 1, 0x13); v != 0x22 {
		t.Errorf("bank 1 byte = $%02X", v)
	}

	if _, err := FromBinary(make([]byte, 16), MaxPages*PageSize-8); !errors.Is(err, ErrTooManyPages) {
		t.Errorf("oversize binary: got %v", err)
	}
}
