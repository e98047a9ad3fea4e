// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rom reads and writes LLMP16 ROM image files.
//
// A ROM image is a little-endian header (uint16 magic 0xFAE1, uint8 page
// count, one uint16 size per page) followed by the page payloads. Page i is
// flashed into ROM bank i.
package rom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/llmp16/llmp16/memory"
)

// Magic identifies a ROM image.
const Magic = 0xFAE1

// Limits on a ROM image.
const (
	MaxPages = memory.ROMBanks
	PageSize = memory.BankSize
)

// Errors returned when reading an image.
var (
	ErrBadMagic     = errors.New("rom: bad magic number")
	ErrTooManyPages = errors.New("rom: too many pages")
	ErrPageTooLarge = errors.New("rom: page too large")
	ErrTruncated    = errors.New("rom: truncated image")
)

// An Image is a set of ROM pages.
type Image struct {
	Pages [][]byte
}

// A Flasher writes bytes into a backing store by coordinates.
type Flasher interface {
	Poke(kind memory.Kind, bank int, offset uint16, v byte)
}

// FromBinary builds an image holding code at byte offset origin of the ROM,
// split across as many pages as needed. Bytes before origin are zero.
func FromBinary(code []byte, origin int) (*Image, error) {
	total := origin + len(code)
	if origin < 0 || total > MaxPages*PageSize {
		return nil, fmt.Errorf("%w: %d bytes at offset %d", ErrTooManyPages, len(code), origin)
	}

	flat := make([]byte, total)
	copy(flat[origin:], code)

	img := &Image{}
	for len(flat) > 0 {
		n := min(len(flat), PageSize)
		img.Pages = append(img.Pages, flat[:n])
		flat = flat[n:]
	}
	return img, nil
}

// Size returns the total payload size in bytes.
func (img *Image) Size() int {
	n := 0
	for _, p := range img.Pages {
		n += len(p)
	}
	return n
}

// ReadFrom reads an image. The input is validated completely before the
// image is modified; on error the image is left unchanged.
func (img *Image) ReadFrom(r io.Reader) (n int64, err error) {
	b, err := io.ReadAll(r)
	n = int64(len(b))
	if err != nil {
		return n, err
	}

	br := bytes.NewReader(b)
	var hdr struct {
		Magic uint16
		Pages uint8
	}
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return n, ErrTruncated
	}
	if hdr.Magic != Magic {
		return n, fmt.Errorf("%w: $%04X", ErrBadMagic, hdr.Magic)
	}
	if int(hdr.Pages) > MaxPages {
		return n, fmt.Errorf("%w: %d", ErrTooManyPages, hdr.Pages)
	}

	sizes := make([]uint16, hdr.Pages)
	if err := binary.Read(br, binary.LittleEndian, sizes); err != nil {
		return n, ErrTruncated
	}

	pages := make([][]byte, len(sizes))
	for i, sz := range sizes {
		if int(sz) > PageSize {
			return n, fmt.Errorf("%w: page %d is %d bytes", ErrPageTooLarge, i, sz)
		}
		pages[i] = make([]byte, sz)
		if _, err := io.ReadFull(br, pages[i]); err != nil {
			return n, fmt.Errorf("%w: page %d", ErrTruncated, i)
		}
	}

	img.Pages = pages
	return n, nil
}

// WriteTo writes the image in ROM file format.
func (img *Image) WriteTo(w io.Writer) (n int64, err error) {
	if len(img.Pages) > MaxPages {
		return 0, ErrTooManyPages
	}

	var buf bytes.Buffer
	buf.Write(binary.LittleEndian.AppendUint16(nil, Magic))
	buf.WriteByte(byte(len(img.Pages)))
	for i, p := range img.Pages {
		if len(p) > PageSize {
			return 0, fmt.Errorf("%w: page %d", ErrPageTooLarge, i)
		}
		buf.Write(binary.LittleEndian.AppendUint16(nil, uint16(len(p))))
	}
	for _, p := range img.Pages {
		buf.Write(p)
	}
	return buf.WriteTo(w)
}

// LoadInto flashes page i of the image into ROM bank i.
func (img *Image) LoadInto(f Flasher) {
	for bank, p := range img.Pages {
		for off, v := range p {
			f.Poke(memory.KindROM, bank, uint16(off), v)
		}
	}
}
