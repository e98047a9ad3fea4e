// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/beevik/cmd"
	"golang.org/x/image/bmp"
)

// Screen dimensions. Each byte of the active video bank is one pixel,
// row-major from the start of the bank.
const (
	screenWidth  = 320
	screenHeight = 200
)

// rgb332 decodes a pixel byte as RRRGGGBB.
var rgb332 = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.RGBA{
			R: uint8((i >> 5 & 7) * 255 / 7),
			G: uint8((i >> 2 & 7) * 255 / 7),
			B: uint8((i & 3) * 255 / 3),
			A: 0xff,
		}
	}
	return p
}()

// screen returns the active video bank as an image.
func (h *Host) screen() *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, screenWidth, screenHeight), rgb332)
	copy(img.Pix, h.m.Space.Video())
	return img
}

func (h *Host) saveScreen(w io.Writer) error {
	return bmp.Encode(w, h.screen())
}

func (h *Host) cmdVRAMSave(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".bmp"
	}

	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		h.printf("Failed to create '%s': %v\n", filepath.Base(filename), err)
		return nil
	}
	defer file.Close()

	if err := h.saveScreen(file); err != nil {
		h.printf("Failed to save '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	h.printf("Saved video bank %d to '%s'.\n", h.m.Space.VideoBank(), filepath.Base(filename))
	return nil
}
