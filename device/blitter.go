// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"github.com/llmp16/llmp16/memory"
	log "github.com/sirupsen/logrus"
)

// Blitter registers.
const (
	BlitSrc  = 0
	BlitX    = 1
	BlitY    = 2
	BlitW    = 3
	BlitH    = 4
	BlitCtrl = 5
)

// Blitter control bits.
const (
	BlitStart  = 1 << 0
	BlitUnpack = 1 << 1 // source is 1 bit per pixel, MSB first
)

// ScreenWidth is the number of pixels in a row of video memory.
const ScreenWidth = 320

// Blitter copies rectangles of pixels from the address space into the
// active video bank.
type Blitter struct {
	ports *memory.Ports
	bus   Bus
	video VideoBus
	log   *log.Entry
}

// NewBlitter creates a blitter.
func NewBlitter(ports *memory.Ports, bus Bus, video VideoBus) *Blitter {
	return &Blitter{ports: ports, bus: bus, video: video, log: logger("blitter")}
}

// Step runs a pending blit and clears the start bit.
func (b *Blitter) Step() {
	ctrl := b.ports.In(memory.PortBlitter, BlitCtrl)
	if ctrl&BlitStart == 0 {
		return
	}

	src := b.ports.In(memory.PortBlitter, BlitSrc)
	x := int(b.ports.In(memory.PortBlitter, BlitX))
	y := int(b.ports.In(memory.PortBlitter, BlitY))
	w := int(b.ports.In(memory.PortBlitter, BlitW))
	h := int(b.ports.In(memory.PortBlitter, BlitH))

	if ctrl&BlitUnpack != 0 {
		stride := w / 8
		for row := 0; row < h; row++ {
			for col := 0; col < stride; col++ {
				bits := b.bus.LoadByte(src + uint16(row*stride+col))
				for bit := 0; bit < 8; bit++ {
					var v byte
					if bits&(0x80>>bit) != 0 {
						v = 0xff
					}
					b.plot(x+col*8+bit, y+row, v)
				}
			}
		}
	} else {
		for row := 0; row < h; row++ {
			for col := 0; col < w; col++ {
				b.plot(x+col, y+row, b.bus.LoadByte(src+uint16(row*w+col)))
			}
		}
	}

	b.ports.Out(memory.PortBlitter, BlitCtrl, ctrl&^BlitStart)
	b.log.WithFields(log.Fields{"x": x, "y": y, "w": w, "h": h}).Trace("blit complete")
}

func (b *Blitter) plot(x, y int, v byte) {
	off := y*ScreenWidth + x
	if off >= memory.VRAMBankSize {
		return
	}
	b.video.StoreVideo(uint16(off), v)
}
