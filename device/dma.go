// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"github.com/llmp16/llmp16/memory"
	log "github.com/sirupsen/logrus"
)

// DMA registers.
const (
	DMASrc   = 0
	DMADst   = 1
	DMACount = 2
	DMACtrl  = 3
	DMAStat  = 4
)

// DMA control bits.
const (
	DMAEnable  = 1 << 0
	DMAIRQ     = 1 << 1
	DMAToVideo = 1 << 2 // destination is the active video bank
)

// DMA status bits.
const (
	DMABusy  = 1 << 0
	DMADone  = 1 << 1
	DMAError = 1 << 2
)

// MaxDMACount is the largest transfer the DMA engine accepts.
const MaxDMACount = 0x8000

// DMA copies a block of bytes from the address space to the address space
// or to video memory. A transfer completes within a single step.
type DMA struct {
	ports *memory.Ports
	bus   Bus
	video VideoBus
	irq   Raiser
	log   *log.Entry
}

// NewDMA creates a DMA engine.
func NewDMA(ports *memory.Ports, bus Bus, video VideoBus, irq Raiser) *DMA {
	return &DMA{ports: ports, bus: bus, video: video, irq: irq, log: logger("dma")}
}

// Step performs the programmed transfer if the engine is enabled. The
// enable bit is cleared afterwards, so each transfer runs once.
func (d *DMA) Step() {
	ctrl := d.ports.In(memory.PortDMA, DMACtrl)
	if ctrl&DMAEnable == 0 {
		return
	}

	src := d.ports.In(memory.PortDMA, DMASrc)
	dst := d.ports.In(memory.PortDMA, DMADst)
	count := d.ports.In(memory.PortDMA, DMACount)
	d.ports.Out(memory.PortDMA, DMAStat, DMABusy)
	d.ports.Out(memory.PortDMA, DMACtrl, ctrl&^DMAEnable)

	fields := log.Fields{"src": src, "dst": dst, "count": count}
	if count > MaxDMACount {
		d.ports.Out(memory.PortDMA, DMAStat, DMAError)
		d.log.WithFields(fields).Warn("dma count too large")
		return
	}

	for i := uint16(0); i < count; i++ {
		v := d.bus.LoadByte(src + i)
		if ctrl&DMAToVideo != 0 {
			d.video.StoreVideo(dst+i, v)
		} else {
			d.bus.StoreByte(dst+i, v)
		}
	}

	d.ports.Out(memory.PortDMA, DMAStat, DMADone)
	d.log.WithFields(fields).Debug("dma transfer complete")
	if ctrl&DMAIRQ != 0 {
		d.irq.Raise(IRQDMA)
	}
}
