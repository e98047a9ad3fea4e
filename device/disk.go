// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"errors"
	"fmt"

	"github.com/llmp16/llmp16/memory"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidCHS is returned for a cylinder/head/sector address outside the
// disk geometry.
var ErrInvalidCHS = errors.New("invalid CHS address")

// SectorSize is the size of a disk block in bytes.
const SectorSize = 512

// Geometry describes the shape of a disk.
type Geometry struct {
	Cylinders int
	Heads     int
	Sectors   int // sectors per track, numbered from 1
}

// DefaultGeometry is the geometry of the built-in disk.
var DefaultGeometry = Geometry{Cylinders: 8, Heads: 2, Sectors: 40}

// Size returns the capacity of the disk in bytes.
func (g Geometry) Size() int {
	return g.Cylinders * g.Heads * g.Sectors * SectorSize
}

// CHS packs a cylinder, head and sector into a CHS register value: head in
// bit 15, cylinder in bits 14..8, sector in bits 7..0.
func CHS(c, h, s int) uint16 {
	return uint16(h&1)<<15 | uint16(c&0x7f)<<8 | uint16(s&0xff)
}

// Offset translates a CHS register value to a byte offset in the disk
// image.
func (g Geometry) Offset(chs uint16) (int, error) {
	h := int(chs >> 15)
	c := int(chs>>8) & 0x7f
	s := int(chs & 0xff)
	if s < 1 || s > g.Sectors || c >= g.Cylinders || h >= g.Heads {
		return 0, fmt.Errorf("%w: $%04X (C=%d H=%d S=%d)", ErrInvalidCHS, chs, c, h, s)
	}
	return ((c*g.Heads+h)*g.Sectors + s - 1) * SectorSize, nil
}

// Disk controller registers.
const (
	DiskCHS    = 0
	DiskAddr   = 1
	DiskCmd    = 2
	DiskStatus = 3
)

// Disk commands.
const (
	DiskRead  = 1 // disk block to memory
	DiskWrite = 2 // memory to disk block
)

// Disk status bits.
const (
	DiskDone  = 1 << 0
	DiskError = 1 << 1
)

// DiskController moves 512-byte blocks between a disk image and the
// address space.
type DiskController struct {
	ports *memory.Ports
	bus   Bus
	image []byte
	geom  Geometry
	irq   Raiser
	log   *log.Entry
}

// NewDiskController creates a controller for the given image, which must
// hold at least geom.Size() bytes.
func NewDiskController(ports *memory.Ports, bus Bus, image []byte, geom Geometry, irq Raiser) *DiskController {
	return &DiskController{
		ports: ports,
		bus:   bus,
		image: image,
		geom:  geom,
		irq:   irq,
		log:   logger("disk"),
	}
}

// Geometry returns the geometry of the attached disk.
func (d *DiskController) Geometry() Geometry {
	return d.geom
}

// Step executes a pending command. Each command completes in a single step,
// clears the command register and raises the disk interrupt.
func (d *DiskController) Step() {
	cmd := d.ports.In(memory.PortDisk, DiskCmd)
	if cmd == 0 {
		return
	}

	chs := d.ports.In(memory.PortDisk, DiskCHS)
	addr := d.ports.In(memory.PortDisk, DiskAddr)
	fields := log.Fields{"cmd": cmd, "chs": chs, "addr": addr}

	status := uint16(DiskDone)
	if err := d.transfer(cmd, chs, addr); err != nil {
		status = DiskError
		d.log.WithFields(fields).WithError(err).Warn("disk command failed")
	} else {
		d.log.WithFields(fields).Debug("disk transfer complete")
	}

	d.ports.Out(memory.PortDisk, DiskStatus, status)
	d.ports.Out(memory.PortDisk, DiskCmd, 0)
	d.irq.Raise(IRQDisk)
}

func (d *DiskController) transfer(cmd, chs, addr uint16) error {
	off, err := d.geom.Offset(chs)
	if err != nil {
		return err
	}
	if off+SectorSize > len(d.image) {
		return fmt.Errorf("%w: beyond end of image", ErrInvalidCHS)
	}

	block := d.image[off : off+SectorSize]
	switch cmd {
	case DiskRead:
		for i, v := range block {
			d.bus.StoreByte(addr+uint16(i), v)
		}
	case DiskWrite:
		for i := range block {
			block[i] = d.bus.LoadByte(addr + uint16(i))
		}
	default:
		return fmt.Errorf("unknown disk command %d", cmd)
	}
	return nil
}
