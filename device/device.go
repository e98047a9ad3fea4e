// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device implements the LLMP16 peripherals: the programmable
// interrupt controller, three timers, the DMA engine, the blitter, the
// keyboard latch and the CHS disk controller.
//
// Devices keep their programmer-visible state in the shared I/O register
// file and re-read it on every step, so software reconfigures a device
// simply by writing its registers.
package device

import (
	log "github.com/sirupsen/logrus"
)

// Interrupt request lines.
const (
	IRQTimer0   = 0
	IRQTimer1   = 1
	IRQTimer2   = 2
	IRQKeyboard = 3
	IRQDMA      = 4
	IRQDisk     = 5
)

// A Raiser accepts interrupt requests. The PIC is the only implementation
// in the machine.
type Raiser interface {
	Raise(line int)
}

// Bus is the byte-wide view of the address space used by bus-mastering
// devices.
type Bus interface {
	LoadByte(addr uint16) byte
	StoreByte(addr uint16, v byte)
}

// VideoBus gives devices write access to the active video bank.
type VideoBus interface {
	StoreVideo(offset uint16, v byte)
}

func logger(component string) *log.Entry {
	return log.WithField("component", component)
}
