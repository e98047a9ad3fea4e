// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"github.com/llmp16/llmp16/memory"
)

// Keyboard registers.
const (
	KbdCode  = 0 // latched scan code
	KbdReady = 1 // non-zero while a code is latched; software clears it
)

// KeyQueueSize is the depth of the scan code queue.
const KeyQueueSize = 8

// Keyboard latches scan codes delivered by the host one at a time.
type Keyboard struct {
	ports *memory.Ports
	irq   Raiser
	queue chan uint16
}

// NewKeyboard creates a keyboard with an empty queue.
func NewKeyboard(ports *memory.Ports, irq Raiser) *Keyboard {
	return &Keyboard{
		ports: ports,
		irq:   irq,
		queue: make(chan uint16, KeyQueueSize),
	}
}

// Inject queues a scan code. It may be called from any goroutine. Codes
// arriving while the queue is full are dropped and Inject returns false.
func (k *Keyboard) Inject(code uint16) bool {
	select {
	case k.queue <- code:
		return true
	default:
		logger("keyboard").WithField("code", code).Warn("key queue full")
		return false
	}
}

// Pending returns the number of queued scan codes.
func (k *Keyboard) Pending() int {
	return len(k.queue)
}

// Step latches the next queued code once software has consumed the
// previous one, and raises the keyboard interrupt.
func (k *Keyboard) Step() {
	if k.ports.In(memory.PortKeyboard, KbdReady) != 0 {
		return
	}
	select {
	case code := <-k.queue:
		k.ports.Out(memory.PortKeyboard, KbdCode, code)
		k.ports.Out(memory.PortKeyboard, KbdReady, 1)
		k.irq.Raise(IRQKeyboard)
	default:
	}
}

// Reset discards queued codes.
func (k *Keyboard) Reset() {
	for {
		select {
		case <-k.queue:
		default:
			return
		}
	}
}
