// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"github.com/llmp16/llmp16/memory"
	log "github.com/sirupsen/logrus"
)

// NumTimers is the number of timers on the timer port.
const NumTimers = 3

// Timer n occupies registers 5n through 5n+4 of the timer port.
const (
	TimerCtrl   = 0
	TimerPSC    = 1 // prescaler; the timer advances every PSC+1 ticks
	TimerCMP    = 2 // compare value
	TimerInit   = 3 // reload value
	TimerCount  = 4 // current count
	TimerStride = 5
)

// Timer control bits.
const (
	TimerDown   = 1 << 0
	TimerEnable = 1 << 1
	TimerIRQ    = 1 << 2
)

// A Timer counts up or down at the prescaled machine tick rate and reloads
// from INIT when it reaches its compare value.
type Timer struct {
	n       int
	ports   *memory.Ports
	irq     Raiser
	enabled bool
	log     *log.Entry
}

func (t *Timer) reg(r int) byte {
	return byte(t.n*TimerStride + r)
}

func (t *Timer) in(r int) uint16 {
	return t.ports.In(memory.PortTimer, t.reg(r))
}

func (t *Timer) out(r int, v uint16) {
	t.ports.Out(memory.PortTimer, t.reg(r), v)
}

// Step advances the timer for machine tick number tick. Enabling a timer
// loads COUNT from INIT; counting starts on the following tick.
func (t *Timer) Step(tick uint64) {
	ctrl := t.in(TimerCtrl)
	if ctrl&TimerEnable == 0 {
		t.enabled = false
		return
	}
	if !t.enabled {
		t.enabled = true
		t.out(TimerCount, t.in(TimerInit))
		return
	}

	psc := uint64(t.in(TimerPSC)) + 1
	if tick%psc != 0 {
		return
	}

	count, cmp := t.in(TimerCount), t.in(TimerCMP)
	var fired bool
	if ctrl&TimerDown != 0 {
		count--
		fired = count <= cmp
	} else {
		count++
		fired = count >= cmp
	}
	if fired {
		count = t.in(TimerInit)
		t.log.WithField("timer", t.n).Trace("timer fired")
		if ctrl&TimerIRQ != 0 {
			t.irq.Raise(IRQTimer0 + t.n)
		}
	}
	t.out(TimerCount, count)
}

// Timers is the bank of three timers sharing the timer port.
type Timers struct {
	timers [NumTimers]Timer
}

// NewTimers creates the timer bank. Timer n raises IRQ line n.
func NewTimers(ports *memory.Ports, irq Raiser) *Timers {
	ts := &Timers{}
	for i := range ts.timers {
		ts.timers[i] = Timer{n: i, ports: ports, irq: irq, log: logger("timer")}
	}
	return ts
}

// Timer returns timer n.
func (ts *Timers) Timer(n int) *Timer {
	return &ts.timers[n]
}

// Step advances all timers.
func (ts *Timers) Step(tick uint64) {
	for i := range ts.timers {
		ts.timers[i].Step(tick)
	}
}

// Reset forgets the enable state of every timer.
func (ts *Timers) Reset() {
	for i := range ts.timers {
		ts.timers[i].enabled = false
	}
}

// Armed reports whether any enabled timer will eventually request an
// interrupt on a line that masked does not report as masked.
func (ts *Timers) Armed(masked func(line int) bool) bool {
	for i := range ts.timers {
		t := &ts.timers[i]
		if t.in(TimerCtrl)&(TimerEnable|TimerIRQ) == TimerEnable|TimerIRQ && !masked(IRQTimer0+t.n) {
			return true
		}
	}
	return false
}
