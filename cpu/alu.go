// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// The ALU helpers compute a result and the full set of flags it implies.
// Callers decide which flags to commit.

func nz(v uint16) Flags {
	var f Flags
	if v == 0 {
		f |= FlagZ
	}
	if v&0x8000 != 0 {
		f |= FlagN
	}
	return f
}

func add16(a, b uint16) (uint16, Flags) {
	r32 := uint32(a) + uint32(b)
	res := uint16(r32)
	f := nz(res)
	if r32 > 0xffff {
		f |= FlagC
	}
	if ^(a^b)&(a^res)&0x8000 != 0 {
		f |= FlagV
	}
	return res, f
}

func sub16(a, b uint16) (uint16, Flags) {
	r32 := uint32(a) - uint32(b) + 0x10000
	res := uint16(r32)
	f := nz(res)
	if r32&0x10000 != 0 {
		f |= FlagC
	}
	if (a^b)&(a^res)&0x8000 != 0 {
		f |= FlagV
	}
	return res, f
}

func mul16(a, b uint16) (uint16, Flags) {
	res := uint16(uint32(a) * uint32(b))
	return res, nz(res)
}

// div16 returns ok=false on division by zero.
func div16(a, b uint16) (res uint16, f Flags, ok bool) {
	if b == 0 {
		return 0, 0, false
	}
	res = a / b
	return res, nz(res), true
}

func sdiv16(a, b uint16) (res uint16, f Flags, ok bool) {
	if b == 0 {
		return 0, 0, false
	}
	sa, sb := int16(a), int16(b)
	if sa == -0x8000 && sb == -1 {
		return 0x8000, nz(0x8000) | FlagV, true
	}
	res = uint16(sa / sb)
	return res, nz(res), true
}

// Shifts return the carry as the last bit shifted out. A zero count leaves
// the value alone and reports carry=false with changed=false.

func lsr16(v uint16, n uint) (res uint16, carry, changed bool) {
	n &= 0x0f
	if n == 0 {
		return v, false, false
	}
	return v >> n, (v>>(n-1))&1 != 0, true
}

func asr16(v uint16, n uint) (res uint16, carry, changed bool) {
	n &= 0x0f
	if n == 0 {
		return v, false, false
	}
	return uint16(int16(v) >> n), (v>>(n-1))&1 != 0, true
}

func lsl16(v uint16, n uint) (res uint16, carry, changed bool) {
	n &= 0x0f
	if n == 0 {
		return v, false, false
	}
	return v << n, (v>>(16-n))&1 != 0, true
}
