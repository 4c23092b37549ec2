// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build amd64

// Package ioport provides the x86 port I/O primitives (IN/OUT instruction
// family) used to drive the legacy IDE task-file and control-block
// registers. It has no notion of IDE, ATA or ATAPI semantics: callers
// compose it through the narrow register-level interface expected by the
// ide package.
package ioport

// In8, Out8, In16 and Out16 access a single I/O port with the given width.
// They are defined in port_amd64.s.
func In8(port uint16) (val uint8)
func Out8(port uint16, val uint8)
func In16(port uint16) (val uint16)
func Out16(port uint16, val uint16)
func In32(port uint16) (val uint32)
func Out32(port uint16, val uint32)

// InStream16 reads count 16-bit words from port into buf using the REP INSW
// instruction, as required for PIO sector transfers and ATAPI packet
// responses. len(buf) must be at least 2*count.
func InStream16(port uint16, buf []byte, count int)

// OutStream16 writes count 16-bit words from buf to port using the REP OUTSW
// instruction. len(buf) must be at least 2*count.
func OutStream16(port uint16, buf []byte, count int)

// PC implements the register-level access required to drive the primary and
// secondary legacy IDE controllers on a PC-compatible platform.
type PC struct{}

func (PC) In8(port uint16) uint8          { return In8(port) }
func (PC) Out8(port uint16, val uint8)    { Out8(port, val) }
func (PC) In16(port uint16) uint16        { return In16(port) }
func (PC) Out16(port uint16, val uint16)  { Out16(port, val) }
func (PC) In32(port uint16) uint32        { return In32(port) }
func (PC) Out32(port uint16, val uint32)  { Out32(port, val) }

func (PC) InStream16(port uint16, buf []byte, count int) {
	InStream16(port, buf, count)
}

func (PC) OutStream16(port uint16, buf []byte, count int) {
	OutStream16(port, buf, count)
}
