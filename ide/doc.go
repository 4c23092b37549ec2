// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ide implements the core of a block-device driver for the
// classical PCI IDE controller pair found on PC-compatible platforms:
// primary bus at I/O port 0x1F0/0x3F6, secondary at 0x170/0x376.
//
// Each detected drive, PATA or ATAPI, is exported as a byte-addressable
// BlockNode whose underlying storage is sector-granular (512 bytes for
// ATA, device-reported for ATAPI). The package covers drive enumeration,
// IDENTIFY parsing, the PATA DMA read / PIO write / ATAPI packet read
// command state machines, and the byte-to-sector read-modify-write
// adapter.
//
// Port I/O, IRQ registration, physical DMA allocation, and PCI
// configuration-space access are all collaborators supplied by the
// caller through the Port, IRQLine, PhysAllocator and ConfigSpace
// interfaces; this package contains no architecture- or
// platform-specific code of its own.
package ide
