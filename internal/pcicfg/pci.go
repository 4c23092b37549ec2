// Intel Peripheral Component Interconnect (PCI) driver
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pcicfg implements a minimal PCI configuration-space accessor,
// adopting the following reference specification:
//   - PCI Local Bus Specification, revision 3.0, PCI Special Interest Group
//
// Package platform adapts it to the ide package's PCIProber/ConfigSpace
// interfaces (ide never imports it), to locate the legacy IDE controller
// function, set its Bus Master Enable bit and read its BAR4 bus-master
// register base; it has no knowledge of IDE/ATA semantics.
package pcicfg

import (
	"github.com/baremetal-go/pciide/bits"
	"github.com/baremetal-go/pciide/internal/ioport"
)

const (
	ConfigAddress = 0x0cf8
	ConfigData    = 0x0cfc
)

const (
	maxBuses   = 256
	maxDevices = 32
)

// Header Type 0x0 offsets
const (
	VendorID   = 0x00
	Command    = 0x04
	RevisionID = 0x08
	Bar0       = 0x10
)

// Command register bits
const (
	CommandIOSpace     = 0
	CommandMemSpace    = 1
	CommandBusMaster   = 2
)

// Device represents a PCI device function.
type Device struct {
	// Bus number
	Bus uint32
	// Vendor ID
	Vendor uint16
	// Device ID
	Device uint16

	// PCI Slot
	Slot uint32
}

func (d *Device) address(fn uint32, off uint32) uint32 {
	return 1<<31 | d.Bus<<16 | d.Slot<<11 | fn<<8 | off&0xfc
}

// Read reads the device configuration space for a given function and
// register offset.
func (d *Device) Read(fn uint32, off uint32) uint32 {
	ioport.Out32(ConfigAddress, d.address(fn, off))
	return ioport.In32(ConfigData) >> ((off & 2) * 8)
}

// Write writes the device configuration space for a given function and
// register offset, the offset must be 32-bit aligned.
func (d *Device) Write(fn uint32, off uint32, val uint32) {
	if (off&2)*8 != 0 {
		return
	}

	ioport.Out32(ConfigAddress, d.address(fn, off))
	ioport.Out32(ConfigData, val)
}

// EnableBusMaster sets the Bus Master Enable bit in the PCI command register,
// required before a device is allowed to initiate DMA transfers.
func (d *Device) EnableBusMaster() {
	cmd := d.Read(0, Command)
	bits.Set(&cmd, CommandBusMaster)
	d.Write(0, Command, cmd)
}

// BaseAddress returns a device Base Address register (BAR) decoded to its
// mapped address. For I/O-space BARs (as used by the legacy IDE bus-master
// register block) the low 2 bits are masked off per the PCI specification.
func (d *Device) BaseAddress(n int) uint {
	if n > 5 {
		return 0
	}

	off := Bar0 + uint32(n)*4
	bar := d.Read(0, off)

	if bits.Get(&bar, 0) {
		// I/O space BAR: bits [1:0] are reserved/indicator, mask them off.
		return uint(bar) &^ 0x3
	}

	// memory space BAR
	switch bits.GetN(&bar, 1, 0b11) {
	case 0:
		return uint(bar) &^ 0xf
	case 2:
		return uint(d.Read(0, off+4))<<32 | uint(bar)&0xfffffff0
	}

	return 0
}

func (d *Device) probe() bool {
	if d.Bus > maxBuses {
		return false
	}

	val := d.Read(0, VendorID)

	if d.Vendor = uint16(val); d.Vendor == 0xffff {
		return false
	}

	d.Device = uint16(val >> 16)

	return true
}

// Probe probes the configuration space for a single PCI device matching the
// given vendor/device ID on the given bus.
func Probe(bus int, vendor uint16, device uint16) *Device {
	d := &Device{
		Bus: uint32(bus),
	}

	for slot := uint32(0); slot < maxDevices; slot++ {
		d.Slot = slot

		if d.probe() && d.Vendor == vendor && d.Device == device {
			return d
		}
	}

	return nil
}

// Devices returns all found PCI devices on a given bus.
func Devices(bus int) (devices []*Device) {
	for slot := uint32(0); slot < maxDevices; slot++ {
		d := &Device{
			Bus:  uint32(bus),
			Slot: slot,
		}

		if d.probe() {
			devices = append(devices, d)
		}
	}

	return
}
