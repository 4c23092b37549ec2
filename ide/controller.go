// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

import (
	"fmt"
	"sync"
	"time"
)

// Intel PIIX3/PIIX4 IDE function, the controller this driver targets
// (ata.c hard-codes the same expectation of a PIIX-class PCI IDE
// controller).
const (
	VendorIntel  = 0x8086
	DevicePIIX3  = 0x7010
	DevicePIIX4  = 0x7111
)

// ATAPIWaitTimeout bounds how long an ATAPI read waits for the command's
// IRQ completion before returning ErrTimeout, when the caller's context
// carries no deadline of its own (SPEC_FULL.md §5, Open Question
// resolution).
const ATAPIWaitTimeout = 5 * time.Second

// ControllerConfig supplies the out-of-scope collaborators and PCI
// location hint needed to construct a Controller.
type ControllerConfig struct {
	Port         Port
	Prober       PCIProber
	Alloc        PhysAllocator
	PrimaryIRQ   IRQLine // IRQ 14
	SecondaryIRQ IRQLine // IRQ 15

	// Vendor/Device override the PCI IDE function to locate; zero values
	// default to VendorIntel/DevicePIIX3.
	Vendor uint16
	Device uint16
}

// Controller owns all per-controller mutable state: the four static drive
// slots, the drive/cdrom naming counters, and the mutex serializing every
// command FSM invocation (SPEC_FULL.md §9 "global owned driver object").
type Controller struct {
	mu sync.Mutex

	port   Port
	prober PCIProber
	cfg    ConfigSpace // the located IDE function, set by Detect
	alloc  PhysAllocator
	irq    [2]IRQLine // indexed by primary=0, secondary=1

	vendor uint16
	device uint16

	bar4Primary   uint16
	bar4Secondary uint16
	hasBusMaster  bool

	drives [numSlots]driveState

	driveLetter byte // next /dev/hdN suffix
	cdromIndex  int  // next /dev/cdromK suffix

	// DetectLog accumulates one entry per candidate slot examined during
	// Detect, so a caller without a console yet can replay diagnostics
	// once one is attached (SPEC_FULL.md §4.7).
	DetectLog []DetectEvent
}

// DetectEvent records the outcome of probing a single drive slot.
type DetectEvent struct {
	Slot slotIndex
	Kind Kind
	Name string
	Err  error
}

// NewController constructs a Controller bound to the given collaborators.
// It performs no I/O; call Detect to probe and mount drives.
func NewController(cfg ControllerConfig) *Controller {
	vendor, device := cfg.Vendor, cfg.Device

	if vendor == 0 {
		vendor = VendorIntel
	}
	if device == 0 {
		device = DevicePIIX3
	}

	c := &Controller{
		port:        cfg.Port,
		prober:      cfg.Prober,
		alloc:       cfg.Alloc,
		irq:         [2]IRQLine{cfg.PrimaryIRQ, cfg.SecondaryIRQ},
		vendor:      vendor,
		device:      device,
		driveLetter: 'a',
	}

	for i := range c.drives {
		c.drives[i].done = make(chan error, 1)
	}

	return c
}

// HasBusMaster reports whether Detect located the IDE function's bus-master
// register block (BAR4). When false, DMA reads and therefore PIO write
// verification are unavailable.
func (c *Controller) HasBusMaster() bool {
	return c.hasBusMaster
}

// drive returns the detected state for a slot, or nil if absent. Used by
// tests to inspect controller state (e.g. the programmed PRDT) without
// reaching into the drives array directly.
func (c *Controller) drive(s slotIndex) *driveState {
	d := &c.drives[s]

	if !d.present {
		return nil
	}

	return d
}

func (c *Controller) log(slot slotIndex, kind Kind, name string, err error) {
	c.DetectLog = append(c.DetectLog, DetectEvent{Slot: slot, Kind: kind, Name: name, Err: err})
}

func (c *Controller) nextDriveName() string {
	name := fmt.Sprintf("/dev/hd%c", c.driveLetter)
	c.driveLetter++
	return name
}

func (c *Controller) nextCDROMName() string {
	name := fmt.Sprintf("/dev/cdrom%d", c.cdromIndex)
	c.cdromIndex++
	return name
}
