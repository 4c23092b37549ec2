// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package platform wires the concrete amd64 PC collaborators - port I/O,
// PCI configuration space, and a physically-contiguous DMA region - into
// an ide.Controller. It is the composition root: ide itself never imports
// internal/ioport, internal/pcicfg, or dma directly.
package platform

import (
	"log"

	"github.com/baremetal-go/pciide/dma"
	"github.com/baremetal-go/pciide/ide"
	"github.com/baremetal-go/pciide/internal/ioport"
	"github.com/baremetal-go/pciide/internal/pcicfg"
)

// pciProber adapts internal/pcicfg's package-level bus scan to
// ide.PCIProber. pcicfg itself stays free of any dependency on ide: the
// adapter lives here, one level up, where both packages are already
// imported.
type pciProber struct{}

func (pciProber) Probe(bus int, vendor uint16, device uint16) ide.ConfigSpace {
	dev := pcicfg.Probe(bus, vendor, device)
	if dev == nil {
		return nil
	}

	return dev
}

// NullIRQ is an IRQLine that acknowledges nothing; useful when the
// caller's platform drives HandleIRQ14/HandleIRQ15 from a context (e.g. a
// polling test harness) with no real interrupt controller to ack.
type NullIRQ struct{}

// Ack is a no-op.
func (NullIRQ) Ack() {}

// NewController builds an ide.Controller wired to the real amd64 PC
// collaborators: raw IN/OUT port I/O (internal/ioport), a PCI bus scan
// for the PIIX3 IDE function (internal/pcicfg), and a
// first-fit physical DMA allocator (dma.Region) covering the supplied
// physical range. primaryIRQ/secondaryIRQ may be nil, in which case
// HandleIRQ14/HandleIRQ15 still run their IDE-specific bookkeeping but
// skip the Ack call.
func NewController(dmaStart, dmaSize uint, primaryIRQ, secondaryIRQ ide.IRQLine) *ide.Controller {
	region := dma.NewRegion(dmaStart, dmaSize)

	c := ide.NewController(ide.ControllerConfig{
		Port:         ioport.PC{},
		Prober:       pciProber{},
		Alloc:        region,
		PrimaryIRQ:   primaryIRQ,
		SecondaryIRQ: secondaryIRQ,
	})

	if err := c.Detect(); err != nil {
		log.Printf("pciide: detect: %v", err)
	}

	if !c.HasBusMaster() {
		logPCIBus0(0)
	}

	for _, ev := range c.DetectLog {
		if ev.Err != nil {
			log.Printf("pciide: slot %d: %v", ev.Slot, ev.Err)
			continue
		}
		if ev.Kind != ide.KindNone {
			log.Printf("pciide: slot %d: %s %s", ev.Slot, ev.Kind, ev.Name)
		}
	}

	return c
}

// logPCIBus0 enumerates every PCI function present on bus 0 and logs it,
// for diagnosing why the IDE function was not found (wrong vendor/device
// pair, or a bridge topology that puts it on a bus other than 0).
func logPCIBus0(bus int) {
	for _, dev := range pcicfg.Devices(bus) {
		log.Printf("pciide: pci bus %d slot %d: vendor %#04x device %#04x", bus, dev.Slot, dev.Vendor, dev.Device)
	}
}
