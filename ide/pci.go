// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

// pciScanBuses bounds how many PCI buses locateController walks looking
// for the IDE function. A flat, single-segment topology is all a legacy
// PIIX3/PIIX4 south bridge ever appears on, but a handful of buses are
// checked in case the platform's bridge enumeration assigns the IDE
// function a non-zero bus number.
const pciScanBuses = 8

// locateController is the core PCI locator (SPEC_FULL.md §2, §4.0): it
// walks PCI bus numbers looking for a function matching vendor/device and
// returns the first match, or nil. Detect then enables it as bus master and
// reads its BAR4. Only the CONFIG_ADDRESS/CONFIG_DATA port pair that
// backs PCIProber is out of this package's scope; the match loop itself
// is not.
func (c *Controller) locateController() ConfigSpace {
	if c.prober == nil {
		return nil
	}

	for bus := 0; bus < pciScanBuses; bus++ {
		if dev := c.prober.Probe(bus, c.vendor, c.device); dev != nil {
			return dev
		}
	}

	return nil
}
