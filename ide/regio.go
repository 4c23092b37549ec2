// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

// Every port read/write below is a memory-ordering barrier with respect to
// the hardware and must never be reordered or elided by the compiler; the
// Port interface's concrete implementation is responsible for that
// (SPEC_FULL.md §9, "volatile MMIO/port access").

func (c *Controller) out8(b *bus, off uint16, val uint8) {
	c.port.Out8(b.ioBase+off, val)
}

func (c *Controller) in8(b *bus, off uint16) uint8 {
	return c.port.In8(b.ioBase + off)
}

func (c *Controller) control(b *bus, val uint8) {
	c.port.Out8(b.control+RegControl, val)
}

func (c *Controller) altStatus(b *bus) uint8 {
	return c.port.In8(b.control + RegAltStatus)
}

// selectDrive writes HDDEVSEL = 0xA0 | (slave<<4) | extra.
func (c *Controller) selectDrive(b *bus, slave bool, extra uint8) {
	var sel uint8 = 0xa0

	if slave {
		sel |= 1 << 4
	}

	c.out8(b, RegHDDevSel, sel|extra)
}

// waitBSYClear busy-polls the status register for up to maxIter iterations,
// returning false if BSY never cleared.
func (c *Controller) waitBSYClear(b *bus, maxIter int) bool {
	for i := 0; i < maxIter; i++ {
		if c.in8(b, RegStatus)&StatusBSY == 0 {
			return true
		}
	}

	return false
}

// waitReady busy-polls until BSY clears and DRDY sets.
func (c *Controller) waitReady(b *bus, maxIter int) bool {
	for i := 0; i < maxIter; i++ {
		s := c.in8(b, RegStatus)

		if s&StatusBSY == 0 && s&StatusDRDY != 0 {
			return true
		}
	}

	return false
}

// waitDRQ busy-polls until DRQ sets or ERR sets; returns (drq, failed).
func (c *Controller) waitDRQ(b *bus, maxIter int) (drq bool, failed bool) {
	for i := 0; i < maxIter; i++ {
		s := c.in8(b, RegStatus)

		if s&StatusERR != 0 {
			return false, true
		}

		if s&StatusBSY == 0 && s&StatusDRQ != 0 {
			return true, false
		}
	}

	return false, false
}

// setLBA48 writes the six LBA registers for a 48-bit LBA, high bytes first
// then low bytes, per the ATA task-file protocol for 48-bit commands.
func (c *Controller) setLBA48(b *bus, lba uint64, sectorCount uint16) {
	c.out8(b, RegSecCount0, uint8(sectorCount>>8))
	c.out8(b, RegLBA0, uint8(lba>>24))
	c.out8(b, RegLBA1, uint8(lba>>32))
	c.out8(b, RegLBA2, uint8(lba>>40))

	c.out8(b, RegSecCount0, uint8(sectorCount))
	c.out8(b, RegLBA0, uint8(lba))
	c.out8(b, RegLBA1, uint8(lba>>8))
	c.out8(b, RegLBA2, uint8(lba>>16))
}
