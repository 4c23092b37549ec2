// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

// dmaRead reads exactly one sector (512 bytes) from a PATA drive into buf
// using PCI bus-master DMA, per SPEC_FULL.md §4.2. The caller must hold
// c.mu and have verified d.kind == KindATA.
//
// Polling, not the IRQ, detects completion: the IRQ line is reserved for
// waking ATAPI waiters (SPEC_FULL.md §5, IRQ-disable-during-poll
// redundancy resolved in favor of polling only).
func (c *Controller) dmaRead(slot slotIndex, lba uint64, buf []byte) error {
	b := slot.bus()
	d := &c.drives[slot]
	bmBase := c.bmBase(slot)

	if !c.hasBusMaster || d.prdtAddr == 0 {
		return ErrHardware
	}

	c.waitBSYClear(b, detectPollIterations)

	// stop bus master
	c.port.Out8(bmBase+BMCommand, 0x00)

	// program PRDT physical address (32-bit)
	c.port.Out32(bmBase+BMPRD, uint32(d.prdtAddr))

	// acknowledge prior interrupt/error
	st := c.port.In8(bmBase + BMStatus)
	c.port.Out8(bmBase+BMStatus, st|BMStatusInterrupt|BMStatusError)

	// set direction to read
	c.port.Out8(bmBase+BMCommand, BMCmdRead)

	c.waitBSYClear(b, detectPollIterations)

	c.control(b, 0)
	c.out8(b, RegHDDevSel, hddevselDMA(d.slave))
	c.ioWait(b)

	c.out8(b, RegFeatures, 0)
	c.setLBA48(b, lba, 1)

	c.waitReady(b, detectPollIterations)

	c.out8(b, RegCommand, CmdReadDMAExt)
	c.ioWait(b)

	// start DMA (start | read)
	c.port.Out8(bmBase+BMCommand, BMCmdRead|BMCmdStart)

	for i := 0; i < detectPollIterations*10; i++ {
		bmStatus := c.port.In8(bmBase + BMStatus)
		drvStatus := c.in8(b, RegStatus)

		if bmStatus&BMStatusInterrupt != 0 && drvStatus&StatusBSY == 0 {
			break
		}
	}

	c.alloc.Read(d.bufAddr, 0, buf[:512])

	st = c.port.In8(bmBase + BMStatus)
	c.port.Out8(bmBase+BMStatus, st|BMStatusInterrupt|BMStatusError)

	return nil
}

// hddevselDMA builds the HDDEVSEL value used for LBA48 command issue:
// 0xE0 | (slave<<4).
func hddevselDMA(slave bool) uint8 {
	var v uint8 = 0xe0

	if slave {
		v |= 1 << 4
	}

	return v
}

// bmBase returns the bus-master register base for a drive's channel:
// BAR4+0 for primary, BAR4+8 for secondary.
func (c *Controller) bmBase(slot slotIndex) uint16 {
	if slot == slotPrimaryMaster || slot == slotPrimarySlave {
		return c.bar4Primary
	}

	return c.bar4Secondary
}
