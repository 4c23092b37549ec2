// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

import "bytes"

// pioWrite writes exactly one sector (512 bytes) to a PATA drive via PIO,
// followed by CACHE FLUSH, per SPEC_FULL.md §4.4. The caller must hold
// c.mu and have verified d.kind == KindATA.
func (c *Controller) pioWrite(slot slotIndex, lba uint64, buf []byte) {
	b := slot.bus()
	d := &c.drives[slot]

	c.control(b, ControlNIEN)
	c.waitBSYClear(b, detectPollIterations)

	c.out8(b, RegHDDevSel, hddevselDMA(d.slave))
	c.waitBSYClear(b, detectPollIterations)

	c.out8(b, RegFeatures, 0)
	c.setLBA48(b, lba, 1)

	c.out8(b, RegCommand, CmdWritePIO)
	c.waitBSYClear(b, detectPollIterations)

	c.port.OutStream16(b.ioBase+RegData, buf[:512], 256)

	c.out8(b, RegCommand, CmdCacheFlush)
	c.waitBSYClear(b, detectPollIterations)
}

// pioWriteVerify implements the unbounded write-then-read-back verify
// loop: this retry policy is intentional (SPEC_FULL.md §4.4, §7) and has
// no cap, and a read-back mismatch surfaces no error, matching the
// distilled spec exactly. A failed read-back (dmaRead error) is returned.
func (c *Controller) pioWriteVerify(slot slotIndex, lba uint64, buf []byte) error {
	d := &c.drives[slot]
	readBack := make([]byte, d.sectorSize())

	for {
		c.mu.Lock()
		c.pioWrite(slot, lba, buf)
		err := c.dmaRead(slot, lba, readBack)
		c.mu.Unlock()

		if err != nil {
			return err
		}

		if bytes.Equal(buf[:512], readBack[:512]) {
			return nil
		}
	}
}
