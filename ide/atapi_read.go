// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

import "context"

// atapiRead reads exactly one ATAPI block into buf via a 12-byte READ(12)
// packet command, per SPEC_FULL.md §4.3. The mutex is held only for setup
// and teardown; the wait for the IRQ-signalled completion happens with it
// released, resolving the distilled spec's "mutex held across sleep"
// Open Question (SPEC_FULL.md §5, §9).
func (c *Controller) atapiRead(ctx context.Context, slot slotIndex, lba uint32, buf []byte) (int, error) {
	b := slot.bus()
	d := &c.drives[slot]

	c.mu.Lock()

	c.selectDrive(b, d.slave, 0)
	c.ioWait(b)

	c.out8(b, RegFeatures, 0)
	c.out8(b, RegLBA1, uint8(d.atapiSectorSize))
	c.out8(b, RegLBA2, uint8(d.atapiSectorSize>>8))
	c.out8(b, RegCommand, CmdPacket)

	if drq, failed := c.waitDRQ(b, detectPollIterations); failed {
		c.mu.Unlock()
		return 0, ErrHardware
	} else if !drq {
		c.mu.Unlock()
		return 0, ErrTimeout
	}

	d.inProgress = true

	// drain any stale completion left by a previous, already-timed-out
	// request before arming this one.
	select {
	case <-d.done:
	default:
	}

	cmd := [12]byte{
		ScsiRead12, 0,
		byte(lba >> 24), byte(lba >> 16), byte(lba >> 8), byte(lba),
		0, 0, 0, 1, 0, 0,
	}

	c.writePacket(b, cmd)

	c.mu.Unlock()

	// Suspension point: wait for the IRQ handler to signal completion, or
	// ctx/the fixed ATAPIWaitTimeout to expire (SPEC_FULL.md §5).
	waitCtx := ctx
	var cancel context.CancelFunc

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		waitCtx, cancel = context.WithTimeout(ctx, ATAPIWaitTimeout)
		defer cancel()
	}

	var waitErr error

	select {
	case waitErr = <-d.done:
	case <-waitCtx.Done():
		waitErr = ErrTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d.inProgress = false

	if waitErr != nil {
		return 0, waitErr
	}

	drq, failed := c.waitDRQ(b, detectPollIterations)
	if failed {
		return 0, ErrHardware
	}
	if !drq {
		return 0, ErrTimeout
	}

	sizeToRead := uint16(c.in8(b, RegLBA2))<<8 | uint16(c.in8(b, RegLBA1))

	n := int(sizeToRead)
	if n > len(buf) {
		n = len(buf)
	}

	c.port.InStream16(b.ioBase+RegData, buf[:n], n/2)

	c.waitReady(b, detectPollIterations)

	return n, nil
}

