// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

import (
	"encoding/binary"
)

const detectPollIterations = 10000

// ioWait approximates the ~400ns settle time ata.c's ata_io_wait achieves
// by reading the alternate status register four times; the read itself,
// not its result, is what matters.
func (c *Controller) ioWait(b *bus) {
	c.altStatus(b)
	c.altStatus(b)
	c.altStatus(b)
	c.altStatus(b)
}

func (c *Controller) softReset(b *bus) {
	c.control(b, ControlSRST)
	c.ioWait(b)
	c.control(b, 0)
}

// Detect probes all four static drive slots (primary/secondary ×
// master/slave), initializing and mounting whichever are present. It is
// safe to call at most once per Controller.
func (c *Controller) Detect() error {
	if dev := c.locateController(); dev != nil {
		c.cfg = dev

		dev.EnableBusMaster()
		base := dev.BaseAddress(4)
		c.bar4Primary = uint16(base)
		c.bar4Secondary = uint16(base) + 8
		c.hasBusMaster = base != 0
	}

	for slot := slotIndex(0); slot < numSlots; slot++ {
		c.detectSlot(slot)
	}

	return nil
}

func (c *Controller) detectSlot(slot slotIndex) {
	b := slot.bus()
	slave := slot.isSlave()

	c.softReset(b)
	c.ioWait(b)
	c.selectDrive(b, slave, 0)
	c.ioWait(b)
	c.waitBSYClear(b, detectPollIterations)

	cl := c.in8(b, RegLBA1)
	ch := c.in8(b, RegLBA2)

	switch {
	case cl == 0xff && ch == 0xff:
		c.log(slot, KindNone, "", nil)

	case (cl == 0x00 && ch == 0x00) || (cl == 0x3c && ch == 0xc3):
		d := &c.drives[slot]
		d.present = true
		d.kind = KindATA
		d.slave = slave

		c.ataInit(slot)

		d.name = c.nextDriveName()
		c.log(slot, KindATA, d.name, nil)

	case (cl == 0x14 && ch == 0xeb) || (cl == 0x69 && ch == 0x96):
		d := &c.drives[slot]
		d.present = true
		d.kind = KindATAPI
		d.slave = slave

		if err := c.atapiInit(slot); err != nil {
			d.present = false
			c.log(slot, KindATAPI, "", err)
			return
		}

		d.name = c.nextCDROMName()
		c.log(slot, KindATAPI, d.name, nil)

	default:
		c.log(slot, KindNone, "", nil)
	}
}

// ataInit runs the IDENTIFY + DMA resource setup sequence for a detected
// PATA drive (SPEC_FULL.md §4.1, ata_init).
func (c *Controller) ataInit(slot slotIndex) {
	b := slot.bus()
	d := &c.drives[slot]

	c.out8(b, 0x1, 1) // disable IRQs on device
	c.control(b, 0)

	c.selectDrive(b, d.slave, 0)
	c.ioWait(b)

	c.out8(b, RegCommand, CmdIdentify)
	c.ioWait(b)

	c.waitBSYClear(b, detectPollIterations)

	c.readIdentity(b, &d.identity)

	if c.alloc != nil {
		c.setupDMA(d)
	}
}

// atapiInit runs IDENTIFY PACKET followed by a READ CAPACITY probe
// (SPEC_FULL.md §4.1, atapi_init).
func (c *Controller) atapiInit(slot slotIndex) error {
	b := slot.bus()
	d := &c.drives[slot]

	c.out8(b, 0x1, 1)
	c.control(b, 0)

	c.selectDrive(b, d.slave, 0)
	c.ioWait(b)

	c.out8(b, RegCommand, CmdIdentifyPkt)
	c.ioWait(b)

	c.waitBSYClear(b, detectPollIterations)

	c.readIdentity(b, &d.identity)

	// best-effort spin-up before the capacity probe, for drives that
	// power down between accesses (ataold.c's START STOP UNIT step,
	// SPEC_FULL.md §4.9). Ignored if the device rejects it.
	c.spinUpATAPI(b, d)

	lba, blockSize, err := c.readCapacity(b, d)
	if err != nil {
		return err
	}

	if lba == 0 {
		return ErrNoMedium
	}

	d.atapiLBA = lba
	d.atapiSectorSize = blockSize

	return nil
}

// readIdentity reads the 256-word IDENTIFY response and fixes up the
// model string byte order.
func (c *Controller) readIdentity(b *bus, id *Identity) {
	raw := make([]byte, 512)

	for i := 0; i < 256; i++ {
		w := c.port.In16(b.ioBase + RegData)
		binary.LittleEndian.PutUint16(raw[i*2:], w)
	}

	*id = ParseIdentity(raw)
}

// spinUpATAPI issues SCSI START STOP UNIT (start bit set), ignoring any
// error: not every device implements it, and failure here must not block
// the capacity probe that follows.
func (c *Controller) spinUpATAPI(b *bus, d *driveState) {
	cmd := [12]byte{ScsiStartStop, 0, 0, 0, 1 /* start */, 0, 0, 0, 0, 0, 0, 0}

	c.out8(b, RegFeatures, 0)
	c.out8(b, RegLBA1, 0)
	c.out8(b, RegLBA2, 0)
	c.out8(b, RegCommand, CmdPacket)

	drq, failed := c.waitDRQWithReady(b, detectPollIterations)
	if failed || !drq {
		return
	}

	c.writePacket(b, cmd)
	c.waitBSYClear(b, detectPollIterations)
}

// readCapacity issues SCSI READ CAPACITY (10) and parses the 8-byte
// big-endian response (SPEC_FULL.md §4.1).
func (c *Controller) readCapacity(b *bus, d *driveState) (lba uint32, blockSize uint32, err error) {
	var cmd [12]byte
	cmd[0] = ScsiReadCapacity

	c.out8(b, RegFeatures, 0)
	c.out8(b, RegLBA1, 0x08)
	c.out8(b, RegLBA2, 0x08)
	c.out8(b, RegCommand, CmdPacket)

	for i := 0; i < detectPollIterations; i++ {
		s := c.in8(b, RegStatus)

		if s&StatusERR != 0 {
			return 0, 0, ErrHardware
		}
		if s&StatusBSY == 0 && s&StatusDRDY != 0 {
			break
		}
	}

	c.writePacket(b, cmd)

	for i := 0; i < detectPollIterations; i++ {
		s := c.in8(b, RegStatus)

		if s&StatusERR != 0 {
			return 0, 0, ErrHardware
		}
		if s&StatusBSY == 0 && (s&StatusDRDY != 0 || s&StatusDRQ != 0) {
			break
		}
	}

	var resp [8]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint16(resp[i*2:], c.port.In16(b.ioBase+RegData))
	}

	lba = binary.BigEndian.Uint32(resp[0:4])
	blockSize = binary.BigEndian.Uint32(resp[4:8])

	return lba, blockSize, nil
}

// writePacket transfers a 12-byte SCSI-style packet command as six
// 16-bit words, per SPEC_FULL.md §6 "Packet-command format".
func (c *Controller) writePacket(b *bus, cmd [12]byte) {
	for i := 0; i < 6; i++ {
		w := binary.LittleEndian.Uint16(cmd[i*2:])
		c.port.Out16(b.ioBase+RegData, w)
	}
}

func (c *Controller) waitDRQWithReady(b *bus, maxIter int) (drq bool, failed bool) {
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

// setupDMA allocates the PRDT and the per-drive sector buffer, both
// physically contiguous, and programs the PRDT's single entry
// (SPEC_FULL.md §4.1).
func (c *Controller) setupDMA(d *driveState) {
	d.bufBuf = make([]byte, 4096)
	d.bufAddr = c.alloc.Alloc(d.bufBuf, 4096)

	entry := newSectorPRDT(uint32(d.bufAddr), 512)
	d.prdtBuf = entry.Bytes()
	d.prdtAddr = c.alloc.Alloc(d.prdtBuf, 8)
}
