// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

// HandleIRQ14 services the primary bus IRQ. It must be invoked by the
// caller's interrupt dispatch (registration and acknowledgement to the
// interrupt controller are out of this package's scope, SPEC_FULL.md
// §1); this method only does the IDE-specific part of the handler
// (SPEC_FULL.md §4.6): read the status register to clear the pending IRQ
// latch, and wake whichever ATAPI request is in progress on this bus.
func (c *Controller) HandleIRQ14() {
	c.handleIRQ(&primaryBus, slotPrimaryMaster, slotPrimarySlave)

	if c.irq[0] != nil {
		c.irq[0].Ack()
	}
}

// HandleIRQ15 services the secondary bus IRQ.
func (c *Controller) HandleIRQ15() {
	c.handleIRQ(&secondaryBus, slotSecondaryMaster, slotSecondarySlave)

	if c.irq[1] != nil {
		c.irq[1].Ack()
	}
}

func (c *Controller) handleIRQ(b *bus, master, slave slotIndex) {
	// reading the status register clears the pending IRQ latch
	c.in8(b, RegStatus)

	for _, slot := range [2]slotIndex{master, slave} {
		d := &c.drives[slot]

		if d.present && d.inProgress {
			select {
			case d.done <- nil:
			default:
			}
		}
	}
}
