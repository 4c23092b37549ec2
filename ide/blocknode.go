// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

import "context"

// BlockNode is a byte-addressable handle onto one detected drive,
// synthesizing arbitrary-offset, arbitrary-length reads and writes from
// whole-sector operations (SPEC_FULL.md §4.5). Its device back-reference
// is an index into the owning Controller's drive table, not a pointer
// (SPEC_FULL.md §9, "raw pointer back-references").
type BlockNode struct {
	controller *Controller
	slot       slotIndex

	Name   string
	Length uint64
}

// Nodes returns the mounted block nodes in detection order
// (SPEC_FULL.md §6).
func (c *Controller) Nodes() []*BlockNode {
	var nodes []*BlockNode

	for slot := slotIndex(0); slot < numSlots; slot++ {
		d := &c.drives[slot]

		if !d.present {
			continue
		}

		nodes = append(nodes, &BlockNode{
			controller: c,
			slot:       slot,
			Name:       d.name,
			Length:     d.length(),
		})
	}

	return nodes
}

// Open is a no-op, matching SPEC_FULL.md §6.
func (n *BlockNode) Open() {}

// Close is a no-op, matching SPEC_FULL.md §6.
func (n *BlockNode) Close() {}

// Read synthesizes a byte-granular read from whole-sector device reads.
// It returns the number of bytes actually read: 0 at or past end of
// device, size on full success, less on truncation. Hardware errors
// abort the request and return whatever was read so far, per SPEC_FULL.md
// §7.
func (n *BlockNode) Read(ctx context.Context, offset uint64, buf []byte) (int, error) {
	d := &n.controller.drives[n.slot]
	length := d.length()

	if offset >= length {
		return 0, nil
	}

	size := len(buf)
	if offset+uint64(size) > length {
		size = int(length - offset)
	}

	return n.transfer(ctx, offset, buf[:size], false)
}

// Write synthesizes a byte-granular write from whole-sector device
// writes. ATAPI nodes reject writes (SPEC_FULL.md §6, "ATAPI writes are
// rejected").
func (n *BlockNode) Write(ctx context.Context, offset uint64, buf []byte) (int, error) {
	d := &n.controller.drives[n.slot]

	if d.kind == KindATAPI {
		return 0, ErrHardware
	}

	length := d.length()

	if offset >= length {
		return 0, nil
	}

	size := len(buf)
	if offset+uint64(size) > length {
		size = int(length - offset)
	}

	return n.transfer(ctx, offset, buf[:size], true)
}

// transfer implements the head/middle/tail decomposition common to Read
// and Write (SPEC_FULL.md §4.5). For writes, head and tail fragments are
// read-modify-write.
func (n *BlockNode) transfer(ctx context.Context, offset uint64, buf []byte, write bool) (int, error) {
	d := &n.controller.drives[n.slot]
	sectorSize := uint64(d.sectorSize())

	size := uint64(len(buf))
	start := offset / sectorSize
	end := (offset + size - 1) / sectorSize

	var x, tail uint64

	if offset%sectorSize != 0 {
		scratch := make([]byte, sectorSize)

		if err := n.readSector(ctx, start, scratch); err != nil {
			return int(x), err
		}

		prefix := sectorSize - (offset % sectorSize)
		if prefix > size {
			prefix = size
		}

		if write {
			copy(scratch[offset%sectorSize:], buf[:prefix])

			if err := n.writeSector(ctx, start, scratch); err != nil {
				return int(x), err
			}
		} else {
			copy(buf[:prefix], scratch[offset%sectorSize:])
		}

		x += prefix
		start++
	}

	if start <= end && (offset+size)%sectorSize != 0 {
		scratch := make([]byte, sectorSize)

		if err := n.readSector(ctx, end, scratch); err != nil {
			return int(x), err
		}

		postfix := (offset + size) % sectorSize
		tailStart := size - postfix

		if write {
			copy(scratch[:postfix], buf[tailStart:])

			if err := n.writeSector(ctx, end, scratch); err != nil {
				return int(x), err
			}
		} else {
			copy(buf[tailStart:], scratch[:postfix])
		}

		tail = postfix
		end--
	}

	for s := start; s <= end && x+tail < size; s++ {
		var err error

		if write {
			err = n.writeSector(ctx, s, buf[x:x+sectorSize])
		} else {
			err = n.readSector(ctx, s, buf[x:x+sectorSize])
		}

		if err != nil {
			return int(x), err
		}

		x += sectorSize
	}

	return int(x + tail), nil
}

func (n *BlockNode) readSector(ctx context.Context, sector uint64, buf []byte) error {
	d := &n.controller.drives[n.slot]

	if d.kind == KindATAPI {
		_, err := n.controller.atapiRead(ctx, n.slot, uint32(sector), buf)
		return err
	}

	n.controller.mu.Lock()
	defer n.controller.mu.Unlock()

	return n.controller.dmaRead(n.slot, sector, buf)
}

func (n *BlockNode) writeSector(ctx context.Context, sector uint64, buf []byte) error {
	return n.controller.pioWriteVerify(n.slot, sector, buf)
}
