// PCI IDE/ATA block-device driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ide

import "encoding/binary"

// fakeHW is a stubbed hardware model of a single primary-master drive
// (PATA or ATAPI), counting DMA reads and PIO writes and synthesizing the
// device-side protocol behavior this package's state machines expect.
// Grounded on periph's conn/i2c/i2ctest.Record pattern (fake collaborator
// that records/replays instead of touching real hardware); periph itself
// is not imported (SPEC_FULL.md §2).
type fakeHW struct {
	kind Kind

	// legacy task-file registers, shared between the read and write
	// meaning of the same physical register (e.g. lba1/lba2 double as
	// the ATAPI byte-count field).
	lba0, lba1, lba2 uint8
	primarySlave     bool
	secondarySlave   bool

	wordQueue []uint16 // popped by In16 (IDENTIFY, READ CAPACITY)
	byteQueue []byte   // popped by InStream16 (ATAPI READ(12) payload)

	packetBuf []byte // accumulates a 12-byte SCSI packet via Out16

	disk []byte // backing PATA sector store, indexed by lba*512

	identity []byte // 512-byte raw IDENTIFY response

	atapiPayload []byte // canned bytes returned by the next READ(12)

	mem      map[uint][]byte // physical memory backing PhysAllocator/PRDT
	nextAddr uint

	prdAddr uint // address programmed into the bus-master PRD register

	dmaReads  int // completed DMA transfers, for S5
	pioWrites int // OutStream16 count, for S5

	corruptNextWrite bool // corrupt the next OutStream16 payload on disk

	controller *Controller // set after NewController, to fire IRQs inline
}

func newFakeHW(kind Kind) *fakeHW {
	f := &fakeHW{
		kind:     kind,
		disk:     make([]byte, 64*512),
		mem:      make(map[uint][]byte),
		identity: make([]byte, 512),
	}

	switch kind {
	case KindATA:
		f.lba0, f.lba1, f.lba2 = 0x00, 0x00, 0x00
	case KindATAPI:
		f.lba0, f.lba1, f.lba2 = 0x00, 0x14, 0xeb
	}

	return f
}

func (f *fakeHW) setIdentity(raw []byte) {
	f.identity = raw
}

func bytesToWordsBE(b []byte) []uint16 {
	ws := make([]uint16, len(b)/2)
	for i := range ws {
		ws[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	return ws
}

func (f *fakeHW) currentLBA() uint64 {
	return uint64(f.lba0) | uint64(f.lba1)<<8 | uint64(f.lba2)<<16
}

const (
	fakeBarPrimary = 0xc000
)

func (f *fakeHW) In8(port uint16) uint8 {
	switch {
	case port == 0x1f7: // primary status
		if f.primarySlave {
			return 0xff
		}
		return StatusDRDY | StatusDRQ
	case port == 0x3f6: // primary alt status
		if f.primarySlave {
			return 0xff
		}
		return StatusDRDY | StatusDRQ
	case port == 0x1f4:
		if f.primarySlave {
			return 0xff
		}
		return f.lba1
	case port == 0x1f5:
		if f.primarySlave {
			return 0xff
		}
		return f.lba2
	case port == 0x1f3:
		return f.lba0
	case port >= 0x170 && port <= 0x177, port == 0x376:
		// no device on the secondary bus in this fixture
		return 0xff
	case port == fakeBarPrimary+BMStatus:
		return 0x04 // interrupt bit always reported as latched
	default:
		return 0
	}
}

func (f *fakeHW) Out8(port uint16, val uint8) {
	switch port {
	case 0x1f6: // primary HDDEVSEL
		f.primarySlave = val&(1<<4) != 0
	case 0x176: // secondary HDDEVSEL
		f.secondarySlave = val&(1<<4) != 0
	case 0x1f2:
		// SecCount0: not consulted by this fixture's single-sector ops
	case 0x1f3:
		f.lba0 = val
	case 0x1f4:
		f.lba1 = val
	case 0x1f5:
		f.lba2 = val
	case 0x1f7: // primary command
		f.dispatchCommand(val)
	case fakeBarPrimary + BMCommand:
		if val == BMCmdRead|BMCmdStart {
			f.runDMATransfer()
		}
	}
}

func (f *fakeHW) dispatchCommand(cmd uint8) {
	switch cmd {
	case CmdIdentify, CmdIdentifyPkt:
		f.wordQueue = append(f.wordQueue[:0], rawToWordsLE(f.identity)...)
	case CmdPacket:
		f.packetBuf = f.packetBuf[:0]
	}
}

func rawToWordsLE(raw []byte) []uint16 {
	ws := make([]uint16, len(raw)/2)
	for i := range ws {
		ws[i] = binary.LittleEndian.Uint16(raw[i*2:])
	}
	return ws
}

// runDMATransfer copies one sector from the backing disk into the DMA
// buffer the PRDT entry points at, simulating the bus master's actual
// scatter-gather copy. Invoked synchronously from Out8 when the driver
// writes the start|read bits to the bus-master command register.
func (f *fakeHW) runDMATransfer() {
	entry := f.mem[f.prdAddr]
	if len(entry) < 4 {
		return
	}

	bufAddr := uint(binary.LittleEndian.Uint32(entry[:4]))
	lba := f.currentLBA()

	dst := f.mem[bufAddr]
	if dst == nil {
		return
	}

	copy(dst, f.disk[lba*512:lba*512+512])
	f.dmaReads++
}

func (f *fakeHW) In16(port uint16) uint16 {
	if port == 0x1f0 {
		if len(f.wordQueue) == 0 {
			return 0
		}
		w := f.wordQueue[0]
		f.wordQueue = f.wordQueue[1:]
		return w
	}
	return 0
}

func (f *fakeHW) Out16(port uint16, val uint16) {
	if port != 0x1f0 {
		return
	}

	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], val)
	f.packetBuf = append(f.packetBuf, b[0], b[1])

	if len(f.packetBuf) == 12 {
		f.dispatchPacket()
		f.packetBuf = f.packetBuf[:0]
	}
}

func (f *fakeHW) dispatchPacket() {
	switch f.packetBuf[0] {
	case ScsiReadCapacity:
		f.wordQueue = append(f.wordQueue, rawToWordsLE([]byte{0x00, 0x00, 0x10, 0xff, 0x00, 0x00, 0x08, 0x00})...)
	case ScsiRead12:
		n := int(f.lba1) | int(f.lba2)<<8
		payload := f.atapiPayload
		if len(payload) > n {
			payload = payload[:n]
		}
		for len(payload) < n {
			payload = append(payload, 0)
		}
		f.byteQueue = append(f.byteQueue, payload...)
		f.lba1 = uint8(n)
		f.lba2 = uint8(n >> 8)

		if f.controller != nil {
			f.controller.HandleIRQ14()
		}
	}
}

func (f *fakeHW) In32(port uint16) uint32 { return 0 }

// Out32 backs the single 32-bit bus-master register this driver programs:
// the PRD table physical address.
func (f *fakeHW) Out32(port uint16, val uint32) {
	if port == fakeBarPrimary+BMPRD {
		f.prdAddr = uint(val)
	}
}

func (f *fakeHW) InStream16(port uint16, buf []byte, count int) {
	n := count * 2
	if n > len(f.byteQueue) {
		n = len(f.byteQueue)
	}
	copy(buf, f.byteQueue[:n])
	f.byteQueue = f.byteQueue[n:]
}

func (f *fakeHW) OutStream16(port uint16, buf []byte, count int) {
	f.pioWrites++

	lba := f.currentLBA()
	dst := f.disk[lba*512 : lba*512+512]

	if f.corruptNextWrite {
		corrupt := make([]byte, 512)
		copy(corrupt, buf[:512])
		corrupt[0] ^= 0xff
		copy(dst, corrupt)
		f.corruptNextWrite = false
		return
	}

	copy(dst, buf[:512])
}

// PhysAllocator implementation: each call appends a fresh region to f.mem
// at a monotonically increasing address.

func (f *fakeHW) Alloc(buf []byte, align int) uint {
	f.nextAddr += uint(align)
	addr := f.nextAddr
	f.nextAddr += uint(len(buf))

	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.mem[addr] = cp

	return addr
}

func (f *fakeHW) Free(addr uint) {
	delete(f.mem, addr)
}

func (f *fakeHW) Read(addr uint, off int, buf []byte) {
	copy(buf, f.mem[addr][off:])
}

func (f *fakeHW) Write(addr uint, off int, buf []byte) {
	copy(f.mem[addr][off:], buf)
}

// fakeConfigSpace is the located IDE PCI function: BAR4 at fakeBarPrimary,
// bus master trivially enabled.
type fakeConfigSpace struct{}

func (fakeConfigSpace) Read(fn uint32, off uint32) uint32  { return 0 }
func (fakeConfigSpace) Write(fn uint32, off uint32, val uint32) {}
func (fakeConfigSpace) BaseAddress(n int) uint {
	if n == 4 {
		return fakeBarPrimary
	}
	return 0
}
func (fakeConfigSpace) EnableBusMaster() {}

type fakeProber struct{}

func (fakeProber) Probe(bus int, vendor uint16, device uint16) ConfigSpace {
	if bus == 0 && vendor == VendorIntel && device == DevicePIIX3 {
		return fakeConfigSpace{}
	}
	return nil
}
