// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swdtest is a software SWD target: it implements swdio.PinIO by
// decoding the bit-banged protocol itself and answering as a Cortex-M DAP
// would, backed by a simulated SRAM, flash, and Cortex-M debug register
// file. It lets the rest of this module be tested without real pins or
// real silicon, the same way gpioioctl/dummy.go stands in for a GPIO chip
// that pipeline builds don't have.
package swdtest

import "sync"

// Variant selects which flash controller's register layout the simulated
// target's FLASH_CR/FLASH_SR/FLASH_KEYR/FLASH_AR behave like.
type Variant int

const (
	VariantUniform Variant = iota // STM32F103-style, uniform page erase
	VariantSector                 // STM32F411-style, heterogeneous sectors
)

// Cortex-M AHB debug register addresses, identical for both variants.
const (
	addrDHCSR = 0xE000EDF0
	addrDEMCR = 0xE000EDFC
	addrAIRCR = 0xE000ED0C
)

// Ack values, mirrored from the wire-level ACK taxonomy (swdproto).
const (
	ackOK    = 0b001
	ackWAIT  = 0b010
	ackFAULT = 0b100
)

// Segment describes one erase unit for the sector variant's flash.
type Segment struct {
	Start uint32
	Size  uint32
}

// Access records one completed DP/AP transaction, for property assertions.
type Access struct {
	APnDP bool
	RnW   bool // true = read
	Reg   uint32
	Data  uint32
	Ack   byte
}

// Target is a simulated Cortex-M DAP plus memory and flash controller.
type Target struct {
	mu sync.Mutex

	variant      Variant
	sramBase     uint32
	sram         []byte
	flashBase    uint32
	flash        []byte
	flashUniform uint32 // program/erase unit size for the uniform variant
	segments     []Segment

	idcode uint32

	dpCtrlStat uint32
	dpSelect   uint32
	apCSW      uint32
	apTAR      uint32
	apIDR      uint32
	latched    uint32

	flashCR   uint32
	flashSR   uint32
	keyrStage int    // 0 = awaiting magic1, 1 = awaiting magic2
	lastAR    uint32 // last value written to FLASH_AR (uniform variant only)

	debugEnabled bool
	halted       bool
	vectorCatch  bool

	// bit-level framing state
	mode    int // modeHeader or modeWriteData
	bitsIn  []bool
	bitsOut []bool
	outPos  int
	pending pendingOp

	// test hooks
	forceAck      byte
	forceAlways   bool
	forceWaitN    int
	forceSticky   uint32
	headerCount   int
	aborts      []uint32
	history     []Access
	busyCycles  int // number of FLASH_SR reads that report BSY before clearing
	corruptN    int // number of remaining flash-region reads to bit-flip
}

const (
	modeHeader = iota
	modeWriteData
)

type pendingOp struct {
	valid      bool
	apndp      bool
	rnw        bool
	regOffset  uint32 // fully resolved AP/DP register offset
	willCommit bool   // true once header decode determined ack==OK and op==write
}

// New builds a simulated target with sramLen bytes of SRAM at sramBase and
// flashLen bytes of (initially erased, 0xFF) flash at flashBase.
func New(variant Variant, sramBase uint32, sramLen int, flashBase uint32, flashLen int, segments []Segment, programUnit uint32) *Target {
	t := &Target{
		variant:      variant,
		sramBase:     sramBase,
		sram:         make([]byte, sramLen),
		flashBase:    flashBase,
		flash:        make([]byte, flashLen),
		flashUniform: programUnit,
		segments:     segments,
		idcode:       0x2BA01477, // low byte 0x77 doesn't match the DAP signature list on purpose by default; tests call SetIDCode
	}
	for i := range t.flash {
		t.flash[i] = 0xFF
	}
	t.flashCR = lockBit(variant) // flash starts locked
	return t
}

func lockBit(v Variant) uint32 {
	if v == VariantSector {
		return 1 << 31
	}
	return 1 << 7
}

func bsyBit(v Variant) uint32 {
	if v == VariantSector {
		return 1 << 16
	}
	return 1 << 0
}

// SetIDCode overrides the value returned by an IDCODE read.
func (t *Target) SetIDCode(v uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.idcode = v
}

// ForceNextAck makes the next fully-framed transaction return ack instead of
// the target's normal response, optionally latching sticky bits into
// CTRL/STAT as a side effect (used to drive the Fault Handler).
func (t *Target) ForceNextAck(ack byte, sticky uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceAck = ack
	t.forceSticky = sticky
}

// ForceWaitAlways makes every transaction return WAIT until cleared, for the
// retry-bound property test (P3).
func (t *Target) ForceWaitAlways(always bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceAlways = always
}

// SetBusyCycles makes the next n reads of FLASH_SR report BSY set before the
// controller reports completion, for the busy-poll property test (P10).
func (t *Target) SetBusyCycles(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busyCycles = n
}

// ForceWaitCount makes the next n well-formed headers (across any
// transaction) return WAIT, after which the target answers normally again.
// Unlike ForceWaitAlways this lets a test arrange for a caller's retry loop
// to exhaust while a later, independent transaction (such as the Fault
// Handler's own cleanup write) still succeeds.
func (t *Target) ForceWaitCount(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceWaitN = n
}

// CorruptNextFlashReads makes the next n 32-bit reads from the flash region
// come back with one bit flipped, simulating a target whose verify
// read-back doesn't match what was just programmed — for the Flash Write
// Orchestrator's bounded-retry property test.
func (t *Target) CorruptNextFlashReads(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.corruptN = n
}

// HeaderCount returns the number of well-formed 8-bit headers decoded so far.
func (t *Target) HeaderCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.headerCount
}

// AbortWrites returns the value written to the DP ABORT register on every
// write observed so far, in order.
func (t *Target) AbortWrites() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint32, len(t.aborts))
	copy(out, t.aborts)
	return out
}

// History returns every completed transaction since construction, in order.
func (t *Target) History() []Access {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Access, len(t.history))
	copy(out, t.history)
	return out
}

// ReadWord performs a 32-bit bus read at addr, bypassing the wire, for test
// setup and assertions. It goes through the same path as a DRW read: debug
// and flash controller registers return their simulated read values rather
// than the last word written, and a read consumes any pending BSY cycles or
// flash-read corruptions.
func (t *Target) ReadWord(addr uint32) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busRead(addr)
}

// WriteBytes seeds the simulated memory image directly, bypassing the wire
// and the flash controller's program/erase rules.
func (t *Target) WriteBytes(addr uint32, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf, off, ok := t.backingStore(addr)
	if !ok {
		return
	}
	copy(buf[off:], data)
}

// ReadBytes peeks len bytes of the simulated memory image directly.
func (t *Target) ReadBytes(addr uint32, n int) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf, off, ok := t.backingStore(addr)
	if !ok {
		return make([]byte, n)
	}
	out := make([]byte, n)
	copy(out, buf[off:off+n])
	return out
}

func (t *Target) backingStore(addr uint32) (buf []byte, offset uint32, ok bool) {
	if addr >= t.sramBase && addr < t.sramBase+uint32(len(t.sram)) {
		return t.sram, addr - t.sramBase, true
	}
	if addr >= t.flashBase && addr < t.flashBase+uint32(len(t.flash)) {
		return t.flash, addr - t.flashBase, true
	}
	return nil, 0, false
}

//
// swdio.PinIO implementation: a bit-framing decoder, not a real wire.
//

// ClockSet is unused by the simulator: all framing is derived from the
// sequence of DataSet/DataGet/DataSetInput/DataSetOutput calls, which occur
// once per bit regardless of clock edges.
func (t *Target) ClockSet(bool) {}

// Delay is a no-op: tests don't need real time to pass.
func (t *Target) Delay() {}

// SectionBegin/SectionEnd: the simulator runs single-threaded under its own
// mutex per call, so no cross-call critical section is needed.
func (t *Target) SectionBegin() {}
func (t *Target) SectionEnd()   {}

// DataSetOutput marks the start of a new 8-bit header, unless the previous
// header decoded to a write with ack==OK, in which case it marks the start
// of the 33-bit data+parity field instead.
func (t *Target) DataSetOutput() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending.valid && t.pending.willCommit {
		t.mode = modeWriteData
		t.bitsIn = t.bitsIn[:0]
		return
	}
	t.mode = modeHeader
	t.bitsIn = t.bitsIn[:0]
}

// DataSetInput is a no-op: the ack (and, for successful reads, the trailing
// data+parity) are queued into bitsOut as soon as the header is decoded, so
// there is nothing left to arm here.
func (t *Target) DataSetInput() {}

// DataSet receives one bit the host is driving: a header bit, or (for
// writes) a data/parity bit.
func (t *Target) DataSet(level bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bitsIn = append(t.bitsIn, level)
	switch t.mode {
	case modeHeader:
		if len(t.bitsIn) == 8 {
			t.decodeHeader(t.bitsIn)
			t.bitsIn = t.bitsIn[:0]
		}
	case modeWriteData:
		if len(t.bitsIn) == 33 {
			t.commitWriteData(t.bitsIn)
			t.bitsIn = t.bitsIn[:0]
		}
	}
}

// DataGet returns the next bit the target is driving: an ack bit, or (for
// successful reads) a data/parity bit queued right after the ack.
func (t *Target) DataGet() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outPos >= len(t.bitsOut) {
		return true // idle/parked level
	}
	v := t.bitsOut[t.outPos]
	t.outPos++
	if t.outPos == len(t.bitsOut) {
		t.bitsOut = t.bitsOut[:0]
		t.outPos = 0
	}
	return v
}
