// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"bytes"
	"fmt"

	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/swdmem"
	"github.com/swd-tools/swdhost/target"
)

// MaxVerifyRetries bounds how many times the Orchestrator will re-erase and
// reprogram one unit after a failed read-back verification before giving
// up.
const MaxVerifyRetries = 10

// Orchestrator is the Flash Write Orchestrator: it turns an arbitrary,
// possibly unaligned and partial-unit byte range into whole-unit
// read-modify-write cycles against a Flasher, verifying every cycle by
// reading the unit back and re-erasing on mismatch.
type Orchestrator struct {
	mem  *swdmem.Transport
	ctrl Flasher
	desc target.Descriptor
}

// NewOrchestrator builds an Orchestrator over ctrl, which must address the
// same flash as desc describes.
func NewOrchestrator(mem *swdmem.Transport, ctrl Flasher, desc target.Descriptor) *Orchestrator {
	return &Orchestrator{mem: mem, ctrl: ctrl, desc: desc}
}

// Write programs data into [addr, addr+len(data)), unlocking and relocking
// flash for the whole operation and chopping at erase-unit boundaries.
func (o *Orchestrator) Write(addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := o.ctrl.Unlock(); err != nil {
		return fmt.Errorf("flash: %w", err)
	}
	defer o.ctrl.Lock()

	end := addr + uint32(len(data))
	for cur := addr; cur < end; {
		unitStart, unitSize := o.unitBounds(cur)
		unitEnd := unitStart + unitSize
		hi := end
		if hi > unitEnd {
			hi = unitEnd
		}
		chunk := data[cur-addr : hi-addr]
		if err := o.writeUnit(unitStart, unitSize, cur, hi, chunk); err != nil {
			return err
		}
		cur = hi
	}
	return nil
}

// unitBounds returns the start and size of the erase unit covering addr.
func (o *Orchestrator) unitBounds(addr uint32) (start, size uint32) {
	l := o.desc.FlashLayout
	if o.desc.Uniform() {
		off := addr - o.desc.Flash.Start
		return addr - off%l.ProgramUnit, l.ProgramUnit
	}
	off := addr - o.desc.Flash.Start
	for _, s := range l.Segments {
		if off >= s.Start && off < s.Start+s.Size {
			return o.desc.Flash.Start + s.Start, s.Size
		}
	}
	return addr, l.ProgramUnit
}

// writeUnit reads the whole erase unit, splices in [lo,hi) from chunk, and
// erases+reprograms+verifies the unit, retrying up to MaxVerifyRetries
// times on a read-back mismatch.
func (o *Orchestrator) writeUnit(unitStart, unitSize, lo, hi uint32, chunk []byte) error {
	full, err := o.readRange(unitStart, unitSize)
	if err != nil {
		return err
	}
	copy(full[lo-unitStart:hi-unitStart], chunk)

	for attempt := 0; ; attempt++ {
		if err := o.ctrl.EraseUnit(unitStart); err != nil {
			return fmt.Errorf("flash: erase %#08x: %w", unitStart, err)
		}
		if err := o.ctrl.Program(unitStart, full); err != nil {
			return fmt.Errorf("flash: program %#08x: %w", unitStart, err)
		}
		back, err := o.readRange(unitStart, unitSize)
		if err != nil {
			return err
		}
		if bytes.Equal(back, full) {
			return nil
		}
		if attempt >= MaxVerifyRetries {
			return fmt.Errorf("flash: verify %#08x after %d retries: %w", unitStart, MaxVerifyRetries, swderr.VerifyFailed)
		}
	}
}

// readRange reads size bytes at addr, chopping at the Memory Transport's
// bank boundary.
func (o *Orchestrator) readRange(addr, size uint32) ([]byte, error) {
	out := make([]byte, 0, size)
	for off := uint32(0); off < size; {
		n := swdmem.BankSize - (addr+off)%swdmem.BankSize
		if n > size-off {
			n = size - off
		}
		words, err := o.mem.ReadBlock(addr+off, int(n/4))
		if err != nil {
			return nil, err
		}
		for _, w := range words {
			out = append(out, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
		}
		off += n
	}
	return out, nil
}
