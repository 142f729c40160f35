// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package flash drives an MCU's flash controller over a Memory Transport:
// unlock/lock, whole-chip and ranged erase, and raw programming. The
// STM32F103's uniform pages and the STM32F411's heterogeneous sectors share
// this package's Controller type, differing only in the erase-unit
// selection algorithm (uniform.go, sector.go) driven by target.FlashLayout.
package flash

import (
	"fmt"

	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/swdmem"
	"github.com/swd-tools/swdhost/target"
)

// Flasher is the capability a Flash Write Orchestrator drives: unlock,
// erase and program a target's flash, without needing to know whether its
// erase units are uniform pages or heterogeneous sectors.
type Flasher interface {
	Unlock() error
	Lock() error
	EraseAll() error
	EraseUnit(addr uint32) error
	Program(addr uint32, data []byte) error
	ProgramUnit() uint32
}

// Controller is the shared implementation both STM32F103 and STM32F411 use;
// the erase geometry lives in target.FlashLayout, not in separate Go types.
type Controller struct {
	mem  *swdmem.Transport
	desc target.Descriptor
}

// New builds a Controller for desc's flash layout.
func New(mem *swdmem.Transport, desc target.Descriptor) *Controller {
	return &Controller{mem: mem, desc: desc}
}

var _ Flasher = (*Controller)(nil)

func (c *Controller) layout() target.FlashLayout { return c.desc.FlashLayout }

// ProgramUnit returns the program/erase chunk size for this target.
func (c *Controller) ProgramUnit() uint32 { return c.layout().ProgramUnit }

// Unlock writes the two-word key sequence and confirms LOCK cleared.
func (c *Controller) Unlock() error {
	l := c.layout()
	cr, err := c.mem.ReadWord(l.MMIOBase + l.CrOff)
	if err != nil {
		return err
	}
	if cr&l.LockBit == 0 {
		return nil
	}
	if err := c.mem.WriteWord(l.MMIOBase+l.KeyrOff, 0x45670123); err != nil {
		return err
	}
	if err := c.mem.WriteWord(l.MMIOBase+l.KeyrOff, 0xCDEF89AB); err != nil {
		return err
	}
	cr, err = c.mem.ReadWord(l.MMIOBase + l.CrOff)
	if err != nil {
		return err
	}
	if cr&l.LockBit != 0 {
		return fmt.Errorf("flash: unlock: %w", swderr.Locked)
	}
	return nil
}

// Lock sets the LOCK bit.
func (c *Controller) Lock() error {
	l := c.layout()
	cr, err := c.mem.ReadWord(l.MMIOBase + l.CrOff)
	if err != nil {
		return err
	}
	return c.mem.WriteWord(l.MMIOBase+l.CrOff, cr|l.LockBit)
}

// EraseAll sets MER+STRT and polls BSY.
func (c *Controller) EraseAll() error {
	l := c.layout()
	if err := c.mem.WriteWord(l.MMIOBase+l.CrOff, l.MerBit); err != nil {
		return err
	}
	if err := c.mem.WriteWord(l.MMIOBase+l.CrOff, l.MerBit|l.StrtBit); err != nil {
		return err
	}
	if err := c.pollBusy(); err != nil {
		return err
	}
	return c.mem.WriteWord(l.MMIOBase+l.CrOff, 0)
}

// EraseUnit erases whichever page (uniform variant) or sector (sector
// variant) covers addr.
func (c *Controller) EraseUnit(addr uint32) error {
	if c.desc.Uniform() {
		return c.eraseUniformPage(addr)
	}
	return c.eraseSector(addr)
}

// Program writes data starting at addr, ProgramUnit()-aligned, assuming the
// covering erase units are already erased. It does not itself erase: the
// Orchestrator decides when an erase is needed.
//
// Per-variant register handling mirrors the original driver: the sector
// variant (STM32F411) sets FLASH_CR's PSIZE field alongside PG
// (core_stm32f411xx.c's program_flash); the uniform variant (STM32F103) has
// no PSIZE field and instead reconfigures the Memory Transport's CSW to
// half-word, packed auto-increment for the duration of the write, since its
// flash controller only accepts half-word bus writes while PG is set
// (core_stm32f10xx.c's program_flash), restoring CSW to its prior value
// afterward.
func (c *Controller) Program(addr uint32, data []byte) error {
	l := c.layout()
	if addr%4 != 0 || len(data)%4 != 0 {
		return fmt.Errorf("flash: program addr=%#08x len=%d: %w", addr, len(data), swderr.Invalid)
	}
	if err := c.pollBusy(); err != nil {
		return fmt.Errorf("flash: program: %w", err)
	}

	var oldCSW uint32
	overrideCSW := l.CSWMask != 0 || l.CSWValue != 0
	if overrideCSW {
		var err error
		if oldCSW, err = c.mem.ReadCSW(); err != nil {
			return err
		}
		if err := c.mem.WriteCSW((oldCSW &^ l.CSWMask) | l.CSWValue); err != nil {
			return err
		}
	}

	pgBits := l.PgBit
	if l.PsizeOff != 0 {
		pgBits |= l.PsizeVal << l.PsizeOff
	}
	if err := c.mem.WriteWord(l.MMIOBase+l.CrOff, pgBits); err != nil {
		return err
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
	}
	// Chop at the Memory Transport's 1KiB auto-increment window.
	var progErr error
	for off := 0; off < len(words); {
		chunkWords := (swdmem.BankSize - int(addr+uint32(off*4))%swdmem.BankSize) / 4
		if chunkWords > len(words)-off {
			chunkWords = len(words) - off
		}
		if progErr = c.mem.WriteBlock(addr+uint32(off*4), words[off:off+chunkWords]); progErr != nil {
			break
		}
		if progErr = c.pollBusy(); progErr != nil {
			break
		}
		off += chunkWords
	}

	if overrideCSW {
		if err := c.mem.WriteCSW(oldCSW); err != nil && progErr == nil {
			progErr = err
		}
	}
	if err := c.mem.WriteWord(l.MMIOBase+l.CrOff, 0); err != nil && progErr == nil {
		progErr = err
	}
	return progErr
}

func (c *Controller) pollBusy() error {
	l := c.layout()
	limit := c.desc.PollLimitBusy
	if limit <= 0 {
		limit = 1000
	}
	for i := 0; i < limit; i++ {
		sr, err := c.mem.ReadWord(l.MMIOBase + l.SrOff)
		if err != nil {
			return err
		}
		if sr&l.BsyBit == 0 {
			return nil
		}
	}
	return fmt.Errorf("flash: BSY never cleared after %d polls: %w", limit, swderr.Busy)
}
