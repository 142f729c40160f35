// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swdmem is the Memory Transport: it turns Transactor-level DP/AP
// register accesses into AHB-addressed word reads and writes through the
// MEM-AP, handling SELECT bank switches, TAR auto-increment and the
// posted-read flush the wire protocol requires.
package swdmem

import (
	"fmt"

	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/swdproto"
)

// BankSize is the auto-increment window a MEM-AP implementation is only
// guaranteed to wrap correctly within; bulk accesses are chopped at this
// boundary.
const BankSize = 0x400

// DefaultCSW is the MEM-AP CSW configuration used for 32-bit, auto
// incrementing transfers: word size, increment-single, plus the privileged/
// debug enable bits the original driver sets before halting a core.
const DefaultCSW = 0x23000012

// Transport drives one MEM-AP's CSW/TAR/DRW registers over a Transactor.
type Transport struct {
	tr *swdproto.Transactor

	haveSelect bool
	curSelect  uint32
}

// NewTransport builds a Transport over tr, configured for the default
// 32-bit auto-incrementing CSW.
func NewTransport(tr *swdproto.Transactor) (*Transport, error) {
	m := &Transport{tr: tr}
	if err := m.configureCSW(DefaultCSW); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Transport) selectBank(bank uint32) error {
	if m.haveSelect && m.curSelect == bank {
		return nil
	}
	if err := m.tr.WriteDP(swdproto.DPSelect, bank); err != nil {
		return err
	}
	m.haveSelect = true
	m.curSelect = bank
	return nil
}

func (m *Transport) configureCSW(csw uint32) error {
	if err := m.selectBank(0); err != nil {
		return err
	}
	return m.tr.WriteAP(swdproto.APCSW, csw)
}

func (m *Transport) setTAR(addr uint32) error {
	if err := m.selectBank(0); err != nil {
		return err
	}
	return m.tr.WriteAP(swdproto.APTAR, addr)
}

// ReadWord reads one 32-bit word at addr: set TAR, issue the posted DRW
// read, then flush it with RDBUFF.
func (m *Transport) ReadWord(addr uint32) (uint32, error) {
	if err := m.setTAR(addr); err != nil {
		return 0, err
	}
	if _, err := m.tr.ReadAP(swdproto.APDRW); err != nil {
		return 0, err
	}
	v, err := m.tr.ReadDP(swdproto.DPRDBuff)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// WriteWord writes one 32-bit word at addr.
func (m *Transport) WriteWord(addr uint32, data uint32) error {
	if err := m.setTAR(addr); err != nil {
		return err
	}
	return m.tr.WriteAP(swdproto.APDRW, data)
}

// ReadBlock reads n consecutive words starting at addr. addr and the span
// must not cross a BankSize boundary; callers that need more chop the
// request themselves (the Flash Orchestrator and the Session's read path do
// this when they iterate regions).
func (m *Transport) ReadBlock(addr uint32, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	if addr%4 != 0 {
		return nil, fmt.Errorf("swdmem: addr %#08x: %w", addr, swderr.Invalid)
	}
	if (addr%BankSize)+uint32(n)*4 > BankSize {
		return nil, fmt.Errorf("swdmem: block [%#08x,+%d) crosses a %#x bank boundary: %w", addr, n*4, BankSize, swderr.Invalid)
	}
	if err := m.setTAR(addr); err != nil {
		return nil, err
	}
	// The first DRW read only triggers the bus access for word 0; its
	// result is discarded per the posted-read pipeline.
	if _, err := m.tr.ReadAP(swdproto.APDRW); err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := 0; i < n-1; i++ {
		v, err := m.tr.ReadAP(swdproto.APDRW)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	last, err := m.tr.ReadDP(swdproto.DPRDBuff)
	if err != nil {
		return nil, err
	}
	out[n-1] = last
	return out, nil
}

// WriteBlock writes words starting at addr. addr and the span must not
// cross a BankSize boundary.
func (m *Transport) WriteBlock(addr uint32, words []uint32) error {
	if len(words) == 0 {
		return nil
	}
	if addr%4 != 0 {
		return fmt.Errorf("swdmem: addr %#08x: %w", addr, swderr.Invalid)
	}
	if (addr%BankSize)+uint32(len(words))*4 > BankSize {
		return fmt.Errorf("swdmem: block [%#08x,+%d) crosses a %#x bank boundary: %w", addr, len(words)*4, BankSize, swderr.Invalid)
	}
	if err := m.setTAR(addr); err != nil {
		return err
	}
	for _, w := range words {
		if err := m.tr.WriteAP(swdproto.APDRW, w); err != nil {
			return err
		}
	}
	return nil
}

// ReadCSW reads the MEM-AP's current CSW register.
func (m *Transport) ReadCSW() (uint32, error) {
	if err := m.selectBank(0); err != nil {
		return 0, err
	}
	if _, err := m.tr.ReadAP(swdproto.APCSW); err != nil {
		return 0, err
	}
	return m.tr.ReadDP(swdproto.DPRDBuff)
}

// WriteCSW overwrites the MEM-AP's CSW register directly, bypassing the
// word-sized auto-increment NewTransport configures. Callers that need the
// previous configuration back (the Flash Controller does, around the
// STM32F103's half-word program window) read it with ReadCSW first and
// restore it themselves when done.
func (m *Transport) WriteCSW(csw uint32) error {
	return m.configureCSW(csw)
}

// ReadIDR reads the MEM-AP's identification register.
func (m *Transport) ReadIDR() (uint32, error) {
	if err := m.selectBank(0xF0); err != nil {
		return 0, err
	}
	if _, err := m.tr.ReadAP(0xC); err != nil {
		return 0, err
	}
	return m.tr.ReadDP(swdproto.DPRDBuff)
}
