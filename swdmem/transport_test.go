// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swdmem_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/swdio"
	"github.com/swd-tools/swdhost/swdmem"
	"github.com/swd-tools/swdhost/swdproto"
	"github.com/swd-tools/swdhost/swdtest"
)

func newTransport(t *testing.T) (*swdmem.Transport, *swdtest.Target) {
	t.Helper()
	pin, tgt := swdio.NewMockSTM32F103()
	tr := swdproto.NewTransactor(pin)
	m, err := swdmem.NewTransport(tr)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return m, tgt
}

func TestReadBlockMatchesSeededMemory(t *testing.T) {
	m, tgt := newTransport(t)
	const base = 0x20000000
	want := []uint32{0x11111111, 0x22222222, 0x33333333, 0x44444444}
	buf := make([]byte, 4*len(want))
	for i, w := range want {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	tgt.WriteBytes(base, buf)

	got, err := m.ReadBlock(base, len(want))
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("word %d = %#08x, want %#08x (got %#v)", i, got[i], want[i], got)
		}
	}
}

func TestWriteBlockThenReadBack(t *testing.T) {
	m, tgt := newTransport(t)
	const base = 0x20000100
	words := []uint32{0xCAFEBABE, 0xDEADBEEF}
	if err := m.WriteBlock(base, words); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	raw := tgt.ReadBytes(base, 8)
	if binary.LittleEndian.Uint32(raw[0:4]) != words[0] || binary.LittleEndian.Uint32(raw[4:8]) != words[1] {
		t.Fatalf("memory after WriteBlock = %#v, want %#v", raw, words)
	}
}

func TestBlockCrossingBankBoundaryIsRejected(t *testing.T) {
	m, _ := newTransport(t)
	// 1 word before the 1KiB boundary, asking for 2 words: crosses it.
	addr := uint32(0x20000000 + swdmem.BankSize - 4)
	if _, err := m.ReadBlock(addr, 2); !errors.Is(err, swderr.Invalid) {
		t.Fatalf("ReadBlock across boundary: err = %v, want swderr.Invalid", err)
	}
	if err := m.WriteBlock(addr, []uint32{1, 2}); !errors.Is(err, swderr.Invalid) {
		t.Fatalf("WriteBlock across boundary: err = %v, want swderr.Invalid", err)
	}
}

func TestSelectNotReissuedForSameBank(t *testing.T) {
	m, tgt := newTransport(t)
	if _, err := m.ReadWord(0x20000000); err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if _, err := m.ReadWord(0x20000004); err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	selects := 0
	for _, a := range tgt.History() {
		if !a.APnDP && !a.RnW && a.Reg == uint32(swdproto.DPSelect) {
			selects++
		}
	}
	// One SELECT from NewTransport's CSW configuration, and none more
	// since every subsequent access stays in bank 0.
	if selects != 1 {
		t.Fatalf("SELECT writes = %d, want 1 (bank unchanged across both reads)", selects)
	}
}

// P8: a burst of exactly 1KiB at a 1KiB-aligned address uses exactly one
// TAR setup.
func TestFullBankBurstUsesOneTARSetup(t *testing.T) {
	m, tgt := newTransport(t)
	const base = 0x20000000 // 1KiB-aligned
	words := make([]uint32, swdmem.BankSize/4)
	if err := m.WriteBlock(base, words); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	tars := 0
	for _, a := range tgt.History() {
		if a.APnDP && !a.RnW && a.Reg == uint32(swdproto.APTAR) {
			tars++
		}
	}
	if tars != 1 {
		t.Fatalf("TAR writes for a full-bank burst = %d, want 1", tars)
	}
}
