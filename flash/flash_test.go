// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/swd-tools/swdhost/flash"
	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/swdio"
	"github.com/swd-tools/swdhost/swdmem"
	"github.com/swd-tools/swdhost/swdproto"
	"github.com/swd-tools/swdhost/swdtest"
	"github.com/swd-tools/swdhost/target"
)

func newUniform(t *testing.T) (*flash.Controller, *swdmem.Transport, *swdtest.Target) {
	t.Helper()
	pin, tgt := swdio.NewMockSTM32F103()
	tr := swdproto.NewTransactor(pin)
	mem, err := swdmem.NewTransport(tr)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return flash.New(mem, target.STM32F103), mem, tgt
}

func newSector(t *testing.T) (*flash.Controller, *swdmem.Transport, *swdtest.Target) {
	t.Helper()
	pin, tgt := swdio.NewMockSTM32F411()
	tr := swdproto.NewTransactor(pin)
	mem, err := swdmem.NewTransport(tr)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return flash.New(mem, target.STM32F411), mem, tgt
}

func TestUniformEraseProgramRoundTrip(t *testing.T) {
	ctrl, _, tgt := newUniform(t)
	const addr = 0x08000000
	if err := ctrl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	defer ctrl.Lock()
	if err := ctrl.EraseUnit(addr); err != nil {
		t.Fatalf("EraseUnit: %v", err)
	}
	data := bytes.Repeat([]byte{0xAA, 0x55, 0x01, 0x02}, 16)
	if err := ctrl.Program(addr, data); err != nil {
		t.Fatalf("Program: %v", err)
	}
	got := tgt.ReadBytes(addr, len(data))
	if !bytes.Equal(got, data) {
		t.Fatalf("flash after program = %#v, want %#v", got, data)
	}
}

func TestSectorEraseProgramRoundTrip(t *testing.T) {
	ctrl, _, tgt := newSector(t)
	const addr = 0x08000000 // sector 0
	if err := ctrl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	defer ctrl.Lock()
	if err := ctrl.EraseUnit(addr); err != nil {
		t.Fatalf("EraseUnit: %v", err)
	}
	data := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 8)
	if err := ctrl.Program(addr, data); err != nil {
		t.Fatalf("Program: %v", err)
	}
	got := tgt.ReadBytes(addr, len(data))
	if !bytes.Equal(got, data) {
		t.Fatalf("flash after program = %#v, want %#v", got, data)
	}
}

func TestOrchestratorPartialUnitWritePreservesNeighbors(t *testing.T) {
	ctrl, mem, tgt := newUniform(t)
	const unitStart = 0x08000000
	// Seed the whole unit with a known pattern, bypassing the wire, then
	// overwrite only a few bytes in the middle through the Orchestrator.
	seed := bytes.Repeat([]byte{0x42}, 1024)
	tgt.WriteBytes(unitStart, seed)

	orch := flash.NewOrchestrator(mem, ctrl, target.STM32F103)
	patch := []byte{0x01, 0x02, 0x03, 0x04}
	const patchOff = 100
	if err := orch.Write(unitStart+patchOff, patch); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := tgt.ReadBytes(unitStart, 1024)
	want := make([]byte, 1024)
	copy(want, seed)
	copy(want[patchOff:], patch)
	if !bytes.Equal(got, want) {
		t.Fatalf("unit after partial write mismatches: bytes preceding/following the patch were not preserved")
	}
}

func TestOrchestratorSpansMultipleSectors(t *testing.T) {
	ctrl, mem, tgt := newSector(t)
	orch := flash.NewOrchestrator(mem, ctrl, target.STM32F411)
	// Sector 0 is [0x00000,0x04000), sector 1 is [0x04000,0x08000): write
	// across the boundary and confirm both sides landed.
	const base = 0x08000000 + 0x3FF0
	data := bytes.Repeat([]byte{0x77}, 0x20)
	if err := orch.Write(base, data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := tgt.ReadBytes(base, len(data))
	if !bytes.Equal(got, data) {
		t.Fatalf("data spanning sector boundary = %#v, want %#v", got, data)
	}
}

func TestPollBusyExhaustionReturnsBusy(t *testing.T) {
	ctrl, _, tgt := newUniform(t)
	if err := ctrl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	defer ctrl.Lock()
	// STM32F103's PollLimitBusy is 600; ask the target to hold BSY longer
	// than that so pollBusy gives up.
	tgt.SetBusyCycles(2000)
	err := ctrl.EraseUnit(0x08000000)
	if !errors.Is(err, swderr.Busy) {
		t.Fatalf("EraseUnit with stuck BSY: err = %v, want swderr.Busy", err)
	}
}

func TestOrchestratorRetriesTransientVerifyFailure(t *testing.T) {
	ctrl, mem, tgt := newUniform(t)
	orch := flash.NewOrchestrator(mem, ctrl, target.STM32F103)
	// The STM32F103's 1024-byte erase unit is read back as 256 words. Budget
	// for the Orchestrator's initial splice read plus 3 failing verify
	// passes, leaving the 4th verify clean: exercises real retries while
	// staying well inside MaxVerifyRetries.
	tgt.CorruptNextFlashReads(256 * 4)
	data := bytes.Repeat([]byte{0x9A}, 64)
	if err := orch.Write(0x08000000, data); err != nil {
		t.Fatalf("Write with transient verify corruption: %v", err)
	}
	got := tgt.ReadBytes(0x08000000, len(data))
	if !bytes.Equal(got, data) {
		t.Fatalf("flash after eventual success = %#v, want %#v", got, data)
	}
}

func TestOrchestratorGivesUpAfterMaxVerifyRetries(t *testing.T) {
	ctrl, mem, tgt := newUniform(t)
	orch := flash.NewOrchestrator(mem, ctrl, target.STM32F103)
	// More corrupted read-backs than the retry bound will ever clear: every
	// attempt's verify fails, so Write must surface swderr.VerifyFailed
	// instead of looping forever.
	tgt.CorruptNextFlashReads(1_000_000)
	data := bytes.Repeat([]byte{0x5C}, 16)
	err := orch.Write(0x08000000, data)
	if !errors.Is(err, swderr.VerifyFailed) {
		t.Fatalf("Write with permanent verify corruption: err = %v, want swderr.VerifyFailed", err)
	}
}

// The sector variant (STM32F411) must set FLASH_CR's PSIZE field alongside
// PG for the duration of a Program call.
func TestProgramSectorSetsPSIZEAlongsidePG(t *testing.T) {
	ctrl, _, tgt := newSector(t)
	if err := ctrl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	defer ctrl.Lock()
	if err := ctrl.EraseUnit(0x08000000); err != nil {
		t.Fatalf("EraseUnit: %v", err)
	}
	data := bytes.Repeat([]byte{0x11, 0x22, 0x33, 0x44}, 4)
	if err := ctrl.Program(0x08000000, data); err != nil {
		t.Fatalf("Program: %v", err)
	}
	const wantCR = 1<<0 | 0x2<<8 // PG | PSIZE=0b10 (32-bit parallelism)
	found := false
	for _, a := range tgt.History() {
		if a.APnDP && !a.RnW && a.Reg == uint32(swdproto.APDRW) && a.Data == wantCR {
			found = true
		}
	}
	if !found {
		t.Fatalf("no FLASH_CR write set PG|PSIZE = %#x", wantCR)
	}
}

// The uniform variant (STM32F103) has no PSIZE field; its flash controller
// only accepts half-word bus writes while PG is set, so Program must
// reconfigure CSW to half-word/packed auto-increment for the write and
// restore it afterward.
func TestProgramUniformOverridesAndRestoresCSW(t *testing.T) {
	ctrl, _, tgt := newUniform(t)
	if err := ctrl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	defer ctrl.Lock()
	if err := ctrl.EraseUnit(0x08000000); err != nil {
		t.Fatalf("EraseUnit: %v", err)
	}
	data := bytes.Repeat([]byte{0xAA, 0x55, 0x01, 0x02}, 4)
	if err := ctrl.Program(0x08000000, data); err != nil {
		t.Fatalf("Program: %v", err)
	}
	const halfwordCSW = 0x23000021 // swdmem.DefaultCSW &^ 0x37 | 0x21
	var sawOverride, sawRestore bool
	for _, a := range tgt.History() {
		if !a.APnDP || a.RnW || a.Reg != uint32(swdproto.APCSW) {
			continue
		}
		switch a.Data {
		case halfwordCSW:
			sawOverride = true
		case swdmem.DefaultCSW:
			if sawOverride {
				sawRestore = true
			}
		}
	}
	if !sawOverride {
		t.Fatalf("Program never wrote the half-word CSW override %#x", halfwordCSW)
	}
	if !sawRestore {
		t.Fatalf("Program never restored CSW to %#x after the override", uint32(swdmem.DefaultCSW))
	}
}

// Program must check BSY before touching FLASH_CR, failing with swderr.Busy
// rather than starting a write while the controller is still busy from a
// prior operation.
func TestProgramFailsWhenControllerBusy(t *testing.T) {
	ctrl, _, tgt := newUniform(t)
	if err := ctrl.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	defer ctrl.Lock()
	tgt.SetBusyCycles(2000) // exceeds the STM32F103's PollLimitBusy of 600
	err := ctrl.Program(0x08000000, []byte{0, 0, 0, 0})
	if !errors.Is(err, swderr.Busy) {
		t.Fatalf("Program while BSY stuck: err = %v, want swderr.Busy", err)
	}
}
