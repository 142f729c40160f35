// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swdproto_test

import (
	"errors"
	"testing"

	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/swdio"
	"github.com/swd-tools/swdhost/swdproto"
)

func TestReadDPIDCode(t *testing.T) {
	pin, tgt := swdio.NewMockSTM32F103()
	tgt.SetIDCode(0x1BA01477)
	tr := swdproto.NewTransactor(pin)

	got, err := tr.ReadDP(swdproto.DPIDCode)
	if err != nil {
		t.Fatalf("ReadDP(IDCODE): %v", err)
	}
	if got != 0x1BA01477 {
		t.Fatalf("IDCODE = %#08x, want %#08x", got, 0x1BA01477)
	}
}

func TestWaitRetryExhaustsAfterConfiguredBound(t *testing.T) {
	pin, tgt := swdio.NewMockSTM32F103()
	tgt.ForceWaitAlways(true)
	tr := swdproto.NewTransactor(pin)
	tr.Retry = 5
	tr.DisableFaultRecovery = true // isolate the retry-count property from fault cleanup

	_, err := tr.ReadDP(swdproto.DPCtrlStat)
	if !errors.Is(err, swderr.NoDevice) {
		t.Fatalf("err = %v, want swderr.NoDevice", err)
	}
	if got, want := tgt.HeaderCount(), tr.Retry+1; got != want {
		t.Fatalf("HeaderCount() = %d, want %d (retry bound %d)", got, want, tr.Retry)
	}
}

func TestSuccessfulTransactionEmitsOneHeader(t *testing.T) {
	pin, tgt := swdio.NewMockSTM32F103()
	tr := swdproto.NewTransactor(pin)

	if _, err := tr.ReadDP(swdproto.DPIDCode); err != nil {
		t.Fatalf("ReadDP: %v", err)
	}
	if got := tgt.HeaderCount(); got != 1 {
		t.Fatalf("HeaderCount() = %d, want 1", got)
	}
}

func TestFaultWritesExactlyOneAbortWithStickyBitsClear(t *testing.T) {
	pin, tgt := swdio.NewMockSTM32F103()
	// STICKYERR | WDATAERR, matching a bus fault during an AP access.
	tgt.ForceNextAck(byte(swdproto.AckFAULT), 1<<5|1<<7)
	tr := swdproto.NewTransactor(pin)

	_, err := tr.ReadDP(swdproto.DPCtrlStat)
	if !errors.Is(err, swderr.ProtocolFault) {
		t.Fatalf("err = %v, want swderr.ProtocolFault", err)
	}
	aborts := tgt.AbortWrites()
	if len(aborts) != 1 {
		t.Fatalf("AbortWrites() = %v, want exactly one write", aborts)
	}
	const wantMask = 1<<2 | 1<<3 // STKERRCLR | WDERRCLR
	if aborts[0] != wantMask {
		t.Fatalf("abort mask = %#x, want %#x", aborts[0], wantMask)
	}
}

func TestBareWaitAbortCancelsPendingTransaction(t *testing.T) {
	pin, tgt := swdio.NewMockSTM32F103()
	tr := swdproto.NewTransactor(pin)
	tr.Retry = 2

	// Exactly enough forced WAITs to exhaust the main transaction's 3
	// attempts; the Fault Handler's own cleanup write then sees a target
	// that has gone back to answering normally.
	tgt.ForceWaitCount(tr.Retry + 1)

	_, err := tr.ReadDP(swdproto.DPCtrlStat)
	if !errors.Is(err, swderr.NoDevice) {
		t.Fatalf("err = %v, want swderr.NoDevice", err)
	}

	aborts := tgt.AbortWrites()
	if len(aborts) != 1 || aborts[0] != 1 {
		t.Fatalf("AbortWrites() = %v, want a single DAPABORT write", aborts)
	}
}

func TestWriteDataParityErrorResyncsWithIDCodeRead(t *testing.T) {
	pin, tgt := swdio.NewMockSTM32F103()
	tgt.ForceNextAck(byte(swdproto.AckFAULT), 1<<7) // WDATAERR alone
	tr := swdproto.NewTransactor(pin)

	_, err := tr.ReadDP(swdproto.DPCtrlStat)
	if !errors.Is(err, swderr.ProtocolFault) {
		t.Fatalf("err = %v, want swderr.ProtocolFault", err)
	}
	hist := tgt.History()
	var sawIDCodeRead bool
	for _, a := range hist {
		if !a.APnDP && a.RnW && a.Reg == uint32(swdproto.DPIDCode) {
			sawIDCodeRead = true
		}
	}
	if !sawIDCodeRead {
		t.Fatalf("history = %+v, want an IDCODE read after the WDATAERR resync", hist)
	}
}
