// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swdproto

// CTRL/STAT sticky bit offsets and the ABORT register's matching clear-bit
// offsets, named the way the original driver's header names them.
const (
	stickyOrunOff = 1
	stickyCmpOff  = 4
	stickyErrOff  = 5
	wdataErrOff   = 7

	dapAbortOff   = 0
	stkCmpClrOff  = 1
	stkErrClrOff  = 2
	wdErrClrOff   = 3
	orunErrClrOff = 4
)

// handleFault is the Fault Handler: it runs one to three extra DP
// transactions (plus a JTAG-to-SWD resync after a WDATAERR) to cancel a pending AP access and clear the sticky error
// bits that produced a non-OK ack, so the caller's next transaction starts
// from a clean protocol state. It never itself retries through the caller's
// Transactor, to avoid recursing into fault handling.
func handleFault(tr *Transactor, ack Ack) {
	sub := &Transactor{Pin: tr.Pin, Retry: tr.Retry, DisableFaultRecovery: true}

	if ack == AckWAIT {
		// A bare WAIT exhausted its retries: cancel the pending AP
		// transaction so it doesn't bleed into the next one.
		_ = sub.WriteDP(DPAbort, 1<<dapAbortOff)
		return
	}

	// FAULT, or an ack that was neither OK, WAIT nor FAULT: read the
	// sticky bits that caused it and clear exactly those.
	ctrlstat, err := sub.ReadDP(DPCtrlStat)
	if err != nil {
		return
	}
	var abort uint32
	if ctrlstat&(1<<stickyErrOff) != 0 {
		abort |= 1 << stkErrClrOff
	}
	if ctrlstat&(1<<wdataErrOff) != 0 {
		abort |= 1 << wdErrClrOff
	}
	if ctrlstat&(1<<stickyOrunOff) != 0 {
		abort |= 1 << orunErrClrOff
	}
	if abort == 0 {
		return
	}
	_ = sub.WriteDP(DPAbort, abort)

	if ctrlstat&(1<<wdataErrOff) != 0 {
		// A write-data parity error leaves the port framing unreliable:
		// resync with a fresh switch sequence and confirm it's alive.
		SwitchToSWD(sub.Pin)
		_, _ = sub.ReadDP(DPIDCode)
	}
}
