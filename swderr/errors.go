// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swderr defines the error kinds surfaced by every layer of the SWD
// stack, from the wire transactor down to the flash orchestrator.
package swderr

import "errors"

// Sentinel error kinds. Callers compare with errors.Is; every layer wraps
// one of these with fmt.Errorf("...: %w", ...) to add call-site context.
var (
	// NoDevice means a wire ACK remained non-OK after the configured retry
	// bound, or a liveness probe got no response: the target is unresponsive
	// or the wiring is wrong.
	NoDevice = errors.New("swd: no device")

	// ProtocolFault means a FAULT ACK or a malformed (neither OK, WAIT nor
	// FAULT) ACK was observed, or a read's data parity did not match. For a
	// FAULT or malformed ACK, the fault handler has already cleared the
	// sticky bits that caused it by the time this reaches the caller, unless
	// the transactor had fault recovery disabled.
	ProtocolFault = errors.New("swd: protocol fault")

	// Busy means the flash controller's BSY bit never cleared within its
	// poll bound, or a second session tried to open while one is active.
	Busy = errors.New("swd: busy")

	// Locked means the flash unlock key sequence did not clear the LOCK bit.
	Locked = errors.New("swd: flash locked")

	// VerifyFailed means a post-program read-back did not match the buffer
	// that was written. The orchestrator retries this locally before
	// surfacing it.
	VerifyFailed = errors.New("swd: verify failed")

	// Invalid means the caller supplied an unaligned length, an
	// out-of-range offset, or an unsupported seek whence.
	Invalid = errors.New("swd: invalid argument")
)
