// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swdproto

import (
	"fmt"

	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/swdio"
)

// DP register offsets. IDCODE and ABORT share 0x0 (read vs write), as do
// SELECT and RESEND at 0x8.
const (
	DPIDCode   uint8 = 0x0
	DPAbort    uint8 = 0x0
	DPCtrlStat uint8 = 0x4
	DPSelect   uint8 = 0x8
	DPResend   uint8 = 0x8
	DPRDBuff   uint8 = 0xC
)

// AP register offsets, relative to whatever bank SELECT currently names.
const (
	APCSW uint8 = 0x0
	APTAR uint8 = 0x4
	APDRW uint8 = 0xC
)

// DefaultRetry is the number of extra header emissions a transaction will
// make while the target keeps answering WAIT, matching RETRY in the
// original driver.
const DefaultRetry = 600

// Transactor drives single DP/AP register transactions over a Bit Engine
// pin and retries WAIT acks up to Retry times. On any non-OK ack (FAULT, a
// malformed ack, or WAIT after the retries run out) it hands off to the
// Fault Handler before returning, unless DisableFaultRecovery
// is set — the Fault Handler's own internal transactions set that to avoid
// recursing into itself.
type Transactor struct {
	Pin   swdio.PinIO
	Retry int

	DisableFaultRecovery bool
}

// NewTransactor builds a Transactor with the default retry bound.
func NewTransactor(pin swdio.PinIO) *Transactor {
	return &Transactor{Pin: pin, Retry: DefaultRetry}
}

// ReadDP reads one Debug Port register. DP reads are immediate: unlike AP
// reads they are never posted.
func (tr *Transactor) ReadDP(reg uint8) (uint32, error) {
	_, data, err := tr.transact(false, true, reg, 0)
	return data, err
}

// WriteDP writes one Debug Port register.
func (tr *Transactor) WriteDP(reg uint8, data uint32) error {
	_, _, err := tr.transact(false, false, reg, data)
	return err
}

// ReadAP reads one Access Port register in the bank SELECT currently names.
// The value returned is whatever the target latched from the access before
// this one: callers that need the result of this exact access must follow
// up with a ReadDP(DPRDBuff) to flush it, per §4.5's posted-read path.
func (tr *Transactor) ReadAP(reg uint8) (uint32, error) {
	_, data, err := tr.transact(true, true, reg, 0)
	return data, err
}

// WriteAP writes one Access Port register in the bank SELECT currently
// names.
func (tr *Transactor) WriteAP(reg uint8, data uint32) error {
	_, _, err := tr.transact(true, false, reg, data)
	return err
}

// transact runs the full header/ack/data exchange for one register access,
// retrying on WAIT and invoking the Fault Handler on FAULT or a malformed
// ack before surfacing an error.
func (tr *Transactor) transact(apndp, rnw bool, reg uint8, wdata uint32) (ack Ack, rdata uint32, err error) {
	cmd := header(apndp, rnw, reg)
	attempts := tr.Retry + 1
	for attempt := 0; attempt < attempts; attempt++ {
		tr.Pin.DataSetOutput()
		sendByte(tr.Pin, cmd)
		tr.Pin.DataSetInput()
		turnaround(tr.Pin)
		ack = readAck(tr.Pin)
		turnaround(tr.Pin)
		if ack != AckWAIT {
			break
		}
	}

	if ack != AckOK {
		if !tr.DisableFaultRecovery {
			handleFault(tr, ack)
		}
		if ack == AckWAIT {
			return ack, 0, fmt.Errorf("swdproto: header=%#02x: %w", cmd, swderr.NoDevice)
		}
		return ack, 0, fmt.Errorf("swdproto: header=%#02x: %w", cmd, swderr.ProtocolFault)
	}

	if rnw {
		var parityOK bool
		rdata, parityOK = readWord(tr.Pin)
		turnaround(tr.Pin)
		tr.Pin.DataSetOutput()
		if !parityOK {
			return ack, rdata, fmt.Errorf("swdproto: header=%#02x: data parity: %w", cmd, swderr.ProtocolFault)
		}
		return ack, rdata, nil
	}

	tr.Pin.DataSetOutput()
	sendWord(tr.Pin, wdata)
	return ack, 0, nil
}
