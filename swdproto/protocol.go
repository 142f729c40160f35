// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swdproto is the Bit Engine: it turns a swdio.PinIO into the
// header/ack/data framing ARM Serial Wire Debug uses on the wire, and the
// Transactor and Fault Handler built on top of it.
package swdproto

import "github.com/swd-tools/swdhost/swdio"

// Ack is the 3-bit acknowledge value a target returns after a header.
type Ack byte

// The three defined ack values. Any other 3-bit pattern is a protocol
// error: the line is framed correctly but the target said something that
// isn't in the taxonomy.
const (
	AckOK    Ack = 1
	AckWAIT  Ack = 2
	AckFAULT Ack = 4
)

// ResetLen is the number of high SWCLK cycles a line reset holds SWDIO high
// for, matching SWD_RESET_LEN in the original driver.
const ResetLen = 50

// JTAGToSWD is the 16-bit bit pattern that switches a JTAG-capable debug
// port into SWD mode, sent least-significant-bit first as two bytes.
const JTAGToSWD = 0xE79E

// fixed levels of the header's Start, Stop and Park bits.
const (
	start = true
	stop  = false
	park  = true
)

// LineReset drives SWDIO high for ResetLen clocks, then low for two more,
// returning the port to a state where it will accept a fresh header.
func LineReset(pin swdio.PinIO) {
	pin.SectionBegin()
	defer pin.SectionEnd()
	pin.DataSetOutput()
	pin.DataSet(true)
	for i := 0; i < ResetLen; i++ {
		clockPulse(pin)
	}
	pin.DataSet(false)
	for i := 0; i < 2; i++ {
		clockPulse(pin)
	}
}

// SwitchToSWD sends the JTAG-to-SWD switch sequence followed by a line
// reset, the sequence a port in JTAG mode needs before it will answer SWD
// transactions.
func SwitchToSWD(pin swdio.PinIO) {
	sendByte(pin, byte(JTAGToSWD&0xFF))
	sendByte(pin, byte(JTAGToSWD>>8))
	LineReset(pin)
}

// clockPulse drives one SWCLK rising-then-falling edge with the calibrated
// half-period delay on either side.
func clockPulse(pin swdio.PinIO) {
	pin.ClockSet(true)
	pin.Delay()
	pin.ClockSet(false)
	pin.Delay()
}

// sendBit drives one SWDIO level for one clock cycle.
func sendBit(pin swdio.PinIO, level bool) {
	pin.DataSet(level)
	clockPulse(pin)
}

// readBit samples SWDIO before driving the clock edge that advances the
// target's shift register.
func readBit(pin swdio.PinIO) bool {
	v := pin.DataGet()
	clockPulse(pin)
	return v
}

// turnaround is the one-cycle gap required on every direction change.
func turnaround(pin swdio.PinIO) {
	clockPulse(pin)
}

// sendByte drives 8 bits, LSB first, under one critical section.
func sendByte(pin swdio.PinIO, v byte) {
	pin.SectionBegin()
	defer pin.SectionEnd()
	for i := 0; i < 8; i++ {
		sendBit(pin, v&(1<<uint(i)) != 0)
	}
}

// header encodes one SWD command header: Start, APnDP, RnW, A[2:3], Parity,
// Stop, Park.
func header(apndp, rnw bool, reg uint8) byte {
	a2 := reg&0x4 != 0
	a3 := reg&0x8 != 0
	parity := xor(apndp, rnw, a2, a3)
	var b byte
	if start {
		b |= 1 << 0
	}
	if apndp {
		b |= 1 << 1
	}
	if rnw {
		b |= 1 << 2
	}
	if a2 {
		b |= 1 << 3
	}
	if a3 {
		b |= 1 << 4
	}
	if parity {
		b |= 1 << 5
	}
	if stop {
		b |= 1 << 6
	}
	if park {
		b |= 1 << 7
	}
	return b
}

func xor(bits ...bool) bool {
	var v bool
	for _, b := range bits {
		v = v != b
	}
	return v
}

// readAck samples the 3-bit ack field, LSB first, outside any critical
// section: the original driver does not lock this phase either, since only
// one party drives the bus at a time by construction.
func readAck(pin swdio.PinIO) Ack {
	var v byte
	for i := 0; i < 3; i++ {
		if readBit(pin) {
			v |= 1 << uint(i)
		}
	}
	return Ack(v)
}

// sendWord drives a 32-bit data word followed by its parity bit, under one
// critical section.
func sendWord(pin swdio.PinIO, v uint32) {
	pin.SectionBegin()
	defer pin.SectionEnd()
	var parity bool
	for i := 0; i < 32; i++ {
		bit := v&(1<<uint(i)) != 0
		sendBit(pin, bit)
		parity = parity != bit
	}
	sendBit(pin, parity)
}

// readWord samples a 32-bit data word and its trailing parity bit, under one
// critical section, and reports whether the parity matched.
func readWord(pin swdio.PinIO) (value uint32, parityOK bool) {
	pin.SectionBegin()
	defer pin.SectionEnd()
	var parity bool
	for i := 0; i < 32; i++ {
		bit := readBit(pin)
		if bit {
			value |= 1 << uint(i)
		}
		parity = parity != bit
	}
	got := readBit(pin)
	return value, got == parity
}
