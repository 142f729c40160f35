// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swdcore is the Core Controller: it drives a Cortex-M target
// through POWERED_OFF -> AWAKE -> HALTED -> AWAKE over the DP/AP Transactor
// and Memory Transport, and answers the liveness probe the Session surface
// uses to decide whether a target is present.
package swdcore

import (
	"fmt"

	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/swdmem"
	"github.com/swd-tools/swdhost/swdproto"
)

// Cortex-M system control registers, fixed AHB addresses on every target
// this repo supports.
const (
	addrDHCSR = 0xE000EDF0
	addrDEMCR = 0xE000EDFC
	addrAIRCR = 0xE000ED0C
)

// DHCSR/DEMCR/AIRCR values for the halt and unhalt sequences.
const (
	dhcsrHalt        = 0xA05F0003 // debug enable + C_HALT
	dhcsrUnhalt      = 0xA05F0000
	demcrVectorCatch = 0x00000001
	aircrVectReset   = 0x05FA0004 // VECTRESET
	aircrSysResetReq = 0x05FA0007 // SYSRESETREQ
)

// CTRL/STAT power-up request/ack bit offsets.
const (
	cdbgPwrUpReqOff = 28
	cdbgPwrUpAckOff = 29
	csysPwrUpReqOff = 30
	csysPwrUpAckOff = 31
)

// powerUpPollLimit bounds how many CTRL/STAT reads Init will make waiting
// for both power-up ack bits to rise.
const powerUpPollLimit = 1000

// Controller drives one target core's DHCSR/DEMCR/AIRCR and CTRL/STAT
// power-up sequencing, on top of a Memory Transport for the AHB-addressed
// writes and the raw Transactor for DP-only operations (IDCODE, CTRL/STAT).
type Controller struct {
	tr  *swdproto.Transactor
	mem *swdmem.Transport
}

// New builds a Controller. tr and mem must share the same Bit Engine pin.
func New(tr *swdproto.Transactor, mem *swdmem.Transport) *Controller {
	return &Controller{tr: tr, mem: mem}
}

// Init brings the target from POWERED_OFF to AWAKE: line reset, an IDCODE
// read to wake the DAP, a CTRL/STAT write requesting both power domains,
// polling until both ack bits rise, then a throwaway MEM-AP IDR read. The
// IDR read leaves SELECT on the IDR bank; the Memory Transport switches back
// to bank 0 on its next CSW/TAR/DRW access.
func (c *Controller) Init() error {
	swdproto.LineReset(c.tr.Pin)
	if _, err := c.tr.ReadDP(swdproto.DPIDCode); err != nil {
		return fmt.Errorf("swdcore: init: idcode: %w", err)
	}
	req := uint32(1<<cdbgPwrUpReqOff | 1<<csysPwrUpReqOff)
	if err := c.tr.WriteDP(swdproto.DPCtrlStat, req); err != nil {
		return fmt.Errorf("swdcore: init: power-up request: %w", err)
	}
	ackMask := uint32(1<<cdbgPwrUpAckOff | 1<<csysPwrUpAckOff)
	for i := 0; i < powerUpPollLimit; i++ {
		v, err := c.tr.ReadDP(swdproto.DPCtrlStat)
		if err != nil {
			return fmt.Errorf("swdcore: init: power-up poll: %w", err)
		}
		if v&ackMask == ackMask {
			if _, err := c.mem.ReadIDR(); err != nil {
				return fmt.Errorf("swdcore: init: idr: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("swdcore: init: power-up ack never rose after %d polls: %w", powerUpPollLimit, swderr.NoDevice)
}

// Halt moves the target from AWAKE to HALTED: debug-enable + C_HALT into
// DHCSR, vector-catch-on-reset into DEMCR, then VECTRESET into AIRCR.
func (c *Controller) Halt() error {
	if err := c.mem.WriteWord(addrDHCSR, dhcsrHalt); err != nil {
		return fmt.Errorf("swdcore: halt: dhcsr: %w", err)
	}
	if err := c.mem.WriteWord(addrDEMCR, demcrVectorCatch); err != nil {
		return fmt.Errorf("swdcore: halt: demcr: %w", err)
	}
	if err := c.mem.WriteWord(addrAIRCR, aircrVectReset); err != nil {
		return fmt.Errorf("swdcore: halt: aircr: %w", err)
	}
	return nil
}

// Unhalt moves the target from HALTED back to AWAKE and requests a system
// reset: clear C_HALT in DHCSR, then SYSRESETREQ into AIRCR.
func (c *Controller) Unhalt() error {
	if err := c.mem.WriteWord(addrDHCSR, dhcsrUnhalt); err != nil {
		return fmt.Errorf("swdcore: unhalt: dhcsr: %w", err)
	}
	if err := c.mem.WriteWord(addrAIRCR, aircrSysResetReq); err != nil {
		return fmt.Errorf("swdcore: unhalt: aircr: %w", err)
	}
	return nil
}

// Liveness reads IDCODE with fault recovery disabled: a non-OK ack is
// reported to the caller as-is rather than triggering the Fault Handler, so
// a probe of an absent or unresponsive target doesn't itself hang retrying.
func (c *Controller) Liveness() (uint32, error) {
	probe := &swdproto.Transactor{Pin: c.tr.Pin, Retry: c.tr.Retry, DisableFaultRecovery: true}
	id, err := probe.ReadDP(swdproto.DPIDCode)
	if err != nil {
		return 0, fmt.Errorf("swdcore: liveness: %w", err)
	}
	return id, nil
}
