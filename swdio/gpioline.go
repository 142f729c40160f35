// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swdio

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
)

// DefaultFrequency is the SWCLK frequency used when a binding does not name
// one. The protocol does not need a precise clock, only one slow enough for
// the target to keep up; 500kHz matches the delay the original kernel
// driver calibrated for.
const DefaultFrequency physic.Frequency = 500 * physic.KiloHertz

// GPIODriver is the native Line Driver backend: it bit-bangs SWCLK/SWDIO
// over two periph.io/x/conn/v3/gpio.PinIO pins resolved by name, exactly as
// the device-tree binding in §6 names them.
//
// Any driver that registers its pins with gpioreg can back a GPIODriver —
// gpioioctl's Linux gpiochip lines, or an FTDI MPSSE GPIO bus — since
// GPIODriver only depends on the gpio.PinIO interface, not on a specific
// backend.
type GPIODriver struct {
	clk gpio.PinOut
	dio gpio.PinIO

	mu        sync.Mutex
	halfCycle time.Duration
}

// NewGPIODriver resolves clkName and dioName through gpioreg and configures
// them as SWD's two wires: SWCLK driven low, SWDIO driven high (parked, per
// the PARK bit of the header byte) until the Bit Engine switches it.
func NewGPIODriver(clkName, dioName string, freq physic.Frequency) (*GPIODriver, error) {
	clkPin := gpioreg.ByName(clkName)
	if clkPin == nil {
		return nil, fmt.Errorf("swdio: no such SWCLK pin %q", clkName)
	}
	dioPin := gpioreg.ByName(dioName)
	if dioPin == nil {
		return nil, fmt.Errorf("swdio: no such SWDIO pin %q", dioName)
	}
	clk, ok := clkPin.(gpio.PinOut)
	if !ok {
		return nil, fmt.Errorf("swdio: pin %q cannot be driven as output", clkName)
	}
	dio, ok := dioPin.(gpio.PinIO)
	if !ok {
		return nil, fmt.Errorf("swdio: pin %q does not support both directions", dioName)
	}
	if freq == 0 {
		freq = DefaultFrequency
	}
	if err := clk.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("swdio: %w", err)
	}
	if err := dio.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("swdio: %w", err)
	}
	period := time.Duration(freq.Period())
	g := &GPIODriver{
		clk:       clk,
		dio:       dio,
		halfCycle: period / 2,
	}
	return g, nil
}

// ClockSet implements PinIO.
func (g *GPIODriver) ClockSet(level bool) {
	_ = g.clk.Out(gpio.Level(level))
}

// DataSet implements PinIO.
func (g *GPIODriver) DataSet(level bool) {
	_ = g.dio.Out(gpio.Level(level))
}

// DataGet implements PinIO.
func (g *GPIODriver) DataGet() bool {
	return bool(g.dio.Read())
}

// DataSetInput implements PinIO.
func (g *GPIODriver) DataSetInput() {
	_ = g.dio.In(gpio.PullUp, gpio.NoEdge)
}

// DataSetOutput implements PinIO.
//
// Parks SWDIO high, matching SWDIO_SET_DIR(SWD_OUT) in the original driver.
func (g *GPIODriver) DataSetOutput() {
	_ = g.dio.Out(gpio.High)
}

// Delay implements PinIO: one half SWCLK period.
func (g *GPIODriver) Delay() {
	time.Sleep(g.halfCycle)
}

// SectionBegin implements PinIO. Go has no equivalent to a kernel spinlock
// that disables interrupts; a mutex gives the same single-writer guarantee
// the §5 concurrency model requires without needing real-time preemption
// control.
func (g *GPIODriver) SectionBegin() {
	g.mu.Lock()
}

// SectionEnd implements PinIO.
func (g *GPIODriver) SectionEnd() {
	g.mu.Unlock()
}

// String implements conn.Resource.
func (g *GPIODriver) String() string {
	return fmt.Sprintf("swdio.GPIODriver{%s, %s}", g.clk.Name(), g.dio.Name())
}

// Halt implements conn.Resource: it parks SWDIO as an input and leaves
// SWCLK low, the idle state a Line Driver sits in between sessions, without
// releasing the underlying gpioreg pins the way a full close would.
func (g *GPIODriver) Halt() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.dio.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("swdio: halt: %w", err)
	}
	return g.clk.Out(gpio.Low)
}

var _ PinIO = (*GPIODriver)(nil)
var _ conn.Resource = (*GPIODriver)(nil)
