// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package swdio is the Line Driver: it turns two GPIO-shaped pins (SWCLK,
// SWDIO) into the eight-method capability the SWD bit engine drives, the same
// way periph-host/gpioioctl turns a Linux gpiochip into a
// periph.io/x/conn/v3/gpio.PinIO.
package swdio

// PinIO is the pin-handle capability the Line Driver exposes to the Bit
// Engine. It replaces the original driver's table of C function pointers
// (struct swd_gpio) with a single interface so tests can substitute a mock
// that records emitted bits without touching real hardware.
type PinIO interface {
	// ClockSet drives SWCLK to the given level.
	ClockSet(level bool)
	// DataSet drives SWDIO to the given level. Only valid while SWDIO is
	// configured as an output.
	DataSet(level bool)
	// DataGet samples the current level of SWDIO. Only valid while SWDIO is
	// configured as an input.
	DataGet() bool
	// DataSetInput switches SWDIO to input without disturbing SWCLK.
	DataSetInput()
	// DataSetOutput switches SWDIO to output without disturbing SWCLK.
	DataSetOutput()
	// Delay waits for the fixed per-edge interval that calibrates the
	// effective SWCLK frequency.
	Delay()
	// SectionBegin acquires a critical section that must hold for the
	// duration of one command byte or one 32-bit data word plus parity.
	SectionBegin()
	// SectionEnd releases the critical section acquired by SectionBegin.
	SectionEnd()
}
