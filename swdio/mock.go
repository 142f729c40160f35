// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swdio

import "github.com/swd-tools/swdhost/swdtest"

// NewMockSTM32F103 returns a PinIO backed by a simulated STM32F103: 20KiB
// SRAM at 0x20000000, 128KiB of uniform 1KiB flash pages at 0x08000000. The
// returned *swdtest.Target is the same value, for seeding memory and
// asserting on the access history in tests.
func NewMockSTM32F103() (PinIO, *swdtest.Target) {
	tgt := swdtest.New(swdtest.VariantUniform, 0x20000000, 20*1024, 0x08000000, 128*1024, nil, 1024)
	return tgt, tgt
}

// NewMockSTM32F411 returns a PinIO backed by a simulated STM32F411: 128KiB
// SRAM at 0x20000000, 512KiB of sectored flash at 0x08000000 (four 16KiB,
// one 64KiB, three 128KiB sectors, matching the original driver's segment
// table for this part).
func NewMockSTM32F411() (PinIO, *swdtest.Target) {
	segments := []swdtest.Segment{
		{Start: 0x00000, Size: 16 * 1024},
		{Start: 0x04000, Size: 16 * 1024},
		{Start: 0x08000, Size: 16 * 1024},
		{Start: 0x0C000, Size: 16 * 1024},
		{Start: 0x10000, Size: 64 * 1024},
		{Start: 0x20000, Size: 128 * 1024},
		{Start: 0x40000, Size: 128 * 1024},
		{Start: 0x60000, Size: 128 * 1024},
	}
	tgt := swdtest.New(swdtest.VariantSector, 0x20000000, 128*1024, 0x08000000, 512*1024, segments, 4096)
	return tgt, tgt
}

var _ PinIO = (*swdtest.Target)(nil)
