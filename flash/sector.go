// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

import (
	"fmt"

	"github.com/swd-tools/swdhost/swderr"
	"github.com/swd-tools/swdhost/target"
)

// eraseSector erases the heterogeneous sector containing addr by selecting
// its index in the SNB field and setting SER+STRT, the STM32F411 algorithm.
func (c *Controller) eraseSector(addr uint32) error {
	l := c.layout()
	idx, ok := sectorIndex(l.Segments, addr-c.desc.Flash.Start)
	if !ok {
		return fmt.Errorf("flash: addr %#08x not covered by any sector: %w", addr, swderr.Invalid)
	}
	cr := l.SerBit | (uint32(idx) << l.SnbShift)
	if err := c.mem.WriteWord(l.MMIOBase+l.CrOff, cr); err != nil {
		return err
	}
	if err := c.mem.WriteWord(l.MMIOBase+l.CrOff, cr|l.StrtBit); err != nil {
		return err
	}
	if err := c.pollBusy(); err != nil {
		return err
	}
	return c.mem.WriteWord(l.MMIOBase+l.CrOff, 0)
}

func sectorIndex(segments []target.Segment, offset uint32) (int, bool) {
	for i, s := range segments {
		if offset >= s.Start && offset < s.Start+s.Size {
			return i, true
		}
	}
	return 0, false
}
