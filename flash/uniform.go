// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flash

// eraseUniformPage erases the ProgramUnit-sized page containing addr by
// writing it to FLASH_AR and setting PER+STRT, the STM32F103 algorithm:
// _swd_erase_flash_page in the original driver.
func (c *Controller) eraseUniformPage(addr uint32) error {
	l := c.layout()
	pageStart := addr - (addr-c.desc.Flash.Start)%l.ProgramUnit
	if err := c.mem.WriteWord(l.MMIOBase+l.ArOff, pageStart); err != nil {
		return err
	}
	if err := c.mem.WriteWord(l.MMIOBase+l.CrOff, l.PerBit); err != nil {
		return err
	}
	if err := c.mem.WriteWord(l.MMIOBase+l.CrOff, l.PerBit|l.StrtBit); err != nil {
		return err
	}
	if err := c.pollBusy(); err != nil {
		return err
	}
	return c.mem.WriteWord(l.MMIOBase+l.CrOff, 0)
}
