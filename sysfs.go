// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package swdhost

import (
	"fmt"
	"strings"

	"github.com/swd-tools/swdhost/swderr"
)

// Attrs is the Sysfs Attribute Surface of SPEC_FULL.md §4.10: the same
// thin, text-attribute presentation google-periph/host/sysfs.Pin gives a
// gpio.PinIO, given here to a Session. A real deployment would back each
// method with a sysfs attribute file; Attrs only implements the semantics,
// the same way Session's Ioctl stands in for a real /dev/swd0.
type Attrs struct {
	s *Session
}

// NewAttrs wraps an open Session with its sysfs-attribute presentation.
func NewAttrs(s *Session) *Attrs { return &Attrs{s: s} }

// CoreName is the "core_name" read-only attribute: the bound target's name.
func (a *Attrs) CoreName() string { return a.s.desc.Name }

// CoreMem is the "core_mem" read-only attribute: a pretty-printed dump of
// the region and segment layout, one line per segment, matching the
// original rpu_sysfs.c's "%-10s 0x%08x 0x%08x" layout.
func (a *Attrs) CoreMem() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s 0x%08x 0x%08x\n", a.s.desc.SRAM.Name, a.s.desc.SRAM.Start, a.s.desc.SRAM.Len)
	fmt.Fprintf(&b, "%-10s 0x%08x 0x%08x\n", a.s.desc.Flash.Name, a.s.desc.Flash.Start, a.s.desc.Flash.Len)
	for _, seg := range a.s.desc.FlashLayout.Segments {
		fmt.Fprintf(&b, "  %-8s 0x%08x 0x%08x\n", "segment", seg.Start, seg.Size)
	}
	return b.String()
}

// Status is the "status" read-only attribute: "halt" or "unhalt".
func (a *Attrs) Status() string {
	if a.s.halted {
		return "halt"
	}
	return "unhalt"
}

// Control is the "control" write-only attribute: "0" halts (init+halt),
// "1" unhalts.
func (a *Attrs) Control(v string) error {
	switch v {
	case "0":
		return a.s.Ioctl(HLTCORE, nil)
	case "1":
		return a.s.Ioctl(UNHLTCORE, nil)
	default:
		return fmt.Errorf("swdhost: control=%q: %w", v, swderr.Invalid)
	}
}

// ReadRAM is the "ram" binary attribute's read path: identical to Session's
// io.Reader, but addressed against SRAM regardless of the current seek
// position.
func (a *Attrs) ReadRAM(offset uint32, n int) ([]byte, error) {
	return a.s.readChopped(a.s.desc.SRAM.Start+offset, n)
}

// WriteRAM is the "ram" binary attribute's write path: a verified SRAM
// download, identical semantics to the DWNLDSRAM ioctl.
func (a *Attrs) WriteRAM(offset uint32, data []byte) error {
	return a.s.downloadSRAM(&DownloadArg{Data: data, Offset: offset})
}

// ReadFlash is the "flash" binary attribute's read path.
func (a *Attrs) ReadFlash(offset uint32, n int) ([]byte, error) {
	return a.s.readChopped(a.s.desc.Flash.Start+offset, n)
}

// WriteFlash is the "flash" binary attribute's write path: identical
// semantics to the DWNLDFLSH ioctl, through the Flash Write Orchestrator.
func (a *Attrs) WriteFlash(offset uint32, data []byte) error {
	return a.s.orch.Write(a.s.desc.Flash.Start+offset, data)
}
